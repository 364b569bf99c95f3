package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/tinusleroux/crowdbiz-graph/pkg/metrics"
)

// Metrics counts requests by route template, so ids never become labels.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				c.Error(err)
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordHTTPRequest(c.Request().Method, route, strconv.Itoa(c.Response().Status))
			return nil
		}
	}
}
