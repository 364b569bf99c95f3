package middleware

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/tinusleroux/crowdbiz-graph/pkg/context"
)

func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err = next(c); err != nil {
				c.Error(err)
			}

			// handlers may have enriched the request context
			ctx := c.Request().Context()
			fields := map[string]any{
				"request_id":    context.GetRequestID(ctx),
				"method":        context.GetMethod(ctx),
				"uri":           req.RequestURI,
				"path":          context.GetRoute(ctx),
				"route":         c.Path(),
				"status":        res.Status,
				"remote_ip":     context.GetRemoteIP(ctx),
				"operator":      context.GetOperator(ctx),
				"request_size":  req.ContentLength,
				"response_size": res.Size,
				"response_time": time.Since(start).String(),
			}
			if batchID := context.GetBatchID(ctx); batchID != "" {
				fields["batch_id"] = batchID
			}
			log := logger.WithContext(ctx).WithFields(fields)
			if res.Status >= 500 {
				log.Warn("Request")
				return nil
			}
			log.Info("Request")

			return nil
		}
	}
}
