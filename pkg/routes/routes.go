package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/tinusleroux/crowdbiz-graph/pkg/departments"
	"github.com/tinusleroux/crowdbiz-graph/pkg/importer"
	"github.com/tinusleroux/crowdbiz-graph/pkg/middleware"
	"github.com/tinusleroux/crowdbiz-graph/pkg/routes/batches"
	departmentroutes "github.com/tinusleroux/crowdbiz-graph/pkg/routes/departments"
	"github.com/tinusleroux/crowdbiz-graph/pkg/routes/health"
	"github.com/tinusleroux/crowdbiz-graph/pkg/routes/imports"
)

type Options struct {
	ServiceName    string
	MaxUploadBytes int64
	Tracing        bool
}

// New builds the HTTP API. checker may be nil.
func New(
	logger ectologger.Logger,
	service *importer.Service,
	deps *departments.Service,
	checker *health.Checker,
	opts Options,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Validator = middleware.NewRequestValidator()

	if opts.Tracing {
		e.Use(otelecho.Middleware(opts.ServiceName))
	}
	e.Use(middleware.Context(), middleware.Logger(logger), middleware.Metrics())

	if checker != nil {
		checker.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	imports.NewHandler(service, opts.MaxUploadBytes).Register(api.Group("/imports"))
	batches.NewHandler(service, logger).Register(api.Group("/batches"))
	departmentroutes.NewHandler(deps).Register(api.Group("/departments"))

	return e
}
