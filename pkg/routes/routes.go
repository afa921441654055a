// Package routes assembles the HTTP review API
package routes

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fictotum/internal/platform/middleware"
	"github.com/Ramsey-B/fictotum/pkg/graph"
	"github.com/Ramsey-B/fictotum/pkg/importer"
	"github.com/Ramsey-B/fictotum/pkg/matching"
	"github.com/Ramsey-B/fictotum/pkg/merging"
	"github.com/Ramsey-B/fictotum/pkg/resolution"
	"github.com/Ramsey-B/fictotum/pkg/routes/entity"
	"github.com/Ramsey-B/fictotum/pkg/routes/health"
	"github.com/Ramsey-B/fictotum/pkg/routes/imports"
	"github.com/Ramsey-B/fictotum/pkg/routes/match"
	"github.com/Ramsey-B/fictotum/pkg/routes/merges"
	"github.com/Ramsey-B/fictotum/pkg/routes/resolutions"
	"github.com/Ramsey-B/fictotum/pkg/routes/validation"
)

// Dependencies are the services the API exposes
type Dependencies struct {
	ServiceName  string
	AllowOrigins []string
	Logger       ectologger.Logger

	Health      *health.Checker
	Graph       graph.Store
	Matcher     *matching.Matcher
	Coordinator *importer.Coordinator
	Engine      *merging.Engine
	Decisions   resolution.Store

	ImportDefaults importer.Options
	MergeDefaults  merging.Options
}

// New builds the echo server with middleware and every route registered
func New(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(deps.Logger)

	e.Use(echomw.Recover())
	if len(deps.AllowOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: deps.AllowOrigins}))
	}
	if deps.ServiceName != "" {
		e.Use(otelecho.Middleware(deps.ServiceName))
	}
	e.Use(middleware.Context())
	e.Use(middleware.Logger(deps.Logger))

	if deps.Health != nil {
		deps.Health.RegisterRoutes(e)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	match.NewHandler(deps.Matcher).Register(api)
	imports.NewHandler(deps.Coordinator, deps.ImportDefaults).Register(api)
	merges.NewHandler(deps.Engine, deps.MergeDefaults).Register(api)
	resolutions.NewHandler(deps.Decisions).Register(api)
	entity.NewHandler(deps.Graph).Register(api)
	validation.NewHandler().Register(api)

	return e
}
