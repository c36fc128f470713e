// Package app adapts the teacher's gin app-server wiring
// (kegliz-qplay's internal/app) into the introspection HTTP surface of
// SPEC_FULL.md §6: liveness, table stats, GC trigger, and DOT/PNG export
// of server-side registered QMDD edges. Business logic stays in the
// qmdd façade; this package registers no behavior beyond calling
// Context methods.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	qmdd "github.com/kegliz/qmdd"
	"github.com/kegliz/qmdd/internal/config"
	"github.com/kegliz/qmdd/internal/logger"
	"github.com/kegliz/qmdd/internal/server"
	"github.com/kegliz/qmdd/internal/server/router"
)

type (
	// ServerOptions configures NewServer: the viper-backed Config and a
	// pre-built qmdd.Context whose edges the server exposes.
	ServerOptions struct {
		C       *config.Config
		Version string
		Ctx     *qmdd.Context
	}

	appServer struct {
		logger  *logger.Logger
		router  *router.Router
		ctx     *qmdd.Context
		version string

		mu       sync.RWMutex
		registry map[string]qmdd.Edge
	}

	appServerOptions struct {
		logger  *logger.Logger
		router  *router.Router
		ctx     *qmdd.Context
		version string
	}
)

// newAppServer creates a new appServer.
func newAppServer(options appServerOptions) *appServer {
	a := &appServer{
		logger:   options.logger,
		router:   options.router,
		ctx:      options.ctx,
		version:  options.version,
		registry: make(map[string]qmdd.Edge),
	}
	a.router.MountIntrospection(router.IntrospectionHandlers{
		Health:    a.HealthHandler,
		Stats:     a.StatsHandler,
		GC:        a.GCHandler,
		ExportDOT: a.ExportDOTHandler,
		ExportPNG: a.ExportPNGHandler,
	})
	return a
}

// RegisterEdge names e so it can be fetched by the /stats and /export
// endpoints. Overwrites any previous edge registered under name.
func (a *appServer) RegisterEdge(name string, e qmdd.Edge) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.registry[name] = e
}

func (a *appServer) lookupEdge(name string) (qmdd.Edge, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.registry[name]
	return e, ok
}

// Listen implements server.Server.
func (a *appServer) Listen(port int, localOnly bool) error {
	a.logger.Debug().Str("version", a.version).Msg("debug qmdd introspection server")
	a.logger.Info().
		Int("port", port).
		Bool("localOnly", localOnly).
		Msg("starting qmdd introspection service")
	return a.router.Start(port, localOnly)
}

// Shutdown implements server.Server.
func (a *appServer) Shutdown(ctx context.Context) error {
	return a.router.Shutdown(ctx)
}

// NewServer builds the introspection HTTP surface over a pre-built
// qmdd.Context (SPEC_FULL.md §6).
func NewServer(options ServerOptions) (server.Server, error) {
	l, r := server.NewLoggerAndRouter(server.EngineOptions{
		Debug: options.C.GetBool("debug"),
	})
	app := newAppServer(appServerOptions{
		logger:  l,
		router:  r,
		ctx:     options.Ctx,
		version: options.Version,
	})

	return app, nil
}

func (a *appServer) getLoggerFromContext(c *gin.Context) (*logger.Logger, error) {
	if loggerInstance, ok := c.Get("logger"); ok {
		if loggerInstance, ok := loggerInstance.(*logger.Logger); ok {
			return loggerInstance, nil
		}
	}
	err := errors.New("logger not found in context")
	a.logger.Error().Err(err).Send()
	c.String(http.StatusInternalServerError, internalServerErrorMsg)
	return nil, err
}
