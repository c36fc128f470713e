package server

import (
	"context"

	qmdd "github.com/kegliz/qmdd"
	"github.com/kegliz/qmdd/internal/logger"
	"github.com/kegliz/qmdd/internal/server/router"
)

type (
	EngineOptions struct {
		Debug bool
	}

	// Server is the introspection HTTP surface over a qmdd.Context: start
	// it, stop it, and name edges so /stats and /export can find them.
	Server interface {
		Listen(port int, localOnly bool) error
		Shutdown(ctx context.Context) error
		RegisterEdge(name string, e qmdd.Edge)
	}
)

func NewLoggerAndRouter(options EngineOptions) (l *logger.Logger, r *router.Router) {
	l = logger.NewLogger(logger.LoggerOptions{
		Debug: options.Debug,
	})
	r = router.NewRouter(router.RouterOptions{
		Logger: l,
	})
	return
}
