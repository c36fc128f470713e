package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	qmdd "github.com/kegliz/qmdd"
	"github.com/kegliz/qmdd/qc/renderer"
)

var internalServerErrorMsg = "Internal Server Error - please contact the administrator"

// HealthHandler is the handler for the /healthz endpoint.
func (a *appServer) HealthHandler(c *gin.Context) {
	l, err := a.getLoggerFromContext(c)
	if err != nil {
		return
	}
	l.Debug().Msg("serving healthz endpoint")
	c.String(http.StatusOK, "OK")
}

// StatsResponse mirrors qmdd.TableStats for the /stats endpoint.
type StatsResponse struct {
	NodeCount      uint64 `json:"node_count"`
	NodeCapacity   uint64 `json:"node_capacity"`
	WeightCount    uint64 `json:"weight_count"`
	WeightCapacity uint64 `json:"weight_capacity"`
	CacheLen       int64  `json:"cache_len"`
	RegisteredEdge int    `json:"registered_edges"`
}

// StatsHandler is the handler for GET /stats: table occupancy and cache
// size (SPEC_FULL.md §6 introspection server).
func (a *appServer) StatsHandler(c *gin.Context) {
	l, err := a.getLoggerFromContext(c)
	if err != nil {
		return
	}
	l.Debug().Msg("serving stats endpoint")

	stats := a.ctx.TableStats()
	a.mu.RLock()
	registered := len(a.registry)
	a.mu.RUnlock()

	c.JSON(http.StatusOK, StatsResponse{
		NodeCount:      stats.NodeCount,
		NodeCapacity:   stats.NodeCapacity,
		WeightCount:    stats.WeightCount,
		WeightCapacity: stats.WeightCapacity,
		CacheLen:       stats.CacheLen,
		RegisteredEdge: registered,
	})
}

// GCResponse reports how many nodes a /gc call freed.
type GCResponse struct {
	Freed uint64 `json:"freed"`
}

// GCHandler is the handler for POST /gc: triggers Context.Collect over
// every registered edge (SPEC_FULL.md §6).
func (a *appServer) GCHandler(c *gin.Context) {
	l, err := a.getLoggerFromContext(c)
	if err != nil {
		return
	}
	l.Debug().Msg("serving gc endpoint")

	a.mu.RLock()
	roots := make([]qmdd.Edge, 0, len(a.registry))
	for _, e := range a.registry {
		roots = append(roots, e)
	}
	a.mu.RUnlock()

	freed := a.ctx.Collect(roots...)
	c.JSON(http.StatusOK, GCResponse{Freed: freed})
}

// ExportDOTHandler is the handler for GET /export/:name/dot: DOT export
// of the registered edge named :name (spec §6 "Persisted state layout").
func (a *appServer) ExportDOTHandler(c *gin.Context) {
	l, err := a.getLoggerFromContext(c)
	if err != nil {
		return
	}
	name := c.Param("name")
	e, ok := a.lookupEdge(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no edge registered under name " + name})
		return
	}
	l.Debug().Str("edge", name).Msg("serving dot export endpoint")

	c.Header("Content-Type", "text/vnd.graphviz")
	if err := renderer.ExportDOT(a.ctx, e, c.Writer); err != nil {
		l.Error().Err(err).Msg("dot export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
	}
}

// ExportPNGHandler is the handler for GET /export/:name/png: PNG export
// of the registered edge named :name.
func (a *appServer) ExportPNGHandler(c *gin.Context) {
	l, err := a.getLoggerFromContext(c)
	if err != nil {
		return
	}
	name := c.Param("name")
	e, ok := a.lookupEdge(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no edge registered under name " + name})
		return
	}
	l.Debug().Str("edge", name).Msg("serving png export endpoint")

	c.Header("Content-Type", "image/png")
	if err := renderer.ExportPNG(a.ctx, e, c.Writer, 80); err != nil {
		l.Error().Err(err).Msg("png export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
	}
}
