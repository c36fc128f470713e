// Command qmddserver runs the QMDD introspection HTTP server (SPEC_FULL.md
// §6): /healthz, /stats, POST /gc, and /export/:name/{dot,png} over a
// server-side Context seeded with a couple of named demonstration edges.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	qmdd "github.com/kegliz/qmdd"
	"github.com/kegliz/qmdd/internal/app"
	"github.com/kegliz/qmdd/internal/config"
	"github.com/kegliz/qmdd/internal/server"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "qmddserver:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile = flag.String("config", "", "config file name without extension, searched in -config-path")
		configPath = flag.String("config-path", ".", "directory to search for the config file")
	)
	flag.Parse()

	c, err := config.Load(config.Options{FileName: *configFile, Path: *configPath})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	norm := qmdd.NormLargest
	if c.NormStrategy() == "low" {
		norm = qmdd.NormLow
	}

	ctx, err := qmdd.New(qmdd.Options{
		NodeCapacity:   c.GetUint64("node_capacity"),
		WeightCapacity: c.GetUint64("weight_capacity"),
		CacheCapacity:  c.GetUint64("cache_capacity"),
		Tolerance:      c.GetFloat64("tolerance"),
		NormStrategy:   norm,
		Debug:          c.GetBool("debug"),
	})
	if err != nil {
		return fmt.Errorf("building qmdd context: %w", err)
	}
	defer ctx.Shutdown()

	srv, err := app.NewServer(app.ServerOptions{C: c, Version: version, Ctx: ctx})
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}
	seedDemoEdges(srv, ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(c.GetInt("port"), c.GetBool("localonly"))
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func seedDemoEdges(srv server.Server, ctx *qmdd.Context) {
	bell, err := ctx.AllZeroState(2)
	if err != nil {
		return
	}
	bell, err = ctx.Gate(bell, qmdd.H, 0)
	if err != nil {
		return
	}
	bell, err = ctx.CGate(bell, qmdd.X, 0, 1)
	if err != nil {
		return
	}
	srv.RegisterEdge("bell", bell)

	h, err := ctx.AllZeroState(1)
	if err != nil {
		return
	}
	h, err = ctx.Gate(h, qmdd.H, 0)
	if err != nil {
		return
	}
	srv.RegisterEdge("plus", h)
}
