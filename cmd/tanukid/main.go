// Command tanukid is the Tanuki service process: it loads configuration,
// opens the engine, and blocks until signaled to stop. The HTTP+GraphQL
// surface over the engine's RepositoryFacade is owned by an external
// collaborator (spec.md §1, §6) and is out of scope here.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nlfiedler/tanuki/internal/config"
	"github.com/nlfiedler/tanuki/internal/engine"
	"github.com/nlfiedler/tanuki/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tanukid: config:", err)
		return 2
	}

	log, err := logging.New(cfg.LogLevel, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tanukid: logging:", err)
		return 2
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.Open(ctx, cfg, log)
	if err != nil {
		log.Error("tanukid: startup failed", zap.Error(err))
		var startupErr *engine.StartupError
		if errors.As(err, &startupErr) {
			return int(startupErr.Code)
		}
		return 1
	}
	defer eng.Close()

	log.Info("tanukid: ready")
	<-ctx.Done()
	log.Info("tanukid: shutting down")
	return 0
}
