package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/quantbt-lab/quantbt/internal/api"
	"github.com/quantbt-lab/quantbt/internal/backtest/service"
	"github.com/quantbt-lab/quantbt/internal/backtest/store"
	"github.com/quantbt-lab/quantbt/internal/logger"
	"github.com/quantbt-lab/quantbt/internal/strategy"
)

// serverAction wires the service and serves the HTTP API until interrupted.
func serverAction(ctx context.Context, cmd *cli.Command) error {
	zapLog, err := logger.NewLogger()
	if err != nil {
		return err
	}
	defer zapLog.Sync()

	var resultStore store.Store

	dbPath := cmd.String("db")
	if dbPath != "" {
		resultStore, err = store.NewDuckDBStore(dbPath)
		if err != nil {
			return err
		}
	} else {
		resultStore = store.NewMemoryStore()
	}
	defer resultStore.Close()

	svc := service.NewService(service.Config{
		MaxConcurrentRuns: cmd.Int("max-concurrent"),
		RunTimeout:        cmd.Duration("run-timeout"),
	}, strategy.NewDefaultRegistry(), service.NewFileFeedResolver(zapLog), resultStore, zapLog)

	addr := cmd.String("addr")
	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(svc, zapLog),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", addr))

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
	}

	zapLog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	svc.Wait()

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "server",
		Usage: "Serve the backtest API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address",
				Value: ":8080",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "DuckDB result store path (in-memory store when empty)",
			},
			&cli.IntFlag{
				Name:  "max-concurrent",
				Usage: "Maximum concurrent backtest runs",
				Value: service.DefaultMaxConcurrentRuns,
			},
			&cli.DurationFlag{
				Name:  "run-timeout",
				Usage: "Per-run wall clock budget (0 disables)",
			},
		},
		Action: serverAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
