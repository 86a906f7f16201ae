package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hibiki-ai/hibiki-go/pkg/core"
	"github.com/hibiki-ai/hibiki-go/pkg/metrics"
	"github.com/hibiki-ai/hibiki-go/pkg/observability"
	"github.com/hibiki-ai/hibiki-go/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON or YAML config file (default: environment)")
	addr := flag.String("addr", envOrDefault("HIBIKI_ADDR", ":8080"), "listen address")
	shutdownTimeout := flag.Duration("shutdown-timeout", 15*time.Second, "graceful shutdown timeout")
	flag.Parse()

	log := observability.WithFields("component", "hibiki-server")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error("config error", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, *addr, *shutdownTimeout, log)
	stop()
	if err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// run serves the API on addr until ctx is done or the listener fails.
// The client is closed before run returns in both cases.
func run(ctx context.Context, cfg *core.Config, addr string, shutdownTimeout time.Duration, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("hibiki", reg)

	client, err := core.NewClient(cfg, core.WithObserver(m))
	if err != nil {
		return fmt.Errorf("client init: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Warn("client close failed", "error", err)
		}
	}()

	api := server.New(client, metrics.Handler(reg))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", addr, "store", cfg.VectorStore.Provider, "persona", client.PersonaName())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	log.Info("shutdown complete")
	return nil
}

func loadConfig(path string) (*core.Config, error) {
	if path == "" {
		return core.LoadConfigFromEnv()
	}
	return core.LoadConfigFromFile(path)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
