package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postsdemo/internal/config"
	"postsdemo/internal/posts"
	"postsdemo/internal/query"
	"postsdemo/internal/telemetry"
	"postsdemo/internal/web"
	"postsdemo/internal/web/appcore"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatalf("telemetry setup failed: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	queries := query.NewClient(query.Config{
		StaleTime: cfg.QueryStaleTime,
		GCTime:    cfg.QueryGCTime,
		Observer: query.ObserverFunc(func(_ context.Context, event query.Event) {
			if event.Kind == query.EventError {
				logger.Printf("query %s failed after %s: %v", event.Key, event.Duration, event.Err)
			}
		}),
	})
	appCtx := appcore.NewContext(queries, posts.NewClient(cfg, logger))

	handler, err := web.NewHandler(cfg, appCtx, logger)
	if err != nil {
		log.Fatalf("handler setup failed: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	log.Printf("posts server listening on %s", cfg.ListenAddr)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown http server: %v", err)
		}
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server stopped: %v", err)
		}
	}
}
