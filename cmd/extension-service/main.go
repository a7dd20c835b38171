// cmd/extension-service/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chartex/internal/extension"
	"chartex/pkg/audit"
	"chartex/pkg/config"
	"chartex/pkg/credentials"
	"chartex/pkg/db"
	"chartex/pkg/descriptor"
	"chartex/pkg/events"
	"chartex/pkg/lifecycle"
	"chartex/pkg/logger"
	"chartex/pkg/middleware"
	"chartex/pkg/platform"
	"chartex/pkg/policy"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env, "extension-service")
	defer func() { _ = log.Sync() }()

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	var rec audit.Recorder
	if pool != nil {
		rec = audit.NewPostgres(pool, log)
	} else {
		rec = audit.NewLog(log)
	}
	var cache credentials.Cache
	if rdb != nil {
		cache = credentials.NewRedisCache(rdb, log)
	}

	svc := platform.NewServiceClient(cfg.APIURL, cfg.APIKey, platform.WithTimeout(cfg.ExchangeTimeout))
	creds := credentials.NewResolver(credentials.Options{
		APIURL:    cfg.APIURL,
		ServiceID: cfg.ServiceID,
		GrantTTL:  cfg.GrantTTL,
		Retries:   cfg.ExchangeRetries,
	}, svc, cache, rec, log)

	pol, err := policy.Load(context.Background(), cfg.PolicyPath)
	if err != nil {
		log.Fatalw("policy", "err", err)
	}

	reg := events.NewRegistry()
	handlers := extension.NewEventHandlers(log, pol)
	if err := handlers.Register(reg); err != nil {
		log.Fatalw("event registry", "err", err)
	}
	dispatcher := events.NewDispatcher(reg, creds, log)

	desc, err := descriptor.Load(cfg.DescriptorPath)
	if err != nil {
		log.Fatalw("descriptor", "err", err)
	}
	if err := desc.ValidateHandlers(reg.Types()); err != nil {
		log.Fatalw("descriptor", "err", err)
	}

	hooks := lifecycle.New(log, cfg.DrainGrace)
	if pool != nil {
		hooks.OnStartup("audit schema", func(ctx context.Context) error {
			return audit.EnsureSchema(ctx, pool)
		})
	}
	hooks.OnShutdown("drain events", dispatcher.Drain)
	if rdb != nil {
		hooks.OnShutdown("close redis", func(context.Context) error { return rdb.Close() })
	}
	if pool != nil {
		hooks.OnShutdown("close postgres", func(context.Context) error { pool.Close(); return nil })
	}

	if err := hooks.Startup(context.Background()); err != nil {
		log.Fatalw("startup", "err", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Metrics())
	r.Use(middleware.Tracing("extension-service"))
	r.Use(middleware.Timing(log, middleware.TimingConfig{
		Level:     cfg.TimingLevel,
		Threshold: cfg.TimingThreshold,
	}))
	r.Use(middleware.PlatformAuth(cfg))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/api/events", events.HTTPHandler(dispatcher))
	webapp := extension.NewWebApp(creds, log)
	webapp.Routes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Infow("extension-service listening", "addr", cfg.HTTPAddr, "descriptor", desc.Name)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DrainGrace)
	defer cancel()
	_ = srv.Shutdown(ctx)
	hooks.Shutdown(context.Background())
	log.Infow("extension-service stopped")
}
