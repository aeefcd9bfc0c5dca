package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	natsgo "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nodeflow/api/pkg/config"
	"nodeflow/api/pkg/db"
	"nodeflow/api/pkg/logging"
	"nodeflow/api/services/jobs"
	"nodeflow/api/services/realtime"
	"nodeflow/api/services/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout))

	if err := run(cfg); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, db.Config{
		URI:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	// Initialize database schema and seed data
	if err := workflow.InitDB(ctx, pool); err != nil {
		return err
	}
	repo := workflow.NewRepository(pool)

	hub := realtime.NewHub(32)
	var publisher realtime.Publisher = hub

	var nc *natsgo.Conn
	if cfg.NATSURL != "" {
		nc, err = natsgo.Connect(cfg.NATSURL,
			natsgo.Name("nodeflow-api"),
			natsgo.MaxReconnects(-1),
			natsgo.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return err
		}
		defer nc.Drain()

		// Status events go through NATS so every replica's hub sees them.
		if _, err := realtime.Relay(nc, hub); err != nil {
			return err
		}
		publisher = realtime.NewNATSPublisher(nc)
		slog.Info("Connected to NATS", "url", cfg.NATSURL)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry := workflow.NewRegistry(workflow.NewHTTPClient(cfg.HTTPTimeout))
	engine := workflow.NewEngine(repo, repo, registry, publisher, workflow.NewMetrics(reg))

	runner := jobs.NewRunner(jobs.RetryPolicy{
		MaxAttempts: cfg.Jobs.MaxAttempts,
		BaseDelay:   cfg.Jobs.BaseDelay,
		MaxDelay:    cfg.Jobs.MaxDelay,
		Jitter:      true,
	})
	engine.Register(runner)

	local := jobs.NewLocalQueue(runner, cfg.Jobs.Workers, cfg.Jobs.QueueSize)
	local.Start(ctx)
	defer local.Close()

	var client jobs.Client = local
	if nc != nil {
		queue := jobs.NewNATSQueue(nc, local)
		if err := queue.Listen(ctx, workflow.ExecuteEventName); err != nil {
			return err
		}
		defer queue.Close()
		client = queue
	}

	// setup router
	mainRouter := mux.NewRouter()
	apiRouter := mainRouter.PathPrefix("/api/v1").Subrouter()

	workflow.NewService(repo, client).LoadRoutes(apiRouter)
	realtime.NewHandler(hub).LoadRoutes(apiRouter)

	mainRouter.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods("GET")
	mainRouter.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(mainRouter)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)

	go func() {
		slog.Info("Starting server", "addr", cfg.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}

	case sig := <-shutdown:
		slog.Info("Shutdown signal received", "signal", sig)

		shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer stop()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Could not stop server gracefully", "error", err)
			srv.Close()
		}
	}
	return nil
}
