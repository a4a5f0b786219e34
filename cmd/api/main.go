package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/nyumbahub/rentals/docs"
	"github.com/nyumbahub/rentals/internal/app"
	"github.com/nyumbahub/rentals/internal/config"
	"github.com/nyumbahub/rentals/internal/database"
	"github.com/nyumbahub/rentals/internal/lease"
	"github.com/nyumbahub/rentals/internal/notification"
	"github.com/nyumbahub/rentals/internal/payment"
	"github.com/nyumbahub/rentals/internal/scheduler"
	mw "github.com/nyumbahub/rentals/pkg/middleware"
)

// @title                      Nyumba Rentals API
// @version                    1.0
// @description                Lease lifecycle, rent obligations and payment ledger for rental units.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	logger := app.NewLogger(cfg)

	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to database successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	a, err := app.New(cfg, db, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	a.Queue.Start(context.Background())

	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled {
		sched, err = scheduler.New(a.Jobs, cfg.Schedule, logger)
		if err != nil {
			logger.Fatalf("Failed to configure scheduler: %v", err)
		}
		sched.Start()
	}

	leaseHandler := lease.NewHandler(a.Leases)
	paymentHandler := payment.NewHandler(a.Payments)
	notificationHandler := notification.NewHandler(a.Notifications)
	jobsHandler := scheduler.NewHandler(a.Jobs)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.DevAuth {
			logger.Warn("DEV_AUTH enabled: callers are taken from X-Test-User headers")
			r.Use(mw.TestUserMiddleware)
		} else {
			r.Use(mw.AuthMiddleware(cfg.JWTSecret))
		}

		r.Mount("/leases", leaseHandler.Routes(func(r chi.Router) {
			r.Get("/{id}/payments", paymentHandler.ListByLease)
		}))
		r.Mount("/payments", paymentHandler.Routes())
		r.Mount("/notifications", notificationHandler.Routes())
		r.Mount("/jobs", jobsHandler.Routes())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	a.Queue.Stop()
}
