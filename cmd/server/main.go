package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/quizlab/adaptive-backend/internal/assessment"
	"github.com/quizlab/adaptive-backend/internal/auth"
	"github.com/quizlab/adaptive-backend/internal/cache"
	"github.com/quizlab/adaptive-backend/internal/config"
	"github.com/quizlab/adaptive-backend/internal/database"
	"github.com/quizlab/adaptive-backend/internal/generator"
	"github.com/quizlab/adaptive-backend/internal/logger"
	"github.com/quizlab/adaptive-backend/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	// Initialize database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}
	if version, dirty, err := database.MigrationVersion(db); err == nil {
		log.Info("database ready", "schema_version", version, "dirty", dirty)
	}

	// Initialize services
	gen := generator.NewGenerator(cfg.Generator, log.With("component", "generator"))
	assessmentService := assessment.NewService(assessment.NewStore(db), gen, cfg.Assessment, log)

	var pools *cache.PoolCache
	if cfg.Cache.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pools, err = cache.New(ctx, cfg.Cache.URL, cfg.Cache.PoolTTL)
		cancel()
		if err != nil {
			log.Warn("item pool cache unavailable, continuing without it", "error", err)
		} else {
			defer pools.Close()
			assessmentService.SetPoolCache(pools)
			log.Info("item pool cache enabled", "ttl", cfg.Cache.PoolTTL)
		}
	}

	tokens := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authHandler := auth.NewHandler(auth.NewPostgresStore(db), tokens, log.With("component", "auth"))
	assessmentHandler := assessment.NewHandler(assessmentService, log.With("component", "http"))

	// Setup router
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(log))
	api := r.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/auth/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	// Admin routes
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdminKey(cfg.Auth.AdminKey))

	// Protected routes
	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.Auth(tokens))
	protected.HandleFunc("/auth/me", authHandler.GetCurrentStudent).Methods("GET")

	assessmentHandler.RegisterRoutes(protected, admin)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := `{"status":"ok"}`
		if err := db.PingContext(r.Context()); err != nil {
			status, body = http.StatusServiceUnavailable, `{"status":"database unavailable"}`
		} else if pools != nil {
			if err := pools.HealthCheck(r.Context()); err != nil {
				body = `{"status":"degraded","cache":"unavailable"}`
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.AdminKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
