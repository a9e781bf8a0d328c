package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/imis-health/casetracker/internal/institution"
	"github.com/imis-health/casetracker/internal/kurrentdb"
	"github.com/imis-health/casetracker/internal/patient/api"
	"github.com/imis-health/casetracker/internal/patient/domain"
	"github.com/imis-health/casetracker/internal/patient/infrastructure"
	"github.com/imis-health/casetracker/internal/patient/service"
	"github.com/imis-health/casetracker/internal/shared/auth"
	"github.com/imis-health/casetracker/internal/shared/config"
	"github.com/imis-health/casetracker/internal/shared/database"
	"github.com/imis-health/casetracker/internal/shared/logging"
	"github.com/imis-health/casetracker/internal/shared/metrics"
	secmiddleware "github.com/imis-health/casetracker/internal/shared/middleware"
)

type serveOptions struct {
	migrate bool
	memory  bool
}

// App holds all application dependencies
type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *database.DB
	Registry  *institution.SQLServerDirectory
	Publisher *kurrentdb.Publisher
}

func runServer(ctx context.Context, cfg *config.Config, opts serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := logging.New(cfg.Log.Level, cfg.IsDev())
	app := &App{Config: cfg, Logger: logger}

	var (
		store     domain.Store
		directory institution.Directory
	)

	if opts.memory {
		if !cfg.IsDev() {
			return fmt.Errorf("--memory is only allowed in development")
		}
		logger.Warn().Msg("running with in-memory storage, data is lost on exit")
		store = infrastructure.NewMemoryStore()
		directory = institution.NewMemoryDirectory()
	} else {
		db, err := database.New(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("database not available: %w", err)
		}
		app.DB = db
		defer db.Close()

		if opts.migrate {
			applied, err := database.Migrate(ctx, db.Pool, logger)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info().Strs("versions", applied).Msg("migrations applied")
		}

		store = infrastructure.NewPostgresStore(db.Pool)
		directory = institution.NewPostgresDirectory(db.Pool)
	}

	if cfg.Directory.Driver == "sqlserver" {
		registry, err := institution.OpenSQLServer(ctx, cfg.Directory.SQLServerDSN)
		if err != nil {
			return fmt.Errorf("institution registry not available: %w", err)
		}
		app.Registry = registry
		defer registry.Close()
		directory = registry
		logger.Info().Msg("resolving institutions from the SQL Server registry")
	}

	svcOpts := []service.Option{}
	if cfg.KurrentDB.Enabled {
		client, err := kurrentdb.NewClient(kurrentdb.FromConfig(cfg.KurrentDB))
		if err != nil {
			// The ledger in Postgres is authoritative; run without the mirror.
			logger.Warn().Err(err).Msg("KurrentDB not available, ledger mirror disabled")
		} else {
			defer client.Close()
			app.Publisher = kurrentdb.NewPublisher(client)
			svcOpts = append(svcOpts, service.WithMirror(infrastructure.NewKurrentDBMirror(app.Publisher)))
			logger.Info().Str("host", cfg.KurrentDB.Host).Int("port", cfg.KurrentDB.Port).Msg("ledger mirror enabled")
		}
	}

	svc := service.New(store, directory, cfg.Query, logger, svcOpts...)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(secmiddleware.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(secmiddleware.CORS(secmiddleware.DefaultCORSConfig()))
	r.Use(secmiddleware.InputSanitizer(10 << 20))
	r.Use(metrics.Middleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	limiter := secmiddleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	patientHandler := api.NewHandler(svc, logger)
	institutionHandler := institution.NewHandler(directory, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Middleware)
		if cfg.Auth.Enabled {
			r.Use(auth.Middleware(cfg.Auth))
		}

		r.Mount("/", institutionHandler.Routes())
		r.Mount("/patients", patientHandler.Routes())
		r.Mount("/exposure-contacts", patientHandler.ExposureContactRoutes())
		if cfg.Auth.Enabled {
			r.With(auth.RequireInstitutionTypes(string(institution.TypeLaboratory))).
				Mount("/labtests", patientHandler.LabTestRoutes())
		} else {
			r.Mount("/labtests", patientHandler.LabTestRoutes())
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("shutting down server")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
		close(done)
	}()

	logger.Info().
		Str("env", cfg.Server.Env).
		Int("port", cfg.Server.Port).
		Bool("auth", cfg.Auth.Enabled).
		Str("directory", cfg.Directory.Driver).
		Msg("server starting")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info().Msg("server stopped")
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		check := func(name string, configured bool, ping func(context.Context) error) {
			if !configured {
				checks[name] = "not configured"
				return
			}
			if err := ping(r.Context()); err != nil {
				checks[name] = "not ready: " + err.Error()
				return
			}
			checks[name] = "ready"
		}

		check("database", app.DB != nil, func(ctx context.Context) error { return app.DB.Health(ctx) })
		check("registry", app.Registry != nil, func(ctx context.Context) error { return app.Registry.Ping(ctx) })
		check("kurrentdb", app.Publisher != nil, func(ctx context.Context) error { return app.Publisher.Health(ctx) })

		if app.DB != nil {
			metrics.RecordDBConnections(int(app.DB.Pool.Stat().AcquiredConns()))
		}

		// The mirror is best-effort; only the stores gate readiness.
		allReady := true
		for name, status := range checks {
			if name == "kurrentdb" {
				continue
			}
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}
