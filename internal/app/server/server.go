package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"payslip/internal/domain/audit"
	"payslip/internal/domain/auth"
	"payslip/internal/domain/payroll"
	"payslip/internal/platform/config"
	"payslip/internal/platform/crypto"
	"payslip/internal/platform/db"
	"payslip/internal/platform/jobs"
	"payslip/internal/platform/metrics"
	"payslip/internal/platform/redis"
	audithandler "payslip/internal/transport/http/handlers/audit"
	payrollhandler "payslip/internal/transport/http/handlers/payroll"
	"payslip/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Jobs    *jobs.Service
	Payroll *payroll.Service
	Router  http.Handler

	stopJobs context.CancelFunc
}

// New wires the service. Without DATABASE_URL runs and audit events are kept
// in memory, and without REDIS_URL idempotency keys are kept in process.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	app := &App{Config: cfg}

	var store interface {
		payroll.StoreAPI
		jobs.Recorder
	}
	var auditStore audit.Store
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		app.DB = pool
		if cfg.RunMigrations {
			if err := db.Migrate(ctx, pool); err != nil {
				app.Close()
				return nil, fmt.Errorf("migrations: %w", err)
			}
		}
		store = payroll.NewStore(pool)
		auditStore = audit.NewPGStore(pool)
	} else {
		slog.Warn("DATABASE_URL not set, payroll runs are kept in memory")
		store = payroll.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
	}

	var kv middleware.KeyValue = middleware.NewMemoryKeyValue()
	rdb, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		app.Close()
		return nil, err
	}
	if rdb != nil {
		app.Redis = rdb
		kv = redis.NewKeyValue(rdb, "payslip:idempotency:")
	}

	cryptoSvc, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		app.Close()
		return nil, err
	}
	if !cryptoSvc.Configured() {
		slog.Warn("PAYSLIP_ENCRYPTION_KEY not set, payslips are written unencrypted")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)

	app.Payroll = payroll.NewService(store, collector, cfg.PayrollWorkers)
	app.Jobs = jobs.New(store, 0)
	jobCtx, cancel := context.WithCancel(context.Background())
	app.stopJobs = cancel
	app.Jobs.Start(jobCtx, 2)

	auditSvc := audit.New(auditStore)
	payrollHandler := payrollhandler.NewHandler(
		app.Payroll,
		app.Jobs,
		cryptoSvc,
		collector,
		middleware.NewIdempotencyStore(kv, cfg.IdempotencyTTL),
		auditSvc,
		auth.StaticPermissions{},
		payrollhandler.Options{
			Schedule:         cfg.Schedule,
			ContributionRate: cfg.ContributionRate,
			Policy:           cfg.Policy(),
			OutputDir:        cfg.OutputDir,
			RenderPDF:        cfg.RenderPDF,
			RenderWorkers:    cfg.RenderWorkers,
			RenderTimeout:    cfg.RenderTimeout,
			MaxUploadBytes:   cfg.MaxUploadBytes,
		},
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(collector))
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(1<<20, cfg.MaxUploadBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", app.handleReady)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))
		r.Use(middleware.RunSubmissionRateLimit(cfg.RateLimitPerMinute, time.Minute))
		payrollHandler.RegisterRoutes(r)
		audithandler.NewHandler(auditSvc, auth.StaticPermissions{}).RegisterRoutes(r)
	})

	app.Router = router
	return app, nil
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if a.DB != nil {
		if err := a.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Health(ctx); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Close stops the job workers, waits for in-flight renders, fails the runs
// whose renders never started and releases connections.
func (a *App) Close() {
	if a.stopJobs != nil {
		a.stopJobs()
		a.Jobs.Wait()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		a.Jobs.Abandon(ctx, func(ctx context.Context, _, runID string) {
			if err := a.Payroll.MarkStatus(ctx, runID, payroll.RunStatusFailed); err != nil {
				slog.Warn("mark abandoned run failed", "runId", runID, "err", err)
			}
		})
		cancel()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			slog.Warn("redis close failed", "err", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

func Run() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown failed", "err", err)
		}
	}()

	slog.Info("payslip server listening", "addr", cfg.Addr, "env", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "err", err)
	}
}
