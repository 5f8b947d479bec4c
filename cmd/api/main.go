package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calorie-coach/internal/audit"
	"calorie-coach/internal/auth"
	"calorie-coach/internal/calllog"
	"calorie-coach/internal/config"
	"calorie-coach/internal/metrics"
	"calorie-coach/internal/pin"
	"calorie-coach/internal/ratelimit"
	"calorie-coach/internal/telephony"
	"calorie-coach/internal/transcript"
	"calorie-coach/internal/workflow"
	"calorie-coach/pkg/logger"
	"calorie-coach/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

const limiterSweepInterval = time.Minute

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn(".env load failed", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	forwarder, closeForwarder, err := newForwarder(cfg.Workflow)
	if err != nil {
		log.Error("workflow forwarder init failed", "transport", cfg.Workflow.Transport, "err", err)
		os.Exit(1)
	}
	defer closeForwarder()

	store := calllog.NewPostgresStore(db, pin.NewVerifier())
	d := deps{
		cfg:       cfg,
		auth:      authManager,
		store:     store,
		lifecycle: calllog.NewLifecycle(store),
		audit:     audit.NewService(audit.NewPostgresRepo(db)),
		metrics:   metrics.New(),
		forwarder: forwarder,
		dedup:     transcript.NewRedisDeduper(rdb, cfg.Workflow.Timeout),
		attempts:  pin.NewAttemptLimiter(cfg.Limits.PINAttemptsPerMinute),
		webhookLimiter: ratelimit.NewIPLimiter(ratelimit.Config{
			Rate:  rate.Limit(cfg.Limits.WebhookRPS),
			Burst: cfg.Limits.WebhookBurst,
		}),
		readiness: map[string]func(ctx context.Context) error{
			"db": func(ctx context.Context) error { return store.Ping(ctx) },
			"redis": func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		},
	}

	go sweepLimiters(rootCtx, d.attempts, d.webhookLimiter)

	// Gin router
	r := gin.New()
	r.Use(logger.Middleware(log))
	r.Use(d.metrics.Middleware())
	r.Use(gin.CustomRecovery(func(c *gin.Context, rec any) {
		logger.FromGin(c).Error("handler panic", "panic", rec)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))

	registerRoutes(r, d)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "workflow_transport", cfg.Workflow.Transport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// newForwarder builds the transcript forwarder for the configured transport.
// The returned close func is never nil.
func newForwarder(cfg config.WorkflowConfig) (workflow.Forwarder, func(), error) {
	switch cfg.Transport {
	case config.WorkflowTransportAMQP:
		conn, err := workflow.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, func() {}, err
		}
		fwd := workflow.NewAMQPForwarder(conn.Ch, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		return fwd, func() { _ = conn.Close() }, nil
	case config.WorkflowTransportHTTP, "":
		return workflow.NewHTTPForwarder(cfg.WebhookURL, cfg.Timeout), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown workflow transport %q", cfg.Transport)
	}
}

func sweepLimiters(ctx context.Context, attempts *pin.AttemptLimiter, ips *ratelimit.IPLimiter) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			attempts.Sweep()
			if n := ips.Sweep(); n > 0 {
				slog.Debug("webhook rate limiter cleanup", "removed", n)
			}
		}
	}
}

// deps are the process-wide handles built once from Config.
type deps struct {
	cfg            config.Config
	auth           *auth.Manager
	store          calllog.Store
	lifecycle      *calllog.Lifecycle
	audit          *audit.Service
	metrics        *metrics.Metrics
	forwarder      workflow.Forwarder
	dedup          transcript.Deduper
	attempts       *pin.AttemptLimiter
	webhookLimiter *ratelimit.IPLimiter
	readiness      map[string]func(ctx context.Context) error
}

func (d deps) handoffBuilder() telephony.HandoffBuilder {
	return telephony.HandoffBuilder{
		StreamURL:       d.cfg.Agent.StreamURL,
		AgentID:         d.cfg.Agent.AgentID,
		AgentCredential: d.cfg.Agent.APIKey,
		WebhookURL:      d.cfg.AgentWebhookURL(),
	}
}
