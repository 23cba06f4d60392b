package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autodl-console/internal/apiclient"
	"autodl-console/internal/audit"
	"autodl-console/internal/channel"
	"autodl-console/internal/config"
	"autodl-console/internal/credstore"
	"autodl-console/internal/events"
	"autodl-console/internal/guard"
	"autodl-console/internal/httpapi"
	"autodl-console/internal/notify"
	"autodl-console/internal/token"
	"autodl-console/pkg/logger"
	"autodl-console/pkg/metrics"
	"autodl-console/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if !cfg.IsLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var db *sql.DB
	if cfg.NeedsPostgres() {
		db, err = utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		schema := append(append([]string{}, credstore.Schema...), audit.Schema...)
		if err := utils.EnsureSchema(rootCtx, db, schema...); err != nil {
			log.Error("postgres schema failed", "err", err)
			os.Exit(1)
		}
	}

	var rdb *redis.Client
	if cfg.NeedsRedis() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
	}

	store := newCredStore(cfg, db, rdb)
	auditSvc := audit.NewService(newAuditRepo(cfg, db), cfg.CredStore.Profile)
	codec := token.NewCodec()

	transport, pipe := newTransport(cfg, rdb, store, log)
	ch := channel.New(transport, channel.Options{Logger: log, Metrics: m})

	toasts := notify.NewStore()
	dist := events.NewDistributor(ch, toasts, events.Options{Event: cfg.Events.Name, Logger: log, Metrics: m})

	g := guard.New(store, guard.Options{
		LoginPath:   cfg.Routes.LoginPath,
		DefaultPath: cfg.Routes.DefaultPath,
		Codec:       codec,
		Logger:      log,
		Metrics:     m,
		Audit:       auditSvc,
	})

	api, err := apiclient.New(cfg.API.BaseURL, store, apiclient.Options{Logger: log})
	if err != nil {
		log.Error("api client init failed", "err", err)
		os.Exit(1)
	}

	sess := &httpapi.Session{
		Store:       store,
		Distributor: dist,
		Channel:     ch,
		Notify:      toasts,
		Audit:       auditSvc,
		Codec:       codec,
		Logger:      log,
	}
	h := &httpapi.Handlers{
		Session:     sess,
		API:         api,
		Notify:      toasts,
		Source:      ch,
		EventName:   cfg.Events.Name,
		LoginPath:   cfg.Routes.LoginPath,
		DefaultPath: cfg.Routes.DefaultPath,
		Metrics:     m,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, routeDeps{
		guard:     g,
		handlers:  h,
		registry:  reg,
		channel:   ch,
		db:        db,
		pipe:      pipe,
		eventName: cfg.Events.Name,
	})

	if sess.Resume(rootCtx) {
		log.Info("resumed stored session")
	}

	// Request contexts derive from reqCtx so open event streams end on shutdown.
	reqCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		BaseContext:       func(net.Listener) context.Context { return reqCtx },
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: /events/stream stays open for the life of a view.
		IdleTimeout: 60 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(rootCtx)
	eg.Go(func() error {
		log.Info("console listening", "addr", srv.Addr, "env", cfg.App.Env, "events", cfg.Events.Transport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		cancelRequests()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		if err := ch.Close(); err != nil {
			log.Warn("channel close failed", "err", err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		log.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

func newCredStore(cfg config.Config, db *sql.DB, rdb *redis.Client) credstore.Store {
	switch cfg.CredStore.Backend {
	case config.BackendRedis:
		return credstore.NewRedisStore(rdb, cfg.CredStore.KeyPrefix, cfg.CredStore.Profile)
	case config.BackendPostgres:
		return credstore.NewPostgresStore(db, cfg.CredStore.Profile)
	default:
		return credstore.NewMemoryStore()
	}
}

func newAuditRepo(cfg config.Config, db *sql.DB) audit.Repository {
	if cfg.Audit.Backend == config.BackendPostgres {
		return audit.NewSQLRepo(db)
	}
	return audit.NewMemoryRepo()
}

// newTransport returns the configured transport. The pipe is also returned
// when it is in use so dev routes can feed it.
func newTransport(cfg config.Config, rdb *redis.Client, store credstore.Store, log *slog.Logger) (channel.Transport, *channel.Pipe) {
	switch cfg.Events.Transport {
	case config.TransportRedis:
		return &channel.RedisStreamTransport{Client: rdb, Stream: cfg.Events.Stream}, nil
	case config.TransportPipe:
		p := channel.NewPipe()
		return p, p
	default:
		return &channel.WebSocketTransport{
			URL:    cfg.Events.URL,
			Token:  func(ctx context.Context) string { return credstore.AccessToken(ctx, store) },
			Logger: log,
		}, nil
	}
}
