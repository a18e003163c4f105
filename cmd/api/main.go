package main

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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/geocoder89/sevico/internal/auth"
	"github.com/geocoder89/sevico/internal/config"
	"github.com/geocoder89/sevico/internal/db"
	"github.com/geocoder89/sevico/internal/domain/user"
	httpx "github.com/geocoder89/sevico/internal/http"
	"github.com/geocoder89/sevico/internal/notifications"
	"github.com/geocoder89/sevico/internal/observability"
	"github.com/geocoder89/sevico/internal/queue/redisclient"
	"github.com/geocoder89/sevico/internal/queue/redisqueue"
	"github.com/geocoder89/sevico/internal/repo/memory"
	"github.com/geocoder89/sevico/internal/repo/mongodb"
	"github.com/geocoder89/sevico/internal/repo/postgres"
	"github.com/geocoder89/sevico/internal/security"
	"github.com/geocoder89/sevico/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName, cfg.Tracing.Endpoint)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(tctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	users, closeStore, err := openStore(ctx, cfg, prom, log)
	if err != nil {
		return err
	}
	defer closeStore()

	transport, err := notifications.NewTransport(ctx, cfg.Email, log)
	if err != nil {
		return err
	}

	var retryQueue notifications.Enqueuer
	if cfg.Redis.Addr != "" {
		rc, err := redisclient.Connect(ctx, redisclient.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			return err
		}
		defer rc.Close()

		retryQueue = redisqueue.New(rc.Raw(), redisqueue.Config{}, prom)
	} else {
		log.Warn("redis not configured, failed emails will not be retried")
	}

	notifier := notifications.NewDispatcher(transport, retryQueue, prom, log, cfg.Worker.MaxAttempts)

	svc := service.NewAuthService(
		users,
		security.NewHasher(bcrypt.DefaultCost),
		auth.NewManager(cfg.JWT.Secret),
		notifier,
		service.Config{
			AccessTokenTTL:      cfg.AccessTokenTTL(),
			VerificationCodeTTL: cfg.VerificationCodeTTL(),
			PasswordResetTTL:    cfg.PasswordResetTTL(),
		},
		service.WithLogger(log),
	)

	router := httpx.NewRouter(httpx.RouterDeps{
		Config: cfg,
		Logger: log,
		Auth:   svc,
		Prom:   prom,
		Ping:   users.Ping,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.Store.Driver, "transport", cfg.Email.Transport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("server shutting down")

		sctx, cancel := config.WithTimeout(shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("shutdown complete")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, prom *observability.Prom, log *slog.Logger) (user.Store, func(), error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		if cfg.DB.AutoMigrate {
			if err := db.Migrate(cfg.DB.URL()); err != nil {
				return nil, nil, err
			}
			log.Info("migrations applied")
		}

		pool, err := db.NewPool(ctx, cfg.DB.URL(), cfg.DB.MaxConns, log)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewUsersRepo(pool, prom), pool.Close, nil

	case config.StoreMongo:
		client, err := db.NewMongoClient(ctx, cfg.Mongo.URI(), log)
		if err != nil {
			return nil, nil, err
		}

		repo := mongodb.NewUsersRepo(client.Database(cfg.Mongo.DBName), prom)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}

		closeFn := func() {
			dctx, cancel := config.WithTimeout(5 * time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}
		return repo, closeFn, nil

	default:
		log.Warn("using in-memory user store, data is lost on restart")
		return memory.NewUsersRepo(), func() {}, nil
	}
}
