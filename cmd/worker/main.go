package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/geocoder89/sevico/internal/config"
	"github.com/geocoder89/sevico/internal/notifications"
	"github.com/geocoder89/sevico/internal/observability"
	"github.com/geocoder89/sevico/internal/queue/redisclient"
	"github.com/geocoder89/sevico/internal/queue/redisqueue"
	"github.com/geocoder89/sevico/internal/queue/worker"
)

const deadLetterPageSize = 50

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("worker exited", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Redis.Addr == "" {
		return errors.New("REDIS_ADDR is required by the worker")
	}

	log := observability.NewLogger(cfg.Env).With("component", "worker")
	slog.SetDefault(log)

	shutdownTracer, err := observability.InitTracer(ctx, cfg.ServiceName+" worker", cfg.Tracing.Endpoint)
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

	rc, err := redisclient.Connect(ctx, redisclient.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
	if err != nil {
		return err
	}
	defer rc.Close()

	queue := redisqueue.New(rc.Raw(), redisqueue.Config{}, prom)

	transport, err := notifications.NewTransport(ctx, cfg.Email, log)
	if err != nil {
		return err
	}

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		PollInterval: cfg.Worker.PollInterval,
		WorkerID:     workerID,
		Concurrency:  cfg.Worker.Concurrency,
		JobTimeout:   cfg.Email.SendTimeout * 2,
	}, queue, transport, log, prom)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.HealthPort),
		Handler:           opsRouter(w, queue, prom),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.Run(gctx)
	})

	g.Go(func() error {
		log.Info("worker health server starting", "port", cfg.Worker.HealthPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		sctx, cancel := config.WithTimeout(cfg.Worker.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("worker shutdown complete")
	return nil
}

// opsRouter adds queue inspection and metrics next to the worker's probes.
func opsRouter(w *worker.Worker, queue *redisqueue.Queue, prom *observability.Prom) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/metrics", gin.WrapH(prom.Handler()))

	r.GET("/queue", func(c *gin.Context) {
		stats, err := queue.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "queue_unavailable"})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	// payloads carry codes and reset tokens and are never returned here
	r.GET("/queue/dead", func(c *gin.Context) {
		dead, err := queue.DeadLetters(c.Request.Context(), deadLetterPageSize)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "queue_unavailable"})
			return
		}

		out := make([]gin.H, 0, len(dead))
		for _, j := range dead {
			out = append(out, gin.H{
				"id":        j.ID,
				"type":      j.Type,
				"attempts":  j.Attempts,
				"lastError": j.LastError,
				"updatedAt": j.UpdatedAt,
			})
		}
		c.JSON(http.StatusOK, gin.H{"items": out})
	})

	r.NoRoute(gin.WrapH(w.HealthHandler(queue)))

	return r
}
