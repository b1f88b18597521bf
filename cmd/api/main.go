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

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/thriftian/marketplace/internal/app"
	"github.com/thriftian/marketplace/internal/config"
	"github.com/thriftian/marketplace/internal/httpx"
	kafkax "github.com/thriftian/marketplace/internal/kafka"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/realtime"
	"github.com/thriftian/marketplace/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := config.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Store
	st, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := app.NewVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	// Redis is optional: without it there are no idempotency keys, no order
	// cache, and pushes reach only sessions on this instance.
	hub := realtime.NewHub(log, cfg.WSAllowedOrigins...)
	defer hub.Close()
	var (
		rdb    *redis.Client
		push   notify.Pusher = hub
		fanout *realtime.Fanout
	)
	if cfg.RedisAddr != "" {
		rdb, err = redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		fanout = realtime.NewFanout(rdb, hub, redisx.ChannelNotifications, log)
		push = fanout
	}

	svc := app.NewServices(st, cfg, app.NewMailer(cfg, log), push, log)

	// Outbox: relay intents to cmd/dispatcher over Kafka, or run them here.
	// Inline, domain events still go to Kafka when brokers are configured.
	var (
		producers  []*kafkax.Producer
		sink       outbox.Sink
		dispatcher *outbox.Dispatcher
	)
	if cfg.OutboxTransport == config.TransportKafka {
		relay := kafkax.NewProducer(cfg.KafkaBrokers, cfg.KafkaOutboxTopic, 4096, log)
		producers = append(producers, relay)
		sink = kafkax.NewRelay(relay, log)
	} else {
		var events outbox.EventHandler
		if len(cfg.KafkaBrokers) > 0 {
			ev := kafkax.NewProducer(cfg.KafkaBrokers, cfg.KafkaEventsTopic, 1024, log)
			producers = append(producers, ev)
			events = kafkax.NewEventPublisher(ev)
		}
		dispatcher = outbox.NewDispatcher(svc.Executor(events, log), cfg.OutboxWorkers, 4096, app.Retry(cfg), log)
		sink = dispatcher
	}

	h := &httpx.Handler{
		Catalog:       svc.Catalog,
		Orders:        svc.Orders,
		Notifications: svc.Notifications,
		Audit:         svc.Audit,
		Analytics:     svc.Analytics,
		Disputes:      svc.Disputes,
		Reports:       svc.Reports,
		Users:         svc.Users,
		Verifier:      verifier,
		Identities:    svc.Users,
		Outbox:        sink,
		Realtime:      hub,
		Log:           log,
	}
	if rdb != nil {
		h.Idempotency = redisx.NewIdempotency(rdb)
		h.Cache = redisx.NewOrderCache(rdb)
	}
	router := httpx.NewRouter()
	h.Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	// Producers and the dispatcher outlive ctx so that intents from requests
	// still in flight during shutdown are flushed.
	bg, cancelBG := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBG()
	for _, p := range producers {
		p.Start(bg)
	}
	if dispatcher != nil {
		dispatcher.Start(bg)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend, "outbox", cfg.OutboxTransport)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if fanout != nil {
		g.Go(func() error { return fanout.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	// drain side effects after the server stops taking requests
	if dispatcher != nil {
		dispatcher.Close()
		dispatcher.Wait()
	}
	for _, p := range producers {
		p.Close()
		p.WaitClosed()
	}
	return err
}
