package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/thriftian/marketplace/internal/app"
	"github.com/thriftian/marketplace/internal/config"
	kafkax "github.com/thriftian/marketplace/internal/kafka"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/realtime"
	"github.com/thriftian/marketplace/internal/redisx"
)

// The dispatcher consumes outbox intents relayed by the API and executes
// them: notifications, audit entries, analytics, emails and domain events.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := config.NewLogger(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}
	if len(cfg.KafkaBrokers) == 0 {
		log.Error("KAFKA_BROKERS is required")
		os.Exit(1)
	}
	if err := run(cfg, log); err != nil {
		log.Error("dispatcher stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Without Redis there is no cross-delivery dedup and live pushes are
	// skipped; stored notifications are still listed by the API.
	var (
		push  notify.Pusher
		dedup kafkax.Deduper
	)
	if cfg.RedisAddr != "" {
		rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		push = realtime.NewFanout(rdb, nil, redisx.ChannelNotifications, log)
		dedup = redisx.NewDedup(rdb, cfg.DispatcherGroup)
	}

	events := kafkax.NewProducer(cfg.KafkaBrokers, cfg.KafkaEventsTopic, 1024, log)
	bg, cancelBG := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBG()
	events.Start(bg)

	svc := app.NewServices(st, cfg, app.NewMailer(cfg, log), push, log)
	handle := kafkax.IntentHandler(svc.Executor(kafkax.NewEventPublisher(events), log), dedup, app.Retry(cfg), log)
	consumer := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.DispatcherGroup, cfg.KafkaOutboxTopic, cfg.DispatcherWorkers, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("consuming outbox intents", "topic", cfg.KafkaOutboxTopic, "group", cfg.DispatcherGroup, "workers", cfg.DispatcherWorkers)
		return consumer.Start(gctx, handle)
	})
	err = g.Wait()

	events.Close()
	events.WaitClosed()
	log.Info("dispatcher stopped")
	return err
}
