package kafka

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/thriftian/marketplace/internal/outbox"
)

// Deduper remembers processed intent ids across redeliveries.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// IntentHandler executes relayed outbox intents. Undecodable messages and
// intents that exhaust their retries are logged and committed; a shutdown in
// the middle of retrying leaves the message uncommitted for redelivery.
func IntentHandler(run outbox.Runner, dedup Deduper, retry outbox.Retry, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, m kafka.Message) error {
		it, err := DecodeIntent(m)
		if err != nil {
			log.Error("skipping undecodable intent", "partition", m.Partition, "offset", m.Offset, "err", err)
			return nil
		}
		if dedup != nil {
			first, err := dedup.Claim(ctx, it.ID)
			if err != nil {
				return err
			}
			if !first {
				log.Debug("intent already processed", "id", it.ID, "kind", it.Kind)
				return nil
			}
		}

		attempts, err := retry.Do(ctx, func(ctx context.Context) error {
			return run.Execute(ctx, it)
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			if dedup != nil {
				_ = dedup.Release(context.Background(), it.ID)
			}
			return ctx.Err()
		}
		log.Error("outbox intent dead-lettered",
			"id", it.ID, "kind", it.Kind, "key", it.Key, "attempts", attempts, "err", err)
		return nil
	}
}
