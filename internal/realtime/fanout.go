package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type envelope struct {
	UserID  string `json:"user_id"`
	Payload []byte `json:"payload"`
}

// Fanout relays pushes through Redis pub/sub so a user connected to any API
// instance receives them. Every instance runs Run against its own hub.
type Fanout struct {
	RDB     *redis.Client
	Hub     *Hub
	Channel string
	Log     *slog.Logger
}

func NewFanout(rdb *redis.Client, hub *Hub, channel string, log *slog.Logger) *Fanout {
	if log == nil {
		log = slog.Default()
	}
	return &Fanout{RDB: rdb, Hub: hub, Channel: channel, Log: log}
}

func (f *Fanout) Push(ctx context.Context, userID string, msg []byte) error {
	b, err := json.Marshal(envelope{UserID: userID, Payload: msg})
	if err != nil {
		return err
	}
	return f.RDB.Publish(ctx, f.Channel, b).Err()
}

func (f *Fanout) Run(ctx context.Context) error {
	sub := f.RDB.Subscribe(ctx, f.Channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				f.Log.Warn("bad fanout message", "err", err)
				continue
			}
			_ = f.Hub.Push(ctx, env.UserID, env.Payload)
		}
	}
}
