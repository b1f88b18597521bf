package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/outbox"
)

type Service struct {
	Store Store
	Push  Pusher // optional
	Log   *slog.Logger
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Deliver stores one notification intent and pushes it to live sessions.
// A push failure is logged only: the stored copy is the source of truth.
func (s *Service) Deliver(ctx context.Context, in outbox.Notification) error {
	n := Notification{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Title:     in.Title,
		Message:   in.Message,
		Type:      Type(in.Type),
		CreatedAt: s.now(),
	}
	if err := s.Store.CreateNotification(ctx, n); err != nil {
		return err
	}
	if s.Push == nil {
		return nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return nil
	}
	if err := s.Push.Push(ctx, n.UserID, b); err != nil && s.Log != nil {
		s.Log.Warn("notification push failed", "user_id", n.UserID, "id", n.ID, "err", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, actor auth.Identity) ([]Notification, error) {
	out, err := s.Store.ListNotifications(ctx, actor.UID, PageSize)
	if err != nil {
		return nil, apperr.Internal(err, "list notifications")
	}
	if out == nil {
		out = []Notification{}
	}
	return out, nil
}

// CanMarkRead allows only the recipient to touch a notification.
func CanMarkRead(actor auth.Identity, n Notification) bool {
	return actor.UID != "" && actor.UID == n.UserID
}

// MarkRead is idempotent: marking an already read notification succeeds.
func (s *Service) MarkRead(ctx context.Context, actor auth.Identity, id string) error {
	n, err := s.Store.GetNotification(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return err
		}
		return apperr.Internal(err, "load notification %s", id)
	}
	if !CanMarkRead(actor, n) {
		return apperr.Forbidden("you can only mark your own notifications")
	}
	if n.IsRead {
		return nil
	}
	if err := s.Store.MarkNotificationRead(ctx, id); err != nil {
		return apperr.Internal(err, "mark notification %s read", id)
	}
	return nil
}

// MarkAllRead reports how many notifications changed; zero on a repeat call.
func (s *Service) MarkAllRead(ctx context.Context, actor auth.Identity) (int, error) {
	n, err := s.Store.MarkAllNotificationsRead(ctx, actor.UID)
	if err != nil {
		return 0, apperr.Internal(err, "mark all notifications read")
	}
	return n, nil
}
