package outbox

import (
	"context"
	"fmt"
	"log/slog"
)

type NotificationHandler interface {
	Deliver(ctx context.Context, n Notification) error
}

type AuditHandler interface {
	Record(ctx context.Context, a AuditEntry) error
}

type SaleHandler interface {
	RecordSale(ctx context.Context, s Sale) error
}

type EmailHandler interface {
	SendIntent(ctx context.Context, e Email) error
}

type EventHandler interface {
	PublishEvent(ctx context.Context, key string, ev Event) error
}

// Executor applies a single intent to the collaborator responsible for it.
// A nil collaborator turns the matching intents into no-ops.
type Executor struct {
	Notifications NotificationHandler
	Audit         AuditHandler
	Analytics     SaleHandler
	Email         EmailHandler
	Events        EventHandler
	Log           *slog.Logger
}

func (e *Executor) Execute(ctx context.Context, it Intent) error {
	switch it.Kind {
	case KindNotify:
		if e.Notifications == nil || it.Notification == nil {
			return e.skip(it)
		}
		return e.Notifications.Deliver(ctx, *it.Notification)
	case KindAudit:
		if e.Audit == nil || it.Audit == nil {
			return e.skip(it)
		}
		return e.Audit.Record(ctx, *it.Audit)
	case KindAnalytics:
		if e.Analytics == nil || it.Sale == nil {
			return e.skip(it)
		}
		return e.Analytics.RecordSale(ctx, *it.Sale)
	case KindEmail:
		if e.Email == nil || it.Email == nil {
			return e.skip(it)
		}
		return e.Email.SendIntent(ctx, *it.Email)
	case KindEvent:
		if e.Events == nil || it.Event == nil {
			return e.skip(it)
		}
		return e.Events.PublishEvent(ctx, it.Key, *it.Event)
	default:
		return fmt.Errorf("unknown intent kind %q", it.Kind)
	}
}

func (e *Executor) skip(it Intent) error {
	if e.Log != nil {
		e.Log.Debug("outbox intent skipped", "id", it.ID, "kind", it.Kind)
	}
	return nil
}
