package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/outbox"
)

type Action string

const (
	ActionPlaceOrder        Action = "place_order"
	ActionUpdateOrderStatus Action = "update_order_status"
	ActionApproveListing    Action = "approve_listing"
	ActionRejectListing     Action = "reject_listing"
	ActionUpdateProduct     Action = "update_product"
	ActionDeleteProduct     Action = "delete_product"
	ActionResolveDispute    Action = "resolve_dispute"
	ActionChangeRole        Action = "change_role"
	ActionReviewReport      Action = "review_report"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

type Metadata struct {
	TargetID string `json:"targetId"`
	Details  string `json:"details"`
}

// Entry is append-only. Stores expose no update or delete.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Action    Action    `json:"action"`
	Metadata  Metadata  `json:"metadata"`
	Timestamp time.Time `json:"timestamp"`
}

type Store interface {
	AppendAudit(ctx context.Context, e Entry) error
	// Both listings are newest first.
	ListAuditByActor(ctx context.Context, actorID string, limit int) ([]Entry, error)
	ListRecentAudit(ctx context.Context, limit int) ([]Entry, error)
}

// Intent builds the outbox intent recording a privileged action.
func Intent(actorID string, action Action, targetID, details string) outbox.Intent {
	return outbox.Audit(targetID, outbox.AuditEntry{
		ActorID:  actorID,
		Action:   string(action),
		TargetID: targetID,
		Details:  details,
	})
}

type Service struct {
	Store Store
	Log   *slog.Logger
	Now   func() time.Time
}

// Record appends an entry. Failures are logged here and returned so the
// dispatcher can retry; they never reach the action that produced them.
func (s *Service) Record(ctx context.Context, a outbox.AuditEntry) error {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	e := Entry{
		ID:        uuid.NewString(),
		UserID:    a.ActorID,
		Action:    Action(a.Action),
		Metadata:  Metadata{TargetID: a.TargetID, Details: a.Details},
		Timestamp: now,
	}
	if err := s.Store.AppendAudit(ctx, e); err != nil {
		if s.Log != nil {
			s.Log.Error("audit append failed", "action", a.Action, "actor", a.ActorID, "target", a.TargetID, "err", err)
		}
		return err
	}
	return nil
}

func CanQuery(actor auth.Identity) bool { return actor.IsAdmin() }

// Query lists entries by actor when actorID is set, otherwise the most recent.
func (s *Service) Query(ctx context.Context, actor auth.Identity, actorID string, limit int) ([]Entry, error) {
	if !CanQuery(actor) {
		return nil, apperr.Forbidden("only admins can read audit logs")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	var (
		out []Entry
		err error
	)
	if actorID != "" {
		out, err = s.Store.ListAuditByActor(ctx, actorID, limit)
	} else {
		out, err = s.Store.ListRecentAudit(ctx, limit)
	}
	if err != nil {
		return nil, apperr.Internal(err, "query audit logs")
	}
	if out == nil {
		out = []Entry{}
	}
	return out, nil
}
