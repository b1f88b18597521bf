package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindNotify    Kind = "notify"
	KindAudit     Kind = "audit"
	KindAnalytics Kind = "analytics"
	KindEmail     Kind = "email"
	KindEvent     Kind = "event"
)

// Intent is one post-commit side effect. Exactly one payload field is set,
// matching Kind.
type Intent struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Key       string    `json:"key"` // ordering key, usually the aggregate id
	CreatedAt time.Time `json:"created_at"`

	Notification *Notification `json:"notification,omitempty"`
	Audit        *AuditEntry   `json:"audit,omitempty"`
	Sale         *Sale         `json:"sale,omitempty"`
	Email        *Email        `json:"email,omitempty"`
	Event        *Event        `json:"event,omitempty"`
}

// Batch is the ordered list of intents a mutation hands back to its caller.
type Batch []Intent

type Notification struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type AuditEntry struct {
	ActorID  string `json:"actor_id"`
	Action   string `json:"action"`
	TargetID string `json:"target_id"`
	Details  string `json:"details"`
}

type SaleLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Sale feeds the seller analytics accumulator. OrderID makes it idempotent.
type Sale struct {
	SellerID string          `json:"seller_id"`
	OrderID  string          `json:"order_id"`
	Amount   decimal.Decimal `json:"amount"`
	Lines    []SaleLine      `json:"lines"`
}

// Email is addressed either directly or by user id, resolved at send time.
type Email struct {
	ToUserID string            `json:"to_user_id,omitempty"`
	To       string            `json:"to,omitempty"`
	ToName   string            `json:"to_name,omitempty"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data,omitempty"`
}

// Event is an already encoded domain event envelope.
type Event struct {
	Type string `json:"type"`
	Body []byte `json:"body"`
}

// Sink accepts intents after the originating mutation has committed.
type Sink interface {
	Dispatch(ctx context.Context, b Batch)
}

func newIntent(kind Kind, key string) Intent {
	return Intent{ID: uuid.NewString(), Kind: kind, Key: key, CreatedAt: time.Now().UTC()}
}

func Notify(key string, n Notification) Intent {
	it := newIntent(KindNotify, key)
	it.Notification = &n
	return it
}

func Audit(key string, a AuditEntry) Intent {
	it := newIntent(KindAudit, key)
	it.Audit = &a
	return it
}

func RecordSale(s Sale) Intent {
	it := newIntent(KindAnalytics, s.OrderID)
	it.Sale = &s
	return it
}

func SendEmail(key string, e Email) Intent {
	it := newIntent(KindEmail, key)
	it.Email = &e
	return it
}

func Publish(key, eventType string, body []byte) Intent {
	it := newIntent(KindEvent, key)
	it.Event = &Event{Type: eventType, Body: body}
	return it
}
