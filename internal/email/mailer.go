package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/users"
)

const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplateTrackingUpdate    = "tracking_update"
	TemplateDisputeAlert      = "dispute_alert"
)

var subjects = map[string]string{
	TemplateOrderConfirmation: "Order Confirmation - Thriftian Marketplace",
	TemplateTrackingUpdate:    "Your Order Has Shipped - Thriftian Marketplace",
	TemplateDisputeAlert:      "Dispute Opened - Thriftian Marketplace",
}

// Message is provider neutral. Providers with hosted templates use Template
// and Data; the rest render HTML locally.
type Message struct {
	To       string
	ToName   string
	Subject  string
	Template string
	Data     map[string]string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (users.User, error)
}

// Sender turns outbox email intents into messages, resolving recipients
// addressed by user id.
type Sender struct {
	Mailer Mailer
	Users  UserDirectory
}

func (s *Sender) SendIntent(ctx context.Context, e outbox.Email) error {
	to, name := e.To, e.ToName
	if to == "" && e.ToUserID != "" {
		if s.Users == nil {
			return fmt.Errorf("email %s: no user directory to resolve %s", e.Template, e.ToUserID)
		}
		u, err := s.Users.GetUser(ctx, e.ToUserID)
		if err != nil {
			return fmt.Errorf("email %s: resolve recipient %s: %w", e.Template, e.ToUserID, err)
		}
		to = u.Email
		if name == "" {
			name = u.Name
		}
	}
	if to == "" {
		return fmt.Errorf("email %s: no recipient", e.Template)
	}
	subject, ok := subjects[e.Template]
	if !ok {
		return fmt.Errorf("email: unknown template %q", e.Template)
	}
	return s.Mailer.Send(ctx, Message{To: to, ToName: name, Subject: subject, Template: e.Template, Data: e.Data})
}

// LogMailer only logs. It is the default when no provider is configured.
type LogMailer struct {
	Log *slog.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	log := m.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("email (not sent)", "to", msg.To, "subject", msg.Subject, "template", msg.Template)
	return nil
}
