// Package app assembles the services shared by cmd/api and cmd/dispatcher
// from a loaded config.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thriftian/marketplace/internal/analytics"
	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/catalog"
	"github.com/thriftian/marketplace/internal/config"
	"github.com/thriftian/marketplace/internal/disputes"
	"github.com/thriftian/marketplace/internal/dynamo"
	"github.com/thriftian/marketplace/internal/email"
	"github.com/thriftian/marketplace/internal/memstore"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/orders"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/postgres"
	"github.com/thriftian/marketplace/internal/reports"
	"github.com/thriftian/marketplace/internal/users"
)

// Store is everything a storage backend provides.
type Store interface {
	catalog.Store
	orders.Store
	analytics.Store
	notify.Store
	audit.Store
	users.Store
	disputes.Store
	reports.Store
}

var (
	_ Store = (*postgres.Store)(nil)
	_ Store = (*dynamo.Store)(nil)
	_ Store = (*memstore.Store)(nil)
)

// OpenStore connects the configured backend and prepares its schema. The
// returned func releases it.
func OpenStore(ctx context.Context, cfg config.Config, log *slog.Logger) (Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return postgres.New(db), db.Close, nil
	case config.BackendDynamo:
		client, err := dynamo.Connect(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, nil, err
		}
		st := dynamo.New(client, cfg.DynamoTablePrefix)
		if err := st.EnsureTables(ctx); err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	case config.BackendMemory:
		log.Warn("using in-memory store; data is lost on exit")
		return memstore.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func NewVerifier(ctx context.Context, cfg config.Config) (auth.Verifier, error) {
	if cfg.AuthProvider == config.AuthFirebase {
		return auth.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentialsFile)
	}
	return auth.NewJWTVerifier(cfg.JWTSecret), nil
}

func NewMailer(cfg config.Config, log *slog.Logger) email.Mailer {
	switch cfg.MailProvider {
	case config.MailSMTP:
		return email.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	case config.MailMailerSend:
		return email.NewMailerSend(cfg.MailerSendAPIKey, cfg.MailerSendFromEmail, cfg.MailerSendFromName, cfg.MailerSendTemplates)
	default:
		return email.LogMailer{Log: log}
	}
}

func Retry(cfg config.Config) outbox.Retry {
	r := outbox.DefaultRetry()
	if cfg.OutboxMaxAttempts > 0 {
		r.MaxAttempts = cfg.OutboxMaxAttempts
	}
	return r
}

// Services are the domain services over one store.
type Services struct {
	Catalog       *catalog.Service
	Orders        *orders.Service
	Notifications *notify.Service
	Audit         *audit.Service
	Analytics     *analytics.Service
	Disputes      *disputes.Service
	Reports       *reports.Service
	Users         *users.Service
	Email         *email.Sender
}

// NewServices wires the services. push may be nil when nothing serves live
// sessions.
func NewServices(st Store, cfg config.Config, mailer email.Mailer, push notify.Pusher, log *slog.Logger) *Services {
	us := &users.Service{Store: st}
	return &Services{
		Catalog:       &catalog.Service{Store: st, Users: st},
		Orders:        &orders.Service{Store: st, Users: st, Source: cfg.ServiceName},
		Notifications: &notify.Service{Store: st, Push: push, Log: log},
		Audit:         &audit.Service{Store: st, Log: log},
		Analytics:     &analytics.Service{Store: st},
		Disputes:      &disputes.Service{Store: st, Orders: st},
		Reports:       &reports.Service{Store: st},
		Users:         us,
		Email:         &email.Sender{Mailer: mailer, Users: st},
	}
}

// Executor runs outbox intents against the services. events may be nil,
// which drops domain events.
func (s *Services) Executor(events outbox.EventHandler, log *slog.Logger) *outbox.Executor {
	return &outbox.Executor{
		Notifications: s.Notifications,
		Audit:         s.Audit,
		Analytics:     s.Analytics,
		Email:         s.Email,
		Events:        events,
		Log:           log,
	}
}
