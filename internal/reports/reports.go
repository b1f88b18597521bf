// Package reports lets any signed-in user flag a user, listing or order for
// moderation and lets admins work through the queue.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/validate"
)

type Type string

const (
	TypeUser    Type = "user"
	TypeProduct Type = "product"
	TypeOrder   Type = "order"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewed  Status = "reviewed"
	StatusDismissed Status = "dismissed"
)

const ListLimit = 100

type Report struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	TargetID   string    `json:"targetId"`
	ReportedBy string    `json:"reportedBy"`
	Reason     string    `json:"reason"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type Store interface {
	CreateReport(ctx context.Context, r Report) error
	UpdateReport(ctx context.Context, id string, fn func(r *Report) error) (Report, error)
	ListReports(ctx context.Context, limit int) ([]Report, error)
}

type Service struct {
	Store Store
	Now   func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type FileRequest struct {
	Type     string `json:"type" validate:"oneof=user product order"`
	TargetID string `json:"targetId" validate:"required,max=128"`
	Reason   string `json:"reason" validate:"min=10,max=500"`
}

type StatusRequest struct {
	Status string `json:"status" validate:"oneof=reviewed dismissed"`
}

// File records a pending report. The target is not looked up: a report on
// something already deleted is still worth an admin's glance.
func (s *Service) File(ctx context.Context, actor auth.Identity, req FileRequest) (Report, error) {
	if actor.UID == "" {
		return Report{}, apperr.Unauthenticated("unauthorized")
	}
	if err := validate.Struct(req); err != nil {
		return Report{}, err
	}
	now := s.now()
	r := Report{
		ID:         uuid.NewString(),
		Type:       Type(req.Type),
		TargetID:   req.TargetID,
		ReportedBy: actor.UID,
		Reason:     req.Reason,
		Status:     StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Store.CreateReport(ctx, r); err != nil {
		return Report{}, apperr.Internal(err, "create report")
	}
	return r, nil
}

func (s *Service) List(ctx context.Context, actor auth.Identity) ([]Report, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only admins can view reports")
	}
	out, err := s.Store.ListReports(ctx, ListLimit)
	if err != nil {
		return nil, apperr.Internal(err, "list reports")
	}
	if out == nil {
		out = []Report{}
	}
	return out, nil
}

// SetStatus moves a report to reviewed or dismissed. An admin may change a
// decision, so any report can be set again.
func (s *Service) SetStatus(ctx context.Context, actor auth.Identity, id string, req StatusRequest) (Report, outbox.Batch, error) {
	if !actor.IsAdmin() {
		return Report{}, nil, apperr.Forbidden("only admins can review reports")
	}
	if err := validate.Struct(req); err != nil {
		return Report{}, nil, err
	}
	r, err := s.Store.UpdateReport(ctx, id, func(r *Report) error {
		r.Status = Status(req.Status)
		r.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			return Report{}, nil, apperr.Internal(err, "update report %s", id)
		}
		return Report{}, nil, err
	}
	return r, outbox.Batch{
		audit.Intent(actor.UID, audit.ActionReviewReport, r.ID,
			fmt.Sprintf("Report on %s %s marked %s", r.Type, r.TargetID, r.Status)),
	}, nil
}
