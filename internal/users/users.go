package users

import (
	"context"
	"fmt"
	"time"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/validate"
)

type Address struct {
	Street   string `json:"street" validate:"min=5"`
	City     string `json:"city" validate:"min=2"`
	Province string `json:"province" validate:"min=2"`
	Zip      string `json:"zip" validate:"min=4"`
}

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	Verified  bool      `json:"verified"`
	Phone     *string   `json:"phone"`
	Address   *Address  `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Store interface {
	GetUser(ctx context.Context, id string) (User, error)
	PutUser(ctx context.Context, u User) error
	UpdateUser(ctx context.Context, id string, fn func(u *User) error) (User, error)
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

// Resolve turns a verified token principal into an identity carrying the
// role stored for that user.
func (s *Service) Resolve(ctx context.Context, p auth.Principal) (auth.Identity, error) {
	u, err := s.Store.GetUser(ctx, p.UID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return auth.Identity{}, apperr.Unauthenticated("user profile not found")
		}
		return auth.Identity{}, apperr.Internal(err, "resolve identity %s", p.UID)
	}
	email := u.Email
	if email == "" {
		email = p.Email
	}
	return auth.Identity{UID: u.ID, Email: email, Role: u.Role}, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	u, err := s.Store.GetUser(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return User{}, err
		}
		return User{}, apperr.Internal(err, "load user %s", id)
	}
	return u, nil
}

// Register creates or replaces a profile. Used by provisioning and tests.
func (s *Service) Register(ctx context.Context, u User) (User, error) {
	if _, ok := auth.ParseRole(string(u.Role)); !ok {
		return User{}, apperr.Validation("invalid role %q", u.Role)
	}
	if u.Address != nil {
		if err := validate.Struct(u.Address); err != nil {
			return User{}, err
		}
	}
	now := s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if err := s.Store.PutUser(ctx, u); err != nil {
		return User{}, apperr.Internal(err, "save user %s", u.ID)
	}
	return u, nil
}

func CanChangeRole(actor auth.Identity) bool { return actor.IsAdmin() }

type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=buyer seller admin"`
}

func (s *Service) ChangeRole(ctx context.Context, actor auth.Identity, userID string, req ChangeRoleRequest) (User, outbox.Batch, error) {
	if !CanChangeRole(actor) {
		return User{}, nil, apperr.Forbidden("only admins can change roles")
	}
	if err := validate.Struct(req); err != nil {
		return User{}, nil, err
	}
	role, _ := auth.ParseRole(req.Role)

	var previous auth.Role
	u, err := s.Store.UpdateUser(ctx, userID, func(u *User) error {
		previous = u.Role
		u.Role = role
		u.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return User{}, nil, err
		}
		return User{}, nil, apperr.Internal(err, "change role of %s", userID)
	}

	b := outbox.Batch{
		notify.RoleChanged(u.ID, string(role)),
		audit.Intent(actor.UID, audit.ActionChangeRole, u.ID,
			fmt.Sprintf("Changed role of %s from %s to %s", u.Email, previous, role)),
	}
	return u, b, nil
}
