package auth

import (
	"context"
	"errors"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return r, true
	}
	return "", false
}

// Principal is what a token proves: who the caller is, not what they may do.
type Principal struct {
	UID   string
	Email string
}

// Identity is the verified caller passed explicitly into every operation.
type Identity struct {
	UID   string
	Email string
	Role  Role
}

func (i Identity) IsAdmin() bool  { return i.Role == RoleAdmin }
func (i Identity) IsSeller() bool { return i.Role == RoleSeller }
func (i Identity) IsBuyer() bool  { return i.Role == RoleBuyer }

// Verifier checks a bearer token issued by the identity provider.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}
