package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/thriftian/marketplace/internal/users"
)

const userColumns = `id, name, email, role, verified, phone, address, created_at, updated_at`

func scanUser(row pgx.Row) (users.User, error) {
	var (
		u    users.User
		addr []byte
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Verified, &u.Phone, &addr, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return users.User{}, err
	}
	if len(addr) > 0 {
		u.Address = &users.Address{}
		if err := json.Unmarshal(addr, u.Address); err != nil {
			return users.User{}, fmt.Errorf("user %s address: %w", u.ID, err)
		}
	}
	return u, nil
}

func addressJSON(a *users.Address) ([]byte, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func (s *Store) GetUser(ctx context.Context, id string) (users.User, error) {
	u, err := scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		return users.User{}, notFound(err, "user")
	}
	return u, nil
}

func (s *Store) PutUser(ctx context.Context, u users.User) error {
	addr, err := addressJSON(u.Address)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO users(id, name, email, role, verified, phone, address, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name, email=EXCLUDED.email, role=EXCLUDED.role, verified=EXCLUDED.verified,
			phone=EXCLUDED.phone, address=EXCLUDED.address, updated_at=EXCLUDED.updated_at`,
		u.ID, u.Name, u.Email, string(u.Role), u.Verified, u.Phone, addr, u.CreatedAt, u.UpdatedAt)
	return err
}

func (s *Store) UpdateUser(ctx context.Context, id string, fn func(u *users.User) error) (users.User, error) {
	var out users.User
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		u, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "user")
		}
		if err := fn(&u); err != nil {
			return err
		}
		addr, err := addressJSON(u.Address)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE users SET name=$2, email=$3, role=$4, verified=$5, phone=$6, address=$7, updated_at=$8
			WHERE id=$1`,
			u.ID, u.Name, u.Email, string(u.Role), u.Verified, u.Phone, addr, u.UpdatedAt)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

var _ users.Store = (*Store)(nil)
