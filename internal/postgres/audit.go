package postgres

import (
	"context"

	"github.com/thriftian/marketplace/internal/audit"
)

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO audit_logs(id, user_id, action, target_id, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.UserID, string(e.Action), e.Metadata.TargetID, e.Metadata.Details, e.Timestamp)
	return err
}

func (s *Store) ListAuditByActor(ctx context.Context, actorID string, limit int) ([]audit.Entry, error) {
	return s.listAudit(ctx, actorID, limit)
}

func (s *Store) ListRecentAudit(ctx context.Context, limit int) ([]audit.Entry, error) {
	return s.listAudit(ctx, "", limit)
}

func (s *Store) listAudit(ctx context.Context, actorID string, limit int) ([]audit.Entry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, user_id, action, target_id, details, created_at
		FROM audit_logs
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2`, actorID, limitOr(limit, audit.DefaultLimit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Metadata.TargetID, &e.Metadata.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ audit.Store = (*Store)(nil)
