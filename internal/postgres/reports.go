package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/thriftian/marketplace/internal/reports"
)

const reportColumns = `id, type, target_id, reported_by, reason, status, created_at, updated_at`

func scanReport(row pgx.Row) (reports.Report, error) {
	var r reports.Report
	err := row.Scan(&r.ID, &r.Type, &r.TargetID, &r.ReportedBy, &r.Reason, &r.Status, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *Store) CreateReport(ctx context.Context, r reports.Report) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO reports(`+reportColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.ID, string(r.Type), r.TargetID, r.ReportedBy, r.Reason, string(r.Status), r.CreatedAt, r.UpdatedAt)
	return err
}

func (s *Store) UpdateReport(ctx context.Context, id string, fn func(r *reports.Report) error) (reports.Report, error) {
	var out reports.Report
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		r, err := scanReport(tx.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "report")
		}
		if err := fn(&r); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE reports SET status=$2, updated_at=$3 WHERE id=$1`,
			r.ID, string(r.Status), r.UpdatedAt); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (s *Store) ListReports(ctx context.Context, limit int) ([]reports.Report, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+reportColumns+` FROM reports
		ORDER BY created_at DESC
		LIMIT $1`, limitOr(limit, reports.ListLimit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reports.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ reports.Store = (*Store)(nil)
