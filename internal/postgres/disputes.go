package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/thriftian/marketplace/internal/disputes"
)

const disputeColumns = `id, order_id, buyer_id, seller_id, reason, status, admin_id, resolution_notes, created_at, updated_at`

func scanDispute(row pgx.Row) (disputes.Dispute, error) {
	var d disputes.Dispute
	err := row.Scan(&d.ID, &d.OrderID, &d.BuyerID, &d.SellerID, &d.Reason, &d.Status, &d.AdminID,
		&d.ResolutionNotes, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (s *Store) CreateDispute(ctx context.Context, d disputes.Dispute) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO disputes(id, order_id, buyer_id, seller_id, reason, status, admin_id, resolution_notes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		d.ID, d.OrderID, d.BuyerID, d.SellerID, d.Reason, string(d.Status), d.AdminID, d.ResolutionNotes,
		d.CreatedAt, d.UpdatedAt)
	return err
}

func (s *Store) GetDispute(ctx context.Context, id string) (disputes.Dispute, error) {
	d, err := scanDispute(s.DB.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id=$1`, id))
	if err != nil {
		return disputes.Dispute{}, notFound(err, "dispute")
	}
	return d, nil
}

func (s *Store) UpdateDispute(ctx context.Context, id string, fn func(d *disputes.Dispute) error) (disputes.Dispute, error) {
	var out disputes.Dispute
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		d, err := scanDispute(tx.QueryRow(ctx, `SELECT `+disputeColumns+` FROM disputes WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "dispute")
		}
		if err := fn(&d); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE disputes SET status=$2, admin_id=$3, resolution_notes=$4, updated_at=$5 WHERE id=$1`,
			d.ID, string(d.Status), d.AdminID, d.ResolutionNotes, d.UpdatedAt)
		if err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

func (s *Store) ListDisputes(ctx context.Context, f disputes.ListFilter) ([]disputes.Dispute, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+disputeColumns+` FROM disputes
		WHERE ($1 = '' OR buyer_id = $1) AND ($2 = '' OR seller_id = $2)
		ORDER BY created_at DESC
		LIMIT $3`, f.BuyerID, f.SellerID, limitOr(f.Limit, disputes.ListLimit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []disputes.Dispute
	for rows.Next() {
		d, err := scanDispute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var _ disputes.Store = (*Store)(nil)
