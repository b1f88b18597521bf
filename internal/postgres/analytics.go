package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/thriftian/marketplace/internal/analytics"
	"github.com/thriftian/marketplace/internal/outbox"
)

// ApplySale claims the order in analytics_applied_sales and adds the sale
// with server-side increments in the same transaction. A replayed order id
// hits the conflict and changes nothing.
func (s *Store) ApplySale(ctx context.Context, sale outbox.Sale, at time.Time) (bool, error) {
	applied := false
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			INSERT INTO analytics_applied_sales(order_id, applied_at) VALUES ($1, $2)
			ON CONFLICT (order_id) DO NOTHING`, sale.OrderID, at)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return nil
		}

		b := &pgx.Batch{}
		b.Queue(`
			INSERT INTO seller_analytics(seller_id, total_sales, total_orders, last_updated)
			VALUES ($1, $2::numeric, 1, $3)
			ON CONFLICT (seller_id) DO UPDATE SET
				total_sales = seller_analytics.total_sales + EXCLUDED.total_sales,
				total_orders = seller_analytics.total_orders + 1,
				last_updated = GREATEST(seller_analytics.last_updated, EXCLUDED.last_updated)`,
			sale.SellerID, sale.Amount.String(), at)
		for _, l := range sale.Lines {
			b.Queue(`
				INSERT INTO seller_product_sales(seller_id, product_id, units) VALUES ($1, $2, $3)
				ON CONFLICT (seller_id, product_id) DO UPDATE SET
					units = seller_product_sales.units + EXCLUDED.units`,
				sale.SellerID, l.ProductID, l.Quantity)
		}
		if err := execBatch(ctx, tx, b); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *Store) GetAnalytics(ctx context.Context, sellerID string, topN int) (analytics.Analytics, bool, error) {
	var (
		a     = analytics.Analytics{SellerID: sellerID}
		total string
		last  time.Time
	)
	err := s.DB.QueryRow(ctx, `
		SELECT total_sales::text, total_orders, last_updated
		FROM seller_analytics WHERE seller_id=$1`, sellerID).Scan(&total, &a.TotalOrders, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		return analytics.Analytics{}, false, nil
	}
	if err != nil {
		return analytics.Analytics{}, false, err
	}
	if a.TotalSales, err = decimal.NewFromString(total); err != nil {
		return analytics.Analytics{}, false, err
	}
	a.LastUpdated = &last

	rows, err := s.DB.Query(ctx, `
		SELECT product_id FROM seller_product_sales
		WHERE seller_id=$1
		ORDER BY units DESC, product_id
		LIMIT $2`, sellerID, topN)
	if err != nil {
		return analytics.Analytics{}, false, err
	}
	defer rows.Close()
	a.TopProducts = []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return analytics.Analytics{}, false, err
		}
		a.TopProducts = append(a.TopProducts, id)
	}
	if err := rows.Err(); err != nil {
		return analytics.Analytics{}, false, err
	}
	return a, true, nil
}

var _ analytics.Store = (*Store)(nil)
