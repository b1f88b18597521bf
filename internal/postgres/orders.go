package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/thriftian/marketplace/internal/orders"
)

const orderColumns = `id, buyer_id, buyer_name, seller_id, seller_name, total_amount::text, payment_method,
	status, tracking_number, shipping_address, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var (
		o     orders.Order
		total string
		addr  []byte
	)
	err := row.Scan(&o.ID, &o.BuyerID, &o.BuyerName, &o.SellerID, &o.SellerName, &total, &o.PaymentMethod,
		&o.Status, &o.TrackingNumber, &addr, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return orders.Order{}, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return orders.Order{}, fmt.Errorf("order %s total: %w", o.ID, err)
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return orders.Order{}, fmt.Errorf("order %s address: %w", o.ID, err)
	}
	return o, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// loadItems attaches line items, in line order, to every order in os.
func loadItems(ctx context.Context, q querier, os []orders.Order) error {
	if len(os) == 0 {
		return nil
	}
	ids := make([]string, len(os))
	idx := make(map[string]int, len(os))
	for i, o := range os {
		ids[i] = o.ID
		idx[o.ID] = i
	}
	rows, err := q.Query(ctx, `
		SELECT order_id, product_id, title, price::text, quantity, image_url
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, line_no`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			it      orders.Item
			price   string
		)
		if err := rows.Scan(&orderID, &it.ProductID, &it.Title, &price, &it.Quantity, &it.ImageURL); err != nil {
			return err
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("order %s item price: %w", orderID, err)
		}
		i := idx[orderID]
		os[i].Items = append(os[i].Items, it)
	}
	return rows.Err()
}

// PlaceOrder locks every requested product, lets plan decide, and commits the
// order together with the stock changes. Any error from plan rolls the whole
// transaction back, so a rejected cart leaves no trace.
func (s *Store) PlaceOrder(ctx context.Context, productIDs []string, plan orders.PlanFunc) (orders.Order, error) {
	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)

	var out orders.Order
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}
		pl, err := plan(products)
		if err != nil {
			return err
		}
		addr, err := json.Marshal(pl.Order.ShippingAddress)
		if err != nil {
			return err
		}

		o := pl.Order
		b := &pgx.Batch{}
		queueStockUpdates(b, pl.Products)
		b.Queue(`
			INSERT INTO orders(id, buyer_id, buyer_name, seller_id, seller_name, total_amount, payment_method,
				status, tracking_number, shipping_address, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10,$11,$12)`,
			o.ID, o.BuyerID, o.BuyerName, o.SellerID, o.SellerName, o.TotalAmount.String(), o.PaymentMethod,
			string(o.Status), o.TrackingNumber, addr, o.CreatedAt, o.UpdatedAt)
		for i, it := range o.Items {
			b.Queue(`
				INSERT INTO order_items(order_id, line_no, product_id, title, price, quantity, image_url)
				VALUES ($1,$2,$3,$4,$5::numeric,$6,$7)`,
				o.ID, i, it.ProductID, it.Title, it.Price.String(), it.Quantity, it.ImageURL)
		}
		if err := execBatch(ctx, tx, b); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

// UpdateOrder locks the order row first and then its products in id order.
func (s *Store) UpdateOrder(ctx context.Context, id string, fn orders.Mutation) (orders.Order, error) {
	var out orders.Order
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "order")
		}
		list := []orders.Order{o}
		if err := loadItems(ctx, tx, list); err != nil {
			return err
		}
		o = list[0]

		seen := map[string]bool{}
		var ids []string
		for _, it := range o.Items {
			if !seen[it.ProductID] {
				seen[it.ProductID] = true
				ids = append(ids, it.ProductID)
			}
		}
		sort.Strings(ids)
		products, err := lockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}

		changed, err := fn(&o, products)
		if err != nil {
			return err
		}

		b := &pgx.Batch{}
		b.Queue(`UPDATE orders SET status=$2, tracking_number=$3, updated_at=$4 WHERE id=$1`,
			o.ID, string(o.Status), o.TrackingNumber, o.UpdatedAt)
		queueStockUpdates(b, changed)
		if err := execBatch(ctx, tx, b); err != nil {
			return err
		}
		out = o
		return nil
	})
	return out, err
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return orders.Order{}, notFound(err, "order")
	}
	list := []orders.Order{o}
	if err := loadItems(ctx, s.DB, list); err != nil {
		return orders.Order{}, err
	}
	return list[0], nil
}

func (s *Store) ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR buyer_id = $1) AND ($2 = '' OR seller_id = $2)
		ORDER BY created_at DESC
		LIMIT $3`, f.BuyerID, f.SellerID, limitOr(f.Limit, orders.DefaultLimit))
	if err != nil {
		return nil, err
	}
	var out []orders.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadItems(ctx, s.DB, out); err != nil {
		return nil, err
	}
	return out, nil
}

var _ orders.Store = (*Store)(nil)
