package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/catalog"
)

// NUMERIC columns travel as text so decimal values never pass through float64.
const productColumns = `id, seller_id, seller_name, title, description, brand, category, size,
	condition, price::text, stock, images, status, average_rating, review_count, created_at, updated_at`

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var (
		p      catalog.Product
		price  string
		images []byte
	)
	err := row.Scan(&p.ID, &p.SellerID, &p.SellerName, &p.Title, &p.Description, &p.Brand, &p.Category, &p.Size,
		&p.Condition, &price, &p.Stock, &images, &p.Status, &p.AverageRating, &p.ReviewCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return catalog.Product{}, err
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return catalog.Product{}, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &p.Images); err != nil {
			return catalog.Product{}, fmt.Errorf("product %s images: %w", p.ID, err)
		}
	}
	return p, nil
}

func imagesJSON(imgs []catalog.Image) ([]byte, error) {
	if imgs == nil {
		imgs = []catalog.Image{}
	}
	return json.Marshal(imgs)
}

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) error {
	images, err := imagesJSON(p.Images)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO products(id, seller_id, seller_name, title, description, brand, category, size,
			condition, price, stock, images, status, average_rating, review_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::numeric,$11,$12,$13,$14,$15,$16,$17)`,
		p.ID, p.SellerID, p.SellerName, p.Title, p.Description, p.Brand, p.Category, p.Size,
		string(p.Condition), p.Price.String(), p.Stock, images, string(p.Status), p.AverageRating, p.ReviewCount,
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	p, err := scanProduct(s.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if err != nil {
		return catalog.Product{}, notFound(err, "product")
	}
	return p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, id string, fn func(p *catalog.Product) error) (catalog.Product, error) {
	var out catalog.Product
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		p, err := scanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id))
		if err != nil {
			return notFound(err, "product")
		}
		if err := fn(&p); err != nil {
			return err
		}
		images, err := imagesJSON(p.Images)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE products SET title=$2, description=$3, brand=$4, category=$5, size=$6, condition=$7,
				price=$8::numeric, stock=$9, images=$10, status=$11, updated_at=$12
			WHERE id=$1`,
			p.ID, p.Title, p.Description, p.Brand, p.Category, p.Size, string(p.Condition),
			p.Price.String(), p.Stock, images, string(p.Status), p.UpdatedAt)
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("product not found")
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context, f catalog.ListFilter) ([]catalog.Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR seller_id = $2)
		ORDER BY created_at DESC
		LIMIT $3`, string(f.Status), f.SellerID, limitOr(f.Limit, 50))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// lockProducts row-locks the given products in id order, so two checkouts
// over overlapping carts always acquire locks in the same sequence.
func lockProducts(ctx context.Context, tx pgx.Tx, ids []string) (map[string]catalog.Product, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]catalog.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func queueStockUpdates(b *pgx.Batch, products []catalog.Product) {
	for _, p := range products {
		b.Queue(`UPDATE products SET stock=$2, status=$3, updated_at=$4 WHERE id=$1`,
			p.ID, p.Stock, string(p.Status), p.UpdatedAt)
	}
}

var _ catalog.Store = (*Store)(nil)
