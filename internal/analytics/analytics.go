package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/outbox"
)

// TopProductsLimit is how many product ids the read path ranks.
const TopProductsLimit = 5

type Analytics struct {
	SellerID    string          `json:"sellerId"`
	TotalSales  decimal.Decimal `json:"totalSales"`
	TotalOrders int64           `json:"totalOrders"`
	TopProducts []string        `json:"topProducts"`
	LastUpdated *time.Time      `json:"lastUpdated"`
}

// Store accumulates per-seller counters. Counters only ever grow and are
// changed with the store's atomic increment, never read-modify-write.
type Store interface {
	// ApplySale adds the sale once per order id and reports whether it did.
	ApplySale(ctx context.Context, s outbox.Sale, at time.Time) (bool, error)
	// GetAnalytics reports found=false when the seller has no sales yet.
	GetAnalytics(ctx context.Context, sellerID string, topN int) (Analytics, bool, error)
}

type Service struct {
	Store Store
	Now   func() time.Time
}

func (s *Service) RecordSale(ctx context.Context, sale outbox.Sale) error {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	_, err := s.Store.ApplySale(ctx, sale, now)
	return err
}

func CanView(actor auth.Identity, sellerID string) bool {
	return actor.IsAdmin() || (actor.IsSeller() && actor.UID == sellerID)
}

// Get never fails for a seller without sales: it returns zero counters.
func (s *Service) Get(ctx context.Context, actor auth.Identity, sellerID string) (Analytics, error) {
	if !CanView(actor, sellerID) {
		return Analytics{}, apperr.Forbidden("you can only view your own analytics")
	}
	a, found, err := s.Store.GetAnalytics(ctx, sellerID, TopProductsLimit)
	if err != nil {
		return Analytics{}, apperr.Internal(err, "load analytics for %s", sellerID)
	}
	if !found {
		return Analytics{SellerID: sellerID, TotalSales: decimal.Zero, TopProducts: []string{}}, nil
	}
	if a.TopProducts == nil {
		a.TopProducts = []string{}
	}
	return a, nil
}
