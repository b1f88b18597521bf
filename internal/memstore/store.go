// Package memstore keeps every collection in process memory behind one
// mutex. It backs tests and STORE_BACKEND=memory.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thriftian/marketplace/internal/analytics"
	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/catalog"
	"github.com/thriftian/marketplace/internal/disputes"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/orders"
	"github.com/thriftian/marketplace/internal/outbox"
	"github.com/thriftian/marketplace/internal/reports"
	"github.com/thriftian/marketplace/internal/users"
)

type sellerStats struct {
	totalSales  decimal.Decimal
	totalOrders int64
	units       map[string]int64
	lastUpdated time.Time
}

type Store struct {
	mu sync.Mutex

	products      map[string]catalog.Product
	orders        map[string]orders.Order
	stats         map[string]*sellerStats
	sales         map[string]struct{} // order ids already counted
	notifications map[string]notify.Notification
	audit         []audit.Entry
	users         map[string]users.User
	disputes      map[string]disputes.Dispute
	reports       map[string]reports.Report

	// AuditErr, when set, fails every audit append. Tests use it to show
	// audit failures stay off the critical path.
	AuditErr error
}

var (
	_ catalog.Store   = (*Store)(nil)
	_ orders.Store    = (*Store)(nil)
	_ analytics.Store = (*Store)(nil)
	_ notify.Store    = (*Store)(nil)
	_ audit.Store     = (*Store)(nil)
	_ users.Store     = (*Store)(nil)
	_ disputes.Store  = (*Store)(nil)
	_ reports.Store   = (*Store)(nil)
)

func New() *Store {
	return &Store{
		products:      map[string]catalog.Product{},
		orders:        map[string]orders.Order{},
		stats:         map[string]*sellerStats{},
		sales:         map[string]struct{}{},
		notifications: map[string]notify.Notification{},
		users:         map[string]users.User{},
		disputes:      map[string]disputes.Dispute{},
		reports:       map[string]reports.Report{},
	}
}

func copyProduct(p catalog.Product) catalog.Product {
	p.Images = append([]catalog.Image(nil), p.Images...)
	return p
}

func copyOrder(o orders.Order) orders.Order {
	o.Items = append([]orders.Item(nil), o.Items...)
	if o.TrackingNumber != nil {
		t := *o.TrackingNumber
		o.TrackingNumber = &t
	}
	return o
}

func clamp(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}

// ---- products ----

func (s *Store) CreateProduct(_ context.Context, p catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; ok {
		return apperr.Conflict("product %s already exists", p.ID)
	}
	s.products[p.ID] = copyProduct(p)
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, apperr.NotFound("product not found")
	}
	return copyProduct(p), nil
}

func (s *Store) UpdateProduct(_ context.Context, id string, fn func(p *catalog.Product) error) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, apperr.NotFound("product not found")
	}
	p = copyProduct(p)
	if err := fn(&p); err != nil {
		return catalog.Product{}, err
	}
	s.products[id] = p
	return copyProduct(p), nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return apperr.NotFound("product not found")
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context, f catalog.ListFilter) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Product, 0)
	for _, p := range s.products {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.SellerID != "" && p.SellerID != f.SellerID {
			continue
		}
		out = append(out, copyProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out[:clamp(len(out), f.Limit)], nil
}

// ---- orders ----

func (s *Store) PlaceOrder(_ context.Context, productIDs []string, plan orders.PlanFunc) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]catalog.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok {
			current[id] = copyProduct(p)
		}
	}
	pl, err := plan(current)
	if err != nil {
		return orders.Order{}, err
	}
	for _, p := range pl.Products {
		s.products[p.ID] = copyProduct(p)
	}
	s.orders[pl.Order.ID] = copyOrder(pl.Order)
	return copyOrder(pl.Order), nil
}

func (s *Store) UpdateOrder(_ context.Context, id string, fn orders.Mutation) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, apperr.NotFound("order not found")
	}
	o = copyOrder(o)
	current := make(map[string]catalog.Product, len(o.Items))
	for _, it := range o.Items {
		if p, ok := s.products[it.ProductID]; ok {
			current[it.ProductID] = copyProduct(p)
		}
	}
	changed, err := fn(&o, current)
	if err != nil {
		return orders.Order{}, err
	}
	for _, p := range changed {
		s.products[p.ID] = copyProduct(p)
	}
	s.orders[id] = o
	return copyOrder(o), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, apperr.NotFound("order not found")
	}
	return copyOrder(o), nil
}

func (s *Store) ListOrders(_ context.Context, f orders.ListFilter) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Order, 0)
	for _, o := range s.orders {
		if f.BuyerID != "" && o.BuyerID != f.BuyerID {
			continue
		}
		if f.SellerID != "" && o.SellerID != f.SellerID {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out[:clamp(len(out), f.Limit)], nil
}

// ---- analytics ----

func (s *Store) ApplySale(_ context.Context, sale outbox.Sale, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.sales[sale.OrderID]; done {
		return false, nil
	}
	st, ok := s.stats[sale.SellerID]
	if !ok {
		st = &sellerStats{totalSales: decimal.Zero, units: map[string]int64{}}
		s.stats[sale.SellerID] = st
	}
	st.totalSales = st.totalSales.Add(sale.Amount)
	st.totalOrders++
	for _, l := range sale.Lines {
		st.units[l.ProductID] += int64(l.Quantity)
	}
	st.lastUpdated = at
	s.sales[sale.OrderID] = struct{}{}
	return true, nil
}

func (s *Store) GetAnalytics(_ context.Context, sellerID string, topN int) (analytics.Analytics, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[sellerID]
	if !ok {
		return analytics.Analytics{}, false, nil
	}
	last := st.lastUpdated
	return analytics.Analytics{
		SellerID:    sellerID,
		TotalSales:  st.totalSales,
		TotalOrders: st.totalOrders,
		TopProducts: analytics.RankProducts(st.units, topN),
		LastUpdated: &last,
	}, true, nil
}

// ---- notifications ----

func (s *Store) CreateNotification(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications[n.ID] = n
	return nil
}

func (s *Store) GetNotification(_ context.Context, id string) (notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return notify.Notification{}, apperr.NotFound("notification not found")
	}
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, limit int) ([]notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.Notification, 0)
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out[:clamp(len(out), limit)], nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return apperr.NotFound("notification not found")
	}
	n.IsRead = true
	s.notifications[id] = n
	return nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for id, n := range s.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			s.notifications[id] = n
			changed++
		}
	}
	return changed, nil
}

// ---- audit ----

func (s *Store) AppendAudit(_ context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AuditErr != nil {
		return s.AuditErr
	}
	s.audit = append(s.audit, e)
	return nil
}

// newestFirst walks the append-only log backwards.
func (s *Store) newestFirst(keep func(audit.Entry) bool, limit int) []audit.Entry {
	out := make([]audit.Entry, 0)
	for i := len(s.audit) - 1; i >= 0; i-- {
		if keep(s.audit[i]) {
			out = append(out, s.audit[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out[:clamp(len(out), limit)]
}

func (s *Store) ListAuditByActor(_ context.Context, actorID string, limit int) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newestFirst(func(e audit.Entry) bool { return e.UserID == actorID }, limit), nil
}

func (s *Store) ListRecentAudit(_ context.Context, limit int) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newestFirst(func(audit.Entry) bool { return true }, limit), nil
}

// ---- users ----

func (s *Store) GetUser(_ context.Context, id string) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return users.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

func (s *Store) PutUser(_ context.Context, u users.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) UpdateUser(_ context.Context, id string, fn func(u *users.User) error) (users.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return users.User{}, apperr.NotFound("user not found")
	}
	if err := fn(&u); err != nil {
		return users.User{}, err
	}
	s.users[id] = u
	return u, nil
}

// ---- disputes ----

func (s *Store) CreateDispute(_ context.Context, d disputes.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disputes[d.ID] = d
	return nil
}

func (s *Store) GetDispute(_ context.Context, id string) (disputes.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return disputes.Dispute{}, apperr.NotFound("dispute not found")
	}
	return d, nil
}

func (s *Store) UpdateDispute(_ context.Context, id string, fn func(d *disputes.Dispute) error) (disputes.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[id]
	if !ok {
		return disputes.Dispute{}, apperr.NotFound("dispute not found")
	}
	if err := fn(&d); err != nil {
		return disputes.Dispute{}, err
	}
	s.disputes[id] = d
	return d, nil
}

func (s *Store) ListDisputes(_ context.Context, f disputes.ListFilter) ([]disputes.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]disputes.Dispute, 0)
	for _, d := range s.disputes {
		if f.BuyerID != "" && d.BuyerID != f.BuyerID {
			continue
		}
		if f.SellerID != "" && d.SellerID != f.SellerID {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out[:clamp(len(out), f.Limit)], nil
}

// ---- reports ----

func (s *Store) CreateReport(_ context.Context, r reports.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r
	return nil
}

func (s *Store) UpdateReport(_ context.Context, id string, fn func(r *reports.Report) error) (reports.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return reports.Report{}, apperr.NotFound("report not found")
	}
	if err := fn(&r); err != nil {
		return reports.Report{}, err
	}
	s.reports[id] = r
	return r, nil
}

func (s *Store) ListReports(_ context.Context, limit int) ([]reports.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]reports.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out[:clamp(len(out), limit)], nil
}
