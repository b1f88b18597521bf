package dynamo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/auth"
	"github.com/thriftian/marketplace/internal/catalog"
	"github.com/thriftian/marketplace/internal/disputes"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/orders"
	"github.com/thriftian/marketplace/internal/reports"
	"github.com/thriftian/marketplace/internal/users"
)

// tsLayout is fixed width so timestamps sort lexicographically in range keys.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// allKey is the constant partition used by indexes that list a whole table.
const (
	allOrders   = "ORDER"
	allAudit    = "AUDIT"
	allDisputes = "DISPUTE"
	allReports  = "REPORT"
)

type imageItem struct {
	URL      string `dynamodbav:"url"`
	PublicID string `dynamodbav:"public_id"`
}

type productItem struct {
	ID            string      `dynamodbav:"id"`
	SellerID      string      `dynamodbav:"seller_id"`
	SellerName    string      `dynamodbav:"seller_name"`
	Title         string      `dynamodbav:"title"`
	Description   string      `dynamodbav:"description"`
	Brand         *string     `dynamodbav:"brand,omitempty"`
	Category      string      `dynamodbav:"category"`
	Size          *string     `dynamodbav:"size,omitempty"`
	Condition     string      `dynamodbav:"condition"`
	Price         string      `dynamodbav:"price"`
	Stock         int         `dynamodbav:"stock"`
	Images        []imageItem `dynamodbav:"images"`
	Status        string      `dynamodbav:"status"`
	AverageRating float64     `dynamodbav:"average_rating"`
	ReviewCount   int         `dynamodbav:"review_count"`
	CreatedAt     string      `dynamodbav:"created_at"`
	UpdatedAt     string      `dynamodbav:"updated_at"`
}

func toProductItem(p catalog.Product) productItem {
	imgs := make([]imageItem, 0, len(p.Images))
	for _, im := range p.Images {
		imgs = append(imgs, imageItem{URL: im.URL, PublicID: im.PublicID})
	}
	return productItem{
		ID:            p.ID,
		SellerID:      p.SellerID,
		SellerName:    p.SellerName,
		Title:         p.Title,
		Description:   p.Description,
		Brand:         p.Brand,
		Category:      p.Category,
		Size:          p.Size,
		Condition:     string(p.Condition),
		Price:         p.Price.String(),
		Stock:         p.Stock,
		Images:        imgs,
		Status:        string(p.Status),
		AverageRating: p.AverageRating,
		ReviewCount:   p.ReviewCount,
		CreatedAt:     formatTime(p.CreatedAt),
		UpdatedAt:     formatTime(p.UpdatedAt),
	}
}

func (it productItem) product() (catalog.Product, error) {
	price, err := parseDecimal(it.Price)
	if err != nil {
		return catalog.Product{}, fmt.Errorf("product %s price: %w", it.ID, err)
	}
	imgs := make([]catalog.Image, 0, len(it.Images))
	for _, im := range it.Images {
		imgs = append(imgs, catalog.Image{URL: im.URL, PublicID: im.PublicID})
	}
	return catalog.Product{
		ID:            it.ID,
		SellerID:      it.SellerID,
		SellerName:    it.SellerName,
		Title:         it.Title,
		Description:   it.Description,
		Brand:         it.Brand,
		Category:      it.Category,
		Size:          it.Size,
		Condition:     catalog.Condition(it.Condition),
		Price:         price,
		Stock:         it.Stock,
		Images:        imgs,
		Status:        catalog.Status(it.Status),
		AverageRating: it.AverageRating,
		ReviewCount:   it.ReviewCount,
		CreatedAt:     parseTime(it.CreatedAt),
		UpdatedAt:     parseTime(it.UpdatedAt),
	}, nil
}

type lineItem struct {
	ProductID string `dynamodbav:"product_id"`
	Title     string `dynamodbav:"title"`
	Price     string `dynamodbav:"price"`
	Quantity  int    `dynamodbav:"quantity"`
	ImageURL  string `dynamodbav:"image_url"`
}

type addressItem struct {
	Street   string `dynamodbav:"street"`
	City     string `dynamodbav:"city"`
	Province string `dynamodbav:"province"`
	Zip      string `dynamodbav:"zip"`
}

type orderItem struct {
	ID              string      `dynamodbav:"id"`
	All             string      `dynamodbav:"all_key"`
	BuyerID         string      `dynamodbav:"buyer_id"`
	BuyerName       string      `dynamodbav:"buyer_name"`
	SellerID        string      `dynamodbav:"seller_id"`
	SellerName      string      `dynamodbav:"seller_name"`
	Items           []lineItem  `dynamodbav:"items"`
	TotalAmount     string      `dynamodbav:"total_amount"`
	PaymentMethod   string      `dynamodbav:"payment_method"`
	Status          string      `dynamodbav:"status"`
	TrackingNumber  *string     `dynamodbav:"tracking_number,omitempty"`
	ShippingAddress addressItem `dynamodbav:"shipping_address"`
	CreatedAt       string      `dynamodbav:"created_at"`
	UpdatedAt       string      `dynamodbav:"updated_at"`
}

func toOrderItem(o orders.Order) orderItem {
	lines := make([]lineItem, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, lineItem{
			ProductID: it.ProductID,
			Title:     it.Title,
			Price:     it.Price.String(),
			Quantity:  it.Quantity,
			ImageURL:  it.ImageURL,
		})
	}
	a := o.ShippingAddress
	return orderItem{
		ID:              o.ID,
		All:             allOrders,
		BuyerID:         o.BuyerID,
		BuyerName:       o.BuyerName,
		SellerID:        o.SellerID,
		SellerName:      o.SellerName,
		Items:           lines,
		TotalAmount:     o.TotalAmount.String(),
		PaymentMethod:   o.PaymentMethod,
		Status:          string(o.Status),
		TrackingNumber:  o.TrackingNumber,
		ShippingAddress: addressItem{Street: a.Street, City: a.City, Province: a.Province, Zip: a.Zip},
		CreatedAt:       formatTime(o.CreatedAt),
		UpdatedAt:       formatTime(o.UpdatedAt),
	}
}

func (it orderItem) order() (orders.Order, error) {
	total, err := parseDecimal(it.TotalAmount)
	if err != nil {
		return orders.Order{}, fmt.Errorf("order %s total: %w", it.ID, err)
	}
	lines := make([]orders.Item, 0, len(it.Items))
	for _, l := range it.Items {
		price, err := parseDecimal(l.Price)
		if err != nil {
			return orders.Order{}, fmt.Errorf("order %s line %s price: %w", it.ID, l.ProductID, err)
		}
		lines = append(lines, orders.Item{
			ProductID: l.ProductID,
			Title:     l.Title,
			Price:     price,
			Quantity:  l.Quantity,
			ImageURL:  l.ImageURL,
		})
	}
	a := it.ShippingAddress
	return orders.Order{
		ID:              it.ID,
		BuyerID:         it.BuyerID,
		BuyerName:       it.BuyerName,
		SellerID:        it.SellerID,
		SellerName:      it.SellerName,
		Items:           lines,
		TotalAmount:     total,
		PaymentMethod:   it.PaymentMethod,
		Status:          orders.Status(it.Status),
		TrackingNumber:  it.TrackingNumber,
		ShippingAddress: orders.Address{Street: a.Street, City: a.City, Province: a.Province, Zip: a.Zip},
		CreatedAt:       parseTime(it.CreatedAt),
		UpdatedAt:       parseTime(it.UpdatedAt),
	}, nil
}

type notificationItem struct {
	ID        string `dynamodbav:"id"`
	UserID    string `dynamodbav:"user_id"`
	Title     string `dynamodbav:"title"`
	Message   string `dynamodbav:"message"`
	Type      string `dynamodbav:"type"`
	IsRead    bool   `dynamodbav:"is_read"`
	CreatedAt string `dynamodbav:"created_at"`
}

func toNotificationItem(n notify.Notification) notificationItem {
	return notificationItem{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		IsRead:    n.IsRead,
		CreatedAt: formatTime(n.CreatedAt),
	}
}

func (it notificationItem) notification() notify.Notification {
	return notify.Notification{
		ID:        it.ID,
		UserID:    it.UserID,
		Title:     it.Title,
		Message:   it.Message,
		Type:      notify.Type(it.Type),
		IsRead:    it.IsRead,
		CreatedAt: parseTime(it.CreatedAt),
	}
}

type auditItem struct {
	ID        string `dynamodbav:"id"`
	All       string `dynamodbav:"all_key"`
	UserID    string `dynamodbav:"user_id"`
	Action    string `dynamodbav:"action"`
	TargetID  string `dynamodbav:"target_id"`
	Details   string `dynamodbav:"details"`
	Timestamp string `dynamodbav:"ts"`
}

func toAuditItem(e audit.Entry) auditItem {
	return auditItem{
		ID:        e.ID,
		All:       allAudit,
		UserID:    e.UserID,
		Action:    string(e.Action),
		TargetID:  e.Metadata.TargetID,
		Details:   e.Metadata.Details,
		Timestamp: formatTime(e.Timestamp),
	}
}

func (it auditItem) entry() audit.Entry {
	return audit.Entry{
		ID:        it.ID,
		UserID:    it.UserID,
		Action:    audit.Action(it.Action),
		Metadata:  audit.Metadata{TargetID: it.TargetID, Details: it.Details},
		Timestamp: parseTime(it.Timestamp),
	}
}

type userItem struct {
	ID        string       `dynamodbav:"id"`
	Name      string       `dynamodbav:"name"`
	Email     string       `dynamodbav:"email"`
	Role      string       `dynamodbav:"role"`
	Verified  bool         `dynamodbav:"verified"`
	Phone     *string      `dynamodbav:"phone,omitempty"`
	Address   *addressItem `dynamodbav:"address,omitempty"`
	CreatedAt string       `dynamodbav:"created_at"`
	UpdatedAt string       `dynamodbav:"updated_at"`
}

func toUserItem(u users.User) userItem {
	it := userItem{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		Verified:  u.Verified,
		Phone:     u.Phone,
		CreatedAt: formatTime(u.CreatedAt),
		UpdatedAt: formatTime(u.UpdatedAt),
	}
	if a := u.Address; a != nil {
		it.Address = &addressItem{Street: a.Street, City: a.City, Province: a.Province, Zip: a.Zip}
	}
	return it
}

func (it userItem) user() users.User {
	u := users.User{
		ID:        it.ID,
		Name:      it.Name,
		Email:     it.Email,
		Role:      auth.Role(it.Role),
		Verified:  it.Verified,
		Phone:     it.Phone,
		CreatedAt: parseTime(it.CreatedAt),
		UpdatedAt: parseTime(it.UpdatedAt),
	}
	if a := it.Address; a != nil {
		u.Address = &users.Address{Street: a.Street, City: a.City, Province: a.Province, Zip: a.Zip}
	}
	return u
}

type disputeItem struct {
	ID              string  `dynamodbav:"id"`
	All             string  `dynamodbav:"all_key"`
	OrderID         string  `dynamodbav:"order_id"`
	BuyerID         string  `dynamodbav:"buyer_id"`
	SellerID        string  `dynamodbav:"seller_id"`
	Reason          string  `dynamodbav:"reason"`
	Status          string  `dynamodbav:"status"`
	AdminID         *string `dynamodbav:"admin_id,omitempty"`
	ResolutionNotes *string `dynamodbav:"resolution_notes,omitempty"`
	CreatedAt       string  `dynamodbav:"created_at"`
	UpdatedAt       string  `dynamodbav:"updated_at"`
}

func toDisputeItem(d disputes.Dispute) disputeItem {
	return disputeItem{
		ID:              d.ID,
		All:             allDisputes,
		OrderID:         d.OrderID,
		BuyerID:         d.BuyerID,
		SellerID:        d.SellerID,
		Reason:          d.Reason,
		Status:          string(d.Status),
		AdminID:         d.AdminID,
		ResolutionNotes: d.ResolutionNotes,
		CreatedAt:       formatTime(d.CreatedAt),
		UpdatedAt:       formatTime(d.UpdatedAt),
	}
}

func (it disputeItem) dispute() disputes.Dispute {
	return disputes.Dispute{
		ID:              it.ID,
		OrderID:         it.OrderID,
		BuyerID:         it.BuyerID,
		SellerID:        it.SellerID,
		Reason:          it.Reason,
		Status:          disputes.Status(it.Status),
		AdminID:         it.AdminID,
		ResolutionNotes: it.ResolutionNotes,
		CreatedAt:       parseTime(it.CreatedAt),
		UpdatedAt:       parseTime(it.UpdatedAt),
	}
}

type reportItem struct {
	ID         string `dynamodbav:"id"`
	All        string `dynamodbav:"all_key"`
	Type       string `dynamodbav:"type"`
	TargetID   string `dynamodbav:"target_id"`
	ReportedBy string `dynamodbav:"reported_by"`
	Reason     string `dynamodbav:"reason"`
	Status     string `dynamodbav:"status"`
	CreatedAt  string `dynamodbav:"created_at"`
	UpdatedAt  string `dynamodbav:"updated_at"`
}

func toReportItem(r reports.Report) reportItem {
	return reportItem{
		ID:         r.ID,
		All:        allReports,
		Type:       string(r.Type),
		TargetID:   r.TargetID,
		ReportedBy: r.ReportedBy,
		Reason:     r.Reason,
		Status:     string(r.Status),
		CreatedAt:  formatTime(r.CreatedAt),
		UpdatedAt:  formatTime(r.UpdatedAt),
	}
}

func (it reportItem) report() reports.Report {
	return reports.Report{
		ID:         it.ID,
		Type:       reports.Type(it.Type),
		TargetID:   it.TargetID,
		ReportedBy: it.ReportedBy,
		Reason:     it.Reason,
		Status:     reports.Status(it.Status),
		CreatedAt:  parseTime(it.CreatedAt),
		UpdatedAt:  parseTime(it.UpdatedAt),
	}
}
