package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thriftian/marketplace/internal/catalog"
)

const PaymentCashOnDelivery = "Cash on Delivery"

type Address struct {
	Street   string `json:"street" validate:"min=5"`
	City     string `json:"city" validate:"min=2"`
	Province string `json:"province" validate:"min=2"`
	Zip      string `json:"zip" validate:"min=4"`
}

// Item is a line item. Title, price and image are snapshots taken at
// checkout and never follow later edits to the product.
type Item struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	ImageURL  string          `json:"imageUrl"`
}

type Order struct {
	ID              string          `json:"id"`
	BuyerID         string          `json:"buyerId"`
	BuyerName       string          `json:"buyerName"`
	SellerID        string          `json:"sellerId"`
	SellerName      string          `json:"sellerName"`
	Items           []Item          `json:"items"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	PaymentMethod   string          `json:"paymentMethod"`
	Status          Status          `json:"status"`
	TrackingNumber  *string         `json:"trackingNumber"`
	ShippingAddress Address         `json:"shippingAddress"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Placement is what a checkout commits in one atomic unit: the new order and
// the products whose stock (and possibly status) it changed.
type Placement struct {
	Order    Order
	Products []catalog.Product
}

// PlanFunc decides a checkout against the current state of the requested
// products. Ids missing from the map do not exist.
type PlanFunc func(products map[string]catalog.Product) (Placement, error)

// Mutation changes an order in place and returns the products it changed.
// products holds the current state of every product referenced by the order.
type Mutation func(o *Order, products map[string]catalog.Product) ([]catalog.Product, error)

type ListFilter struct {
	BuyerID  string
	SellerID string
	Limit    int
}

// Store is the order ledger. PlaceOrder and UpdateOrder must isolate the
// products and order they touch from concurrent callers for the whole call:
// row locks, compare-and-swap with retry, or a mutex.
type Store interface {
	PlaceOrder(ctx context.Context, productIDs []string, plan PlanFunc) (Order, error)
	UpdateOrder(ctx context.Context, id string, fn Mutation) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
}
