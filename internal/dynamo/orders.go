package dynamo

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/thriftian/marketplace/internal/orders"
)

var _ orders.Store = (*Store)(nil)

// PlaceOrder reads the products, lets plan decide, then commits the stock
// changes and the new order in one transaction conditioned on the stock
// and status it read. A lost race re-reads and re-plans.
func (s *Store) PlaceOrder(ctx context.Context, productIDs []string, plan orders.PlanFunc) (orders.Order, error) {
	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)

	var out orders.Order
	err := s.retryCAS(ctx, "stock", func() error {
		products, raw, err := s.loadProducts(ctx, ids)
		if err != nil {
			return err
		}
		placement, err := plan(products)
		if err != nil {
			return err
		}
		av, err := attributevalue.MarshalMap(toOrderItem(placement.Order))
		if err != nil {
			return err
		}
		writes := s.stockWrites(raw, placement.Products)
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{
			TableName:           aws.String(s.t.orders),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(id)"),
		}})
		if _, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes}); err != nil {
			return err
		}
		out = placement.Order
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return out, nil
}

func (s *Store) getOrder(ctx context.Context, id string) (orderItem, error) {
	var it orderItem
	err := s.get(ctx, s.t.orders, idKey(id), &it, "order "+id)
	return it, err
}

// UpdateOrder applies fn and writes the order with any restocked products in
// one transaction. The order write is conditioned on the status fn saw, so a
// concurrent transition forces fn to run again against the new status.
func (s *Store) UpdateOrder(ctx context.Context, id string, fn orders.Mutation) (orders.Order, error) {
	var out orders.Order
	err := s.retryCAS(ctx, "order "+id, func() error {
		it, err := s.getOrder(ctx, id)
		if err != nil {
			return err
		}
		o, err := it.order()
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(o.Items))
		for _, line := range o.Items {
			ids = append(ids, line.ProductID)
		}
		sort.Strings(ids)
		products, raw, err := s.loadProducts(ctx, ids)
		if err != nil {
			return err
		}

		changed, err := fn(&o, products)
		if err != nil {
			return err
		}
		av, err := attributevalue.MarshalMap(toOrderItem(o))
		if err != nil {
			return err
		}
		touched := make(map[string]productItem, len(changed))
		for _, p := range changed {
			touched[p.ID] = raw[p.ID]
		}
		writes := s.stockWrites(touched, changed)
		writes = append(writes, types.TransactWriteItem{Put: &types.Put{
			TableName:                aws.String(s.t.orders),
			Item:                     av,
			ConditionExpression:      aws.String("#st = :prevStatus AND updated_at = :prevUpdated"),
			ExpressionAttributeNames: map[string]string{"#st": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prevStatus":  str(it.Status),
				":prevUpdated": str(it.UpdatedAt),
			},
		}})
		if _, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes}); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return out, nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	it, err := s.getOrder(ctx, id)
	if err != nil {
		return orders.Order{}, err
	}
	return it.order()
}

func (s *Store) ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, error) {
	var in *dynamodb.QueryInput
	switch {
	case f.BuyerID != "":
		in = byPartition(s.t.orders, idxBuyer, "buyer_id", f.BuyerID)
	case f.SellerID != "":
		in = byPartition(s.t.orders, idxSeller, "seller_id", f.SellerID)
	default:
		in = byPartition(s.t.orders, idxAll, "all_key", allOrders)
	}
	out := []orders.Order{}
	err := s.query(ctx, in, f.Limit, func(item map[string]types.AttributeValue) error {
		var it orderItem
		if err := attributevalue.UnmarshalMap(item, &it); err != nil {
			return err
		}
		o, err := it.order()
		if err != nil {
			return err
		}
		out = append(out, o)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}
