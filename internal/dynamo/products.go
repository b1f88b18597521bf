package dynamo

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/catalog"
)

var _ catalog.Store = (*Store)(nil)

func (s *Store) CreateProduct(ctx context.Context, p catalog.Product) error {
	if err := s.put(ctx, s.t.products, toProductItem(p), "attribute_not_exists(id)", nil); err != nil {
		if conflicted(err) {
			return apperr.Conflict("product %s already exists", p.ID)
		}
		return fmt.Errorf("create product %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) getProduct(ctx context.Context, id string) (productItem, error) {
	var it productItem
	err := s.get(ctx, s.t.products, idKey(id), &it, "product "+id)
	return it, err
}

func (s *Store) GetProduct(ctx context.Context, id string) (catalog.Product, error) {
	it, err := s.getProduct(ctx, id)
	if err != nil {
		return catalog.Product{}, err
	}
	return it.product()
}

func (s *Store) UpdateProduct(ctx context.Context, id string, fn func(p *catalog.Product) error) (catalog.Product, error) {
	var out catalog.Product
	err := s.retryCAS(ctx, "product "+id, func() error {
		it, err := s.getProduct(ctx, id)
		if err != nil {
			return err
		}
		p, err := it.product()
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		if err := s.casPut(ctx, s.t.products, toProductItem(p), it.UpdatedAt); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.t.products),
		Key:                 idKey(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if err != nil {
		if conflicted(err) {
			return apperr.NotFound("product %s not found", id)
		}
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	return nil
}

// ListProducts queries by seller when one is given, otherwise by status.
func (s *Store) ListProducts(ctx context.Context, f catalog.ListFilter) ([]catalog.Product, error) {
	var in *dynamodb.QueryInput
	switch {
	case f.SellerID != "":
		in = byPartition(s.t.products, idxSeller, "seller_id", f.SellerID)
		if f.Status != "" {
			in.FilterExpression = aws.String("#st = :st")
			in.ExpressionAttributeNames["#st"] = "status"
			in.ExpressionAttributeValues[":st"] = str(string(f.Status))
		}
	case f.Status != "":
		in = byPartition(s.t.products, idxStatus, "status", string(f.Status))
	default:
		return s.scanProducts(ctx, f.Limit)
	}

	out := []catalog.Product{}
	err := s.query(ctx, in, f.Limit, func(item map[string]types.AttributeValue) error {
		var it productItem
		if err := attributevalue.UnmarshalMap(item, &it); err != nil {
			return err
		}
		p, err := it.product()
		if err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (s *Store) scanProducts(ctx context.Context, limit int) ([]catalog.Product, error) {
	var (
		out   []catalog.Product
		start map[string]types.AttributeValue
	)
	for {
		res, err := s.api.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(s.t.products), ExclusiveStartKey: start})
		if err != nil {
			return nil, fmt.Errorf("scan products: %w", err)
		}
		for _, item := range res.Items {
			var it productItem
			if err := attributevalue.UnmarshalMap(item, &it); err != nil {
				return nil, err
			}
			p, err := it.product()
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		start = res.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []catalog.Product{}
	}
	return out, nil
}

// loadProducts reads every id it can find; missing ids are left out.
func (s *Store) loadProducts(ctx context.Context, ids []string) (map[string]catalog.Product, map[string]productItem, error) {
	products := make(map[string]catalog.Product, len(ids))
	raw := make(map[string]productItem, len(ids))
	for _, id := range ids {
		if _, seen := raw[id]; seen {
			continue
		}
		it, err := s.getProduct(ctx, id)
		if apperr.Is(err, apperr.KindNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		p, err := it.product()
		if err != nil {
			return nil, nil, err
		}
		products[id], raw[id] = p, it
	}
	return products, raw, nil
}

// stockWrites turns changed products into conditional updates on the stock
// and status that were read, and guards the unchanged ones with condition
// checks so the whole plan commits against one consistent view.
func (s *Store) stockWrites(raw map[string]productItem, changed []catalog.Product) []types.TransactWriteItem {
	touched := make(map[string]bool, len(changed))
	var out []types.TransactWriteItem
	for _, p := range changed {
		prev := raw[p.ID]
		touched[p.ID] = true
		out = append(out, types.TransactWriteItem{Update: &types.Update{
			TableName:           aws.String(s.t.products),
			Key:                 idKey(p.ID),
			UpdateExpression:    aws.String("SET stock = :stock, #st = :status, updated_at = :updated"),
			ConditionExpression: aws.String("stock = :prevStock AND #st = :prevStatus"),
			ExpressionAttributeNames: map[string]string{
				"#st": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":stock":      num(fmt.Sprint(p.Stock)),
				":status":     str(string(p.Status)),
				":updated":    str(formatTime(p.UpdatedAt)),
				":prevStock":  num(fmt.Sprint(prev.Stock)),
				":prevStatus": str(prev.Status),
			},
		}})
	}
	for id, prev := range raw {
		if touched[id] {
			continue
		}
		out = append(out, types.TransactWriteItem{ConditionCheck: &types.ConditionCheck{
			TableName:           aws.String(s.t.products),
			Key:                 idKey(id),
			ConditionExpression: aws.String("updated_at = :prev"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prev": str(prev.UpdatedAt),
			},
		}})
	}
	return out
}
