package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/thriftian/marketplace/internal/analytics"
	"github.com/thriftian/marketplace/internal/outbox"
)

var _ analytics.Store = (*Store)(nil)

// Rows of the analytics table, all under the seller's partition.
const (
	skTotals  = "TOTALS"
	skProduct = "PRODUCT#"
	skSale    = "SALE#"
)

type totalsItem struct {
	TotalOrders int64  `dynamodbav:"total_orders"`
	LastUpdated string `dynamodbav:"last_updated"`
}

type productUnitsItem struct {
	SK    string `dynamodbav:"sk"`
	Units int64  `dynamodbav:"units"`
}

func sellerKey(sellerID, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"seller_id": str(sellerID), "sk": str(sk)}
}

// ApplySale writes a SALE# marker for the order and ADDs the counters in the
// same transaction. A marker that already exists cancels the whole write,
// which is how a redelivered sale is recognised.
func (s *Store) ApplySale(ctx context.Context, sale outbox.Sale, at time.Time) (bool, error) {
	units := map[string]int64{}
	for _, l := range sale.Lines {
		units[l.ProductID] += int64(l.Quantity)
	}

	writes := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName: aws.String(s.t.analytics),
			Item: map[string]types.AttributeValue{
				"seller_id":  str(sale.SellerID),
				"sk":         str(skSale + sale.OrderID),
				"applied_at": str(formatTime(at)),
			},
			ConditionExpression: aws.String("attribute_not_exists(sk)"),
		}},
		{Update: &types.Update{
			TableName:        aws.String(s.t.analytics),
			Key:              sellerKey(sale.SellerID, skTotals),
			UpdateExpression: aws.String("ADD total_sales :amount, total_orders :one SET last_updated = :at"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":amount": num(sale.Amount.String()),
				":one":    num("1"),
				":at":     str(formatTime(at)),
			},
		}},
	}
	for id, n := range units {
		writes = append(writes, types.TransactWriteItem{Update: &types.Update{
			TableName:                 aws.String(s.t.analytics),
			Key:                       sellerKey(sale.SellerID, skProduct+id),
			UpdateExpression:          aws.String("ADD units :n"),
			ExpressionAttributeValues: map[string]types.AttributeValue{":n": num(fmt.Sprint(n))},
		}})
	}

	_, err := s.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: writes})
	if err == nil {
		return true, nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) && len(tce.CancellationReasons) > 0 &&
		aws.ToString(tce.CancellationReasons[0].Code) == "ConditionalCheckFailed" {
		return false, nil
	}
	return false, fmt.Errorf("apply sale %s: %w", sale.OrderID, err)
}

// GetAnalytics reads the totals row, then only the PRODUCT# rows of the
// seller's partition; SALE# markers grow with every order and are never read
// here. total_sales is a number attribute and is parsed straight into a
// decimal.
func (s *Store) GetAnalytics(ctx context.Context, sellerID string, topN int) (analytics.Analytics, bool, error) {
	res, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.t.analytics),
		Key:            sellerKey(sellerID, skTotals),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return analytics.Analytics{}, false, fmt.Errorf("get analytics %s: %w", sellerID, err)
	}
	if res.Item == nil {
		return analytics.Analytics{}, false, nil
	}

	a := analytics.Analytics{SellerID: sellerID}
	if n, ok := res.Item["total_sales"].(*types.AttributeValueMemberN); ok {
		total, err := parseDecimal(n.Value)
		if err != nil {
			return analytics.Analytics{}, false, fmt.Errorf("decode analytics %s: %w", sellerID, err)
		}
		a.TotalSales = total
	}
	var t totalsItem
	if err := attributevalue.UnmarshalMap(res.Item, &t); err != nil {
		return analytics.Analytics{}, false, fmt.Errorf("decode analytics %s: %w", sellerID, err)
	}
	a.TotalOrders = t.TotalOrders
	if t.LastUpdated != "" {
		ts := parseTime(t.LastUpdated)
		a.LastUpdated = &ts
	}

	units := map[string]int64{}
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.t.analytics),
		KeyConditionExpression: aws.String("seller_id = :sid AND begins_with(sk, :product)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sid":     str(sellerID),
			":product": str(skProduct),
		},
		ConsistentRead: aws.Bool(true),
	}
	err = s.query(ctx, in, 0, func(item map[string]types.AttributeValue) error {
		var p productUnitsItem
		if err := attributevalue.UnmarshalMap(item, &p); err != nil {
			return err
		}
		units[strings.TrimPrefix(p.SK, skProduct)] = p.Units
		return nil
	})
	if err != nil {
		return analytics.Analytics{}, false, fmt.Errorf("get analytics %s: %w", sellerID, err)
	}
	a.TopProducts = analytics.RankProducts(units, topN)
	return a, true, nil
}
