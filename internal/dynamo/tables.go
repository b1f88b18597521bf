package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	idxStatus  = "status-created"
	idxSeller  = "seller-created"
	idxBuyer   = "buyer-created"
	idxAll     = "all-created"
	idxUser    = "user-created"
	idxActor   = "actor-ts"
	idxAllTime = "all-ts"
)

type tableNames struct {
	products, orders, analytics, notifications, audit, users, disputes, reports string
}

func names(prefix string) tableNames {
	return tableNames{
		products:      prefix + "products",
		orders:        prefix + "orders",
		analytics:     prefix + "seller_analytics",
		notifications: prefix + "notifications",
		audit:         prefix + "audit_logs",
		users:         prefix + "users",
		disputes:      prefix + "disputes",
		reports:       prefix + "reports",
	}
}

type gsi struct{ name, hash, rng string }

type tableDef struct {
	name      string
	hash, rng string
	indexes   []gsi
}

func (s *Store) definitions() []tableDef {
	return []tableDef{
		{name: s.t.products, hash: "id", indexes: []gsi{
			{idxStatus, "status", "created_at"},
			{idxSeller, "seller_id", "created_at"},
		}},
		{name: s.t.orders, hash: "id", indexes: []gsi{
			{idxBuyer, "buyer_id", "created_at"},
			{idxSeller, "seller_id", "created_at"},
			{idxAll, "all_key", "created_at"},
		}},
		{name: s.t.analytics, hash: "seller_id", rng: "sk"},
		{name: s.t.notifications, hash: "id", indexes: []gsi{
			{idxUser, "user_id", "created_at"},
		}},
		{name: s.t.audit, hash: "id", indexes: []gsi{
			{idxActor, "user_id", "ts"},
			{idxAllTime, "all_key", "ts"},
		}},
		{name: s.t.users, hash: "id"},
		{name: s.t.disputes, hash: "id", indexes: []gsi{
			{idxBuyer, "buyer_id", "created_at"},
			{idxSeller, "seller_id", "created_at"},
			{idxAll, "all_key", "created_at"},
		}},
		{name: s.t.reports, hash: "id", indexes: []gsi{
			{idxAll, "all_key", "created_at"},
		}},
	}
}

func keySchema(hash, rng string) []types.KeySchemaElement {
	ks := []types.KeySchemaElement{{AttributeName: aws.String(hash), KeyType: types.KeyTypeHash}}
	if rng != "" {
		ks = append(ks, types.KeySchemaElement{AttributeName: aws.String(rng), KeyType: types.KeyTypeRange})
	}
	return ks
}

func (d tableDef) input() *dynamodb.CreateTableInput {
	attrs := map[string]bool{d.hash: true}
	if d.rng != "" {
		attrs[d.rng] = true
	}
	in := &dynamodb.CreateTableInput{
		TableName:   aws.String(d.name),
		KeySchema:   keySchema(d.hash, d.rng),
		BillingMode: types.BillingModePayPerRequest,
	}
	for _, ix := range d.indexes {
		attrs[ix.hash], attrs[ix.rng] = true, true
		in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
			IndexName:  aws.String(ix.name),
			KeySchema:  keySchema(ix.hash, ix.rng),
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		})
	}
	for a := range attrs {
		in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(a),
			AttributeType: types.ScalarAttributeTypeS,
		})
	}
	return in
}

// EnsureTables creates any missing table and waits until all are active.
func (s *Store) EnsureTables(ctx context.Context) error {
	waiter := dynamodb.NewTableExistsWaiter(s.api)
	for _, d := range s.definitions() {
		_, err := s.api.CreateTable(ctx, d.input())
		var inUse *types.ResourceInUseException
		if err != nil && !errors.As(err, &inUse) {
			return fmt.Errorf("create table %s: %w", d.name, err)
		}
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.name)}, time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", d.name, err)
		}
	}
	return nil
}
