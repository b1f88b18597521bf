package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/audit"
	"github.com/thriftian/marketplace/internal/disputes"
	"github.com/thriftian/marketplace/internal/notify"
	"github.com/thriftian/marketplace/internal/reports"
	"github.com/thriftian/marketplace/internal/users"
)

var (
	_ notify.Store   = (*Store)(nil)
	_ audit.Store    = (*Store)(nil)
	_ users.Store    = (*Store)(nil)
	_ disputes.Store = (*Store)(nil)
	_ reports.Store  = (*Store)(nil)
)

// ----- notifications -----

func (s *Store) CreateNotification(ctx context.Context, n notify.Notification) error {
	if err := s.put(ctx, s.t.notifications, toNotificationItem(n), "", nil); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (s *Store) GetNotification(ctx context.Context, id string) (notify.Notification, error) {
	var it notificationItem
	if err := s.get(ctx, s.t.notifications, idKey(id), &it, "notification "+id); err != nil {
		return notify.Notification{}, err
	}
	return it.notification(), nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]notify.Notification, error) {
	out := []notify.Notification{}
	err := s.query(ctx, byPartition(s.t.notifications, idxUser, "user_id", userID), limit,
		func(item map[string]types.AttributeValue) error {
			var it notificationItem
			if err := attributevalue.UnmarshalMap(item, &it); err != nil {
				return err
			}
			out = append(out, it.notification())
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// markRead reports whether the notification was unread.
func (s *Store) markRead(ctx context.Context, id string) (bool, error) {
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.t.notifications),
		Key:                 idKey(id),
		UpdateExpression:    aws.String("SET is_read = :t"),
		ConditionExpression: aws.String("attribute_exists(id) AND is_read = :f"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
			":f": &types.AttributeValueMemberBOOL{Value: false},
		},
	})
	if err != nil {
		if conflicted(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	changed, err := s.markRead(ctx, id)
	if err != nil {
		return fmt.Errorf("mark notification %s: %w", id, err)
	}
	if !changed {
		if _, err := s.GetNotification(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	in := byPartition(s.t.notifications, idxUser, "user_id", userID)
	in.FilterExpression = aws.String("is_read = :f")
	in.ExpressionAttributeValues[":f"] = &types.AttributeValueMemberBOOL{Value: false}

	var ids []string
	err := s.query(ctx, in, 0, func(item map[string]types.AttributeValue) error {
		if id, ok := item["id"].(*types.AttributeValueMemberS); ok {
			ids = append(ids, id.Value)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("list unread notifications: %w", err)
	}
	n := 0
	for _, id := range ids {
		changed, err := s.markRead(ctx, id)
		if err != nil {
			return n, fmt.Errorf("mark notification %s: %w", id, err)
		}
		if changed {
			n++
		}
	}
	return n, nil
}

// ----- audit -----

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	if err := s.put(ctx, s.t.audit, toAuditItem(e), "attribute_not_exists(id)", nil); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *Store) listAudit(ctx context.Context, in *dynamodb.QueryInput, limit int) ([]audit.Entry, error) {
	out := []audit.Entry{}
	err := s.query(ctx, in, limit, func(item map[string]types.AttributeValue) error {
		var it auditItem
		if err := attributevalue.UnmarshalMap(item, &it); err != nil {
			return err
		}
		out = append(out, it.entry())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return out, nil
}

func (s *Store) ListAuditByActor(ctx context.Context, actorID string, limit int) ([]audit.Entry, error) {
	return s.listAudit(ctx, byPartition(s.t.audit, idxActor, "user_id", actorID), limit)
}

func (s *Store) ListRecentAudit(ctx context.Context, limit int) ([]audit.Entry, error) {
	return s.listAudit(ctx, byPartition(s.t.audit, idxAllTime, "all_key", allAudit), limit)
}

// ----- users -----

func (s *Store) getUser(ctx context.Context, id string) (userItem, error) {
	var it userItem
	err := s.get(ctx, s.t.users, idKey(id), &it, "user "+id)
	return it, err
}

func (s *Store) GetUser(ctx context.Context, id string) (users.User, error) {
	it, err := s.getUser(ctx, id)
	if err != nil {
		return users.User{}, err
	}
	return it.user(), nil
}

func (s *Store) PutUser(ctx context.Context, u users.User) error {
	if err := s.put(ctx, s.t.users, toUserItem(u), "", nil); err != nil {
		return fmt.Errorf("put user %s: %w", u.ID, err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, fn func(u *users.User) error) (users.User, error) {
	var out users.User
	err := s.retryCAS(ctx, "user "+id, func() error {
		it, err := s.getUser(ctx, id)
		if err != nil {
			return err
		}
		u := it.user()
		if err := fn(&u); err != nil {
			return err
		}
		if err := s.casPut(ctx, s.t.users, toUserItem(u), it.UpdatedAt); err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

// ----- disputes -----

func (s *Store) CreateDispute(ctx context.Context, d disputes.Dispute) error {
	if err := s.put(ctx, s.t.disputes, toDisputeItem(d), "attribute_not_exists(id)", nil); err != nil {
		if conflicted(err) {
			return apperr.Conflict("dispute %s already exists", d.ID)
		}
		return fmt.Errorf("create dispute: %w", err)
	}
	return nil
}

func (s *Store) getDispute(ctx context.Context, id string) (disputeItem, error) {
	var it disputeItem
	err := s.get(ctx, s.t.disputes, idKey(id), &it, "dispute "+id)
	return it, err
}

func (s *Store) GetDispute(ctx context.Context, id string) (disputes.Dispute, error) {
	it, err := s.getDispute(ctx, id)
	if err != nil {
		return disputes.Dispute{}, err
	}
	return it.dispute(), nil
}

func (s *Store) UpdateDispute(ctx context.Context, id string, fn func(d *disputes.Dispute) error) (disputes.Dispute, error) {
	var out disputes.Dispute
	err := s.retryCAS(ctx, "dispute "+id, func() error {
		it, err := s.getDispute(ctx, id)
		if err != nil {
			return err
		}
		d := it.dispute()
		if err := fn(&d); err != nil {
			return err
		}
		if err := s.casPut(ctx, s.t.disputes, toDisputeItem(d), it.UpdatedAt); err != nil {
			return err
		}
		out = d
		return nil
	})
	return out, err
}

func (s *Store) ListDisputes(ctx context.Context, f disputes.ListFilter) ([]disputes.Dispute, error) {
	var in *dynamodb.QueryInput
	switch {
	case f.BuyerID != "":
		in = byPartition(s.t.disputes, idxBuyer, "buyer_id", f.BuyerID)
	case f.SellerID != "":
		in = byPartition(s.t.disputes, idxSeller, "seller_id", f.SellerID)
	default:
		in = byPartition(s.t.disputes, idxAll, "all_key", allDisputes)
	}
	out := []disputes.Dispute{}
	err := s.query(ctx, in, f.Limit, func(item map[string]types.AttributeValue) error {
		var it disputeItem
		if err := attributevalue.UnmarshalMap(item, &it); err != nil {
			return err
		}
		out = append(out, it.dispute())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	return out, nil
}

// ----- reports -----

func (s *Store) CreateReport(ctx context.Context, r reports.Report) error {
	if err := s.put(ctx, s.t.reports, toReportItem(r), "attribute_not_exists(id)", nil); err != nil {
		if conflicted(err) {
			return apperr.Conflict("report %s already exists", r.ID)
		}
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (s *Store) UpdateReport(ctx context.Context, id string, fn func(r *reports.Report) error) (reports.Report, error) {
	var out reports.Report
	err := s.retryCAS(ctx, "report "+id, func() error {
		var it reportItem
		if err := s.get(ctx, s.t.reports, idKey(id), &it, "report "+id); err != nil {
			return err
		}
		r := it.report()
		if err := fn(&r); err != nil {
			return err
		}
		if err := s.casPut(ctx, s.t.reports, toReportItem(r), it.UpdatedAt); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (s *Store) ListReports(ctx context.Context, limit int) ([]reports.Report, error) {
	in := byPartition(s.t.reports, idxAll, "all_key", allReports)
	out := []reports.Report{}
	err := s.query(ctx, in, limit, func(item map[string]types.AttributeValue) error {
		var it reportItem
		if err := attributevalue.UnmarshalMap(item, &it); err != nil {
			return err
		}
		out = append(out, it.report())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return out, nil
}
