package postgres

import (
	"context"

	"github.com/thriftian/marketplace/internal/apperr"
	"github.com/thriftian/marketplace/internal/notify"
)

func (s *Store) CreateNotification(ctx context.Context, n notify.Notification) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO notifications(id, user_id, title, message, type, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		n.ID, n.UserID, n.Title, n.Message, string(n.Type), n.IsRead, n.CreatedAt)
	return err
}

func (s *Store) GetNotification(ctx context.Context, id string) (notify.Notification, error) {
	var n notify.Notification
	err := s.DB.QueryRow(ctx, `
		SELECT id, user_id, title, message, type, is_read, created_at
		FROM notifications WHERE id=$1`, id).
		Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return notify.Notification{}, notFound(err, "notification")
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]notify.Notification, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, user_id, title, message, type, is_read, created_at
		FROM notifications WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limitOr(limit, notify.PageSize))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notify.Notification
	for rows.Next() {
		var n notify.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("notification not found")
	}
	return nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) (int, error) {
	ct, err := s.DB.Exec(ctx, `UPDATE notifications SET is_read=TRUE WHERE user_id=$1 AND NOT is_read`, userID)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

var _ notify.Store = (*Store)(nil)
