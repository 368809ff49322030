package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotificationNotOwned is returned when a user tries to mark another
// user's notification read.
var ErrNotificationNotOwned = errors.New("notification belongs to another user")

// InsertNotifications writes a fan-out batch in one transaction so a
// partially delivered batch never lingers.
func (s *PostgresStore) InsertNotifications(ctx context.Context, items []Notification) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert notifications: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, item := range items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (id, user_id, title, message, category, document_id, request_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, item.ID, item.UserID, item.Title, item.Message, item.Category, item.DocumentID, item.RequestID); err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert notifications: %w", err)
	}
	return nil
}

// ListNotifications returns one page of the user's inbox, newest first.
// Older entries stay reachable through the offset.
func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, limit, offset int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, message, category, document_id, request_id, read_at, created_at
		FROM notifications
		WHERE user_id=$1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.Message, &item.Category,
			&item.DocumentID, &item.RequestID, &item.ReadAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND read_at IS NULL
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead sets read_at for a notification owned by userID.
// The ownership check rides in the WHERE clause so one user cannot mark
// another's inbox.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at=NOW() WHERE id=$1 AND user_id=$2 AND read_at IS NULL
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark notification read rows: %w", err)
	}
	if affected == 0 {
		var owner string
		err := s.db.QueryRowContext(ctx, `
			SELECT user_id FROM notifications WHERE id=$1
		`, notificationID).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		if err != nil {
			return fmt.Errorf("check notification: %w", err)
		}
		if owner != userID {
			return ErrNotificationNotOwned
		}
		// Already read: idempotent success.
	}
	return nil
}
