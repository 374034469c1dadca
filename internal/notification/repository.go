package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrRecipientNotFound = errors.New("recipient not found")

type Repository interface {
	// CreateIfAbsent persists the record unless its event was already
	// delivered. Returns false when the event ID is already present.
	CreateIfAbsent(ctx context.Context, rec *Record) (bool, error)

	// EventDelivered reports whether a record for the event already
	// exists, i.e. a retry is re-running the delivery side only.
	EventDelivered(ctx context.Context, eventID string) (bool, error)

	GetRecipient(ctx context.Context, userID int64) (*Recipient, error)
	GetUserNotifications(ctx context.Context, userID int64, limit, offset int, unreadOnly bool) ([]*Record, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkAsRead(ctx context.Context, notificationID, userID int64) error
	MarkAllAsRead(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	ListDeviceTokens(ctx context.Context, userID int64) ([]string, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateIfAbsent(ctx context.Context, rec *Record) (bool, error) {
	query := `
		INSERT INTO notifications (
			event_id, user_id, type, title, message, payload, priority, is_read, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
		ON CONFLICT (event_id) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		rec.EventID, rec.UserID, rec.Type, rec.Title, rec.Message,
		rec.Payload, rec.Priority, rec.ExpiresAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return false, nil // event already delivered
	}
	if err != nil {
		return false, fmt.Errorf("create notification %s: %w", rec.EventID, err)
	}
	return true, nil
}

func (r *postgresRepository) EventDelivered(ctx context.Context, eventID string) (bool, error) {
	var delivered bool
	query := `SELECT EXISTS (SELECT 1 FROM notifications WHERE event_id = $1)`
	if err := r.db.GetContext(ctx, &delivered, query, eventID); err != nil {
		return false, fmt.Errorf("check event %s: %w", eventID, err)
	}
	return delivered, nil
}

func (r *postgresRepository) GetRecipient(ctx context.Context, userID int64) (*Recipient, error) {
	var recipient Recipient
	query := `
		SELECT m.id, m.email, m.timezone, m.premium_active,
		       np.notifications_enabled, np.push_enabled, np.email_enabled,
		       np.new_matches, np.messages, np.profile_views, np.interests
		FROM members m
		JOIN notification_preferences np ON np.member_id = m.id
		WHERE m.id = $1
	`
	err := r.db.GetContext(ctx, &recipient, query, userID)
	if err == sql.ErrNoRows {
		return nil, ErrRecipientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipient %d: %w", userID, err)
	}
	return &recipient, nil
}

func (r *postgresRepository) GetUserNotifications(ctx context.Context, userID int64, limit, offset int, unreadOnly bool) ([]*Record, error) {
	query := `
		SELECT id, event_id, user_id, type, title, message, payload, priority,
		       is_read, read_at, created_at, expires_at
		FROM notifications
		WHERE user_id = $1 AND expires_at > NOW()
	`
	if unreadOnly {
		query += " AND is_read = FALSE"
	}
	query += " ORDER BY created_at DESC LIMIT $2 OFFSET $3"

	var records []*Record
	if err := r.db.SelectContext(ctx, &records, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("list notifications for %d: %w", userID, err)
	}
	return records, nil
}

func (r *postgresRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM notifications
		WHERE user_id = $1 AND is_read = FALSE AND expires_at > NOW()
	`
	if err := r.db.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("unread count for %d: %w", userID, err)
	}
	return count, nil
}

func (r *postgresRepository) MarkAsRead(ctx context.Context, notificationID, userID int64) error {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND user_id = $2 AND is_read = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, notificationID, userID); err != nil {
		return fmt.Errorf("mark read %d: %w", notificationID, err)
	}
	return nil
}

func (r *postgresRepository) MarkAllAsRead(ctx context.Context, userID int64) error {
	query := `
		UPDATE notifications
		SET is_read = TRUE, read_at = CURRENT_TIMESTAMP
		WHERE user_id = $1 AND is_read = FALSE
	`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("mark all read for %d: %w", userID, err)
	}
	return nil
}

// DeleteExpired removes records past their retention window
func (r *postgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *postgresRepository) ListDeviceTokens(ctx context.Context, userID int64) ([]string, error) {
	var tokens []string
	query := `
		SELECT token FROM device_tokens
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY last_seen_at DESC
	`
	if err := r.db.SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("list device tokens for %d: %w", userID, err)
	}
	return tokens, nil
}
