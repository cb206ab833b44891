package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested notification does not exist for the user.
var ErrNotFound = errors.New("notification: not found")

const columns = `id, user_id, type, title, message, is_read, entity_id, entity_type, metadata, created_at`

// PGRepository implements Store backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// InsertDeduped relies on the partial unique index over unread
// (user_id, entity_id, entity_type, type) rows; the conflict path makes a
// replayed event write nothing while an unread notification with the same key
// exists. Notifications without an entity reference are always inserted.
func (r *PGRepository) InsertDeduped(ctx context.Context, n Notification) (bool, error) {
	metadata, err := marshalMetadata(n.Metadata)
	if err != nil {
		return false, err
	}

	const query = `
        INSERT INTO notifications (user_id, type, title, message, entity_id, entity_type, metadata)
        VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
        ON CONFLICT (user_id, entity_id, entity_type, type) WHERE entity_id IS NOT NULL AND NOT is_read
        DO NOTHING
        RETURNING id
    `
	var id string
	err = r.pool.QueryRow(ctx, query, n.UserID, n.Type, n.Title, n.Message, n.EntityID, n.EntityType, metadata).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("notification: insert: %w", err)
	}
	return true, nil
}

// MarkRead flips the read flag on one notification owned by the user.
func (r *PGRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	tag, err := r.pool.Exec(ctx, `
        UPDATE notifications SET is_read = true
        WHERE id = $1 AND user_id = $2
    `, notificationID, userID)
	if err != nil {
		return fmt.Errorf("notification: mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead flips the read flag on every unread notification for the user
// and returns how many were updated.
func (r *PGRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
        UPDATE notifications SET is_read = true
        WHERE user_id = $1 AND is_read = false
    `, userID)
	if err != nil {
		return 0, fmt.Errorf("notification: mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
        SELECT COUNT(*) FROM notifications
        WHERE user_id = $1 AND is_read = false
    `, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("notification: unread count: %w", err)
	}
	return count, nil
}

// List returns the user's notifications, newest first.
func (r *PGRepository) List(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, columns)
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("notification: list: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("notification: scan: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notification: iterate: %w", err)
	}
	return out, nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n   Notification
		raw []byte
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.EntityID, &n.EntityType, &raw, &n.CreatedAt); err != nil {
		return Notification{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &n.Metadata); err != nil {
			return Notification{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return n, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("notification: marshal metadata: %w", err)
	}
	return string(b), nil
}
