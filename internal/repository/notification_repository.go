package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/esgboard/kpiledger/internal/domain"
)

type notificationRepository struct {
	pool *pgxpool.Pool
}

// NewNotificationRepository wires a repository backed by pgxpool.
func NewNotificationRepository(pool *pgxpool.Pool) NotificationRepository {
	return &notificationRepository{pool: pool}
}

func (r *notificationRepository) Create(ctx context.Context, notification domain.Notification) error {
	if r.pool == nil {
		return fmt.Errorf("notification repository not initialized")
	}

	_, err := r.pool.Exec(
		ctx,
		`INSERT INTO notifications (id, type, priority, severity, message, read, check_result_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		notification.ID,
		string(notification.Type),
		string(notification.Priority),
		notification.Severity,
		notification.Message,
		notification.Read,
		notification.CheckResultID,
		notification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

func (r *notificationRepository) List(ctx context.Context, limit int, unreadOnly bool) ([]domain.Notification, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("notification repository not initialized")
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT id, type, priority, severity, message, read, check_result_id, created_at
	 FROM notifications`
	if unreadOnly {
		query += ` WHERE read = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []domain.Notification{}
	for rows.Next() {
		var (
			notification domain.Notification
			kind         string
			priority     string
		)
		if err := rows.Scan(
			&notification.ID,
			&kind,
			&priority,
			&notification.Severity,
			&notification.Message,
			&notification.Read,
			&notification.CheckResultID,
			&notification.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notification.Type = domain.NotificationType(kind)
		notification.Priority = domain.NotificationPriority(priority)
		notifications = append(notifications, notification)
	}

	return notifications, rows.Err()
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uuid.UUID) error {
	if r.pool == nil {
		return fmt.Errorf("notification repository not initialized")
	}

	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %s not found", id)
	}

	return nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("notification repository not initialized")
	}

	var count int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM notifications WHERE read = FALSE`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}
