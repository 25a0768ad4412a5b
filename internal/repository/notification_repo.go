package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	dbcontracts "bizgrow/contracts/db"
	"bizgrow/internal/model"
)

type NotificationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewNotificationRepository(db *pgxpool.Pool, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Record 写入收件箱。同一条消息被多个会话展示时只保留一行。
func (r *NotificationRepository) Record(ctx context.Context, m model.Message) error {
	url := m.URL
	if url == "" {
		url = "/"
	}
	query := `
        INSERT INTO notifications (message_id, user_id, title, body, tag, url)
        VALUES ($1::text::uuid, $2, $3, $4, $5, $6)
        ON CONFLICT (message_id) DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query, m.ID, m.TargetUserID, m.Title, m.Body, m.Tag, url)
	if err != nil {
		r.logger.Error("Failed to insert notification", zap.String("message_id", m.ID), zap.Error(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.Debug("Notification already recorded", zap.String("message_id", m.ID))
	}
	return nil
}

// ListByUser returns the newest notifications first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]dbcontracts.Notification, error) {
	query := `
        SELECT id, message_id::text, user_id, title, body, tag, url, is_read, created_at
        FROM notifications
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dbcontracts.Notification{}
	for rows.Next() {
		var n dbcontracts.Notification
		if err := rows.Scan(
			&n.ID,
			&n.MessageID,
			&n.UserID,
			&n.Title,
			&n.Body,
			&n.Tag,
			&n.URL,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkAsRead 只允许标记自己的通知，返回是否命中
func (r *NotificationRepository) MarkAsRead(ctx context.Context, userID string, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
