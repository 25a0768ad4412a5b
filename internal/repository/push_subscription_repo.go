package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	dbcontracts "bizgrow/contracts/db"
	"bizgrow/internal/model"
)

type PushSubscriptionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPushSubscriptionRepository(db *pgxpool.Pool, logger *zap.Logger) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert 同一 endpoint 只保留一条，浏览器重新订阅时更新密钥和归属
func (r *PushSubscriptionRepository) Upsert(ctx context.Context, userID, deviceID string, sub model.PushSubscription) error {
	r.logger.Debug("Upserting push subscription",
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
	)

	query := `
        INSERT INTO push_subscriptions (user_id, device_id, endpoint, p256dh, auth)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (endpoint) DO UPDATE
        SET user_id = EXCLUDED.user_id,
            device_id = EXCLUDED.device_id,
            p256dh = EXCLUDED.p256dh,
            auth = EXCLUDED.auth
    `
	_, err := r.db.Exec(ctx, query, userID, deviceID, sub.Endpoint, sub.Keys.P256dh, sub.Keys.Auth)
	return err
}

func (r *PushSubscriptionRepository) HasSubscription(ctx context.Context, userID, deviceID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM push_subscriptions WHERE user_id = $1 AND device_id = $2)`
	var ok bool
	err := r.db.QueryRow(ctx, query, userID, deviceID).Scan(&ok)
	return ok, err
}

// ListByDevice returns the subscriptions registered for one browser profile.
func (r *PushSubscriptionRepository) ListByDevice(ctx context.Context, userID, deviceID string) ([]dbcontracts.PushSubscription, error) {
	query := `
        SELECT id, user_id, device_id, endpoint, p256dh, auth, created_at
        FROM push_subscriptions
        WHERE user_id = $1 AND device_id = $2
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []dbcontracts.PushSubscription{}
	for rows.Next() {
		var s dbcontracts.PushSubscription
		if err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.DeviceID,
			&s.Endpoint,
			&s.P256dh,
			&s.Auth,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *PushSubscriptionRepository) DeleteDevice(ctx context.Context, userID, deviceID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE user_id = $1 AND device_id = $2`, userID, deviceID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteByEndpoint 推送服务返回 404/410 时清理失效订阅
func (r *PushSubscriptionRepository) DeleteByEndpoint(ctx context.Context, endpoint string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	return err
}
