package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"bizgrow/internal/session"
)

// RedisStore 按浏览器 profile 保存权限状态，key: push:permission:<user>:<device>
type RedisStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func Key(userID, deviceID string) string {
	return fmt.Sprintf("push:permission:%s:%s", userID, deviceID)
}

func (s *RedisStore) Load(ctx context.Context, userID, deviceID string) (session.Permission, error) {
	v, err := s.rdb.Get(ctx, Key(userID, deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return session.PermissionDefault, nil
	}
	if err != nil {
		return session.PermissionDefault, fmt.Errorf("load permission: %w", err)
	}
	return session.ParsePermission(v), nil
}

func (s *RedisStore) Save(ctx context.Context, userID, deviceID string, p session.Permission) error {
	if p == session.PermissionDefault {
		return s.rdb.Del(ctx, Key(userID, deviceID)).Err()
	}
	return s.rdb.Set(ctx, Key(userID, deviceID), string(p), 0).Err()
}
