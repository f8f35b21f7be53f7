package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusWriter 把在线状态回写到用户表，供 REST 查询联表展示
type StatusWriter interface {
	SetOnline(ctx context.Context, id int64, online bool) error
}

// Tracker 在线状态追踪器
// 在线标记存 Redis 并带 TTL，心跳续期；进程崩溃后标记自动过期，
// 不会残留永久在线的用户
type Tracker struct {
	client *redis.Client
	status StatusWriter
	logger *slog.Logger
}

// NewTracker 创建在线状态追踪器，status 可为 nil
func NewTracker(client *redis.Client, status StatusWriter) *Tracker {
	return &Tracker{
		client: client,
		status: status,
		logger: slog.Default(),
	}
}

// MarkOnline 标记用户上线
func (t *Tracker) MarkOnline(ctx context.Context, userID int64) error {
	if err := t.client.Set(ctx, BuildOnlineKey(userID), "1", OnlineTTL).Err(); err != nil {
		return err
	}

	if t.status != nil {
		if err := t.status.SetOnline(ctx, userID, true); err != nil {
			t.logger.Warn("Failed to persist online flag", "userId", userID, "error", err)
		}
	}

	t.logger.Debug("User online", "userId", userID)
	return nil
}

// Refresh 心跳续期
func (t *Tracker) Refresh(ctx context.Context, userID int64) error {
	return t.client.Expire(ctx, BuildOnlineKey(userID), OnlineTTL).Err()
}

// MarkOffline 标记用户下线并记录最后在线时间
func (t *Tracker) MarkOffline(ctx context.Context, userID int64) error {
	now := time.Now().UnixMilli()

	pipe := t.client.Pipeline()
	pipe.Del(ctx, BuildOnlineKey(userID))
	pipe.Set(ctx, BuildLastSeenKey(userID), now, 0)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return err
	}

	if t.status != nil {
		if err := t.status.SetOnline(ctx, userID, false); err != nil {
			t.logger.Warn("Failed to persist offline flag", "userId", userID, "error", err)
		}
	}

	t.logger.Debug("User offline", "userId", userID)
	return nil
}

// IsOnline 查询用户是否在线
func (t *Tracker) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := t.client.Exists(ctx, BuildOnlineKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LastSeen 查询最后在线时间，从未在线返回零值
func (t *Tracker) LastSeen(ctx context.Context, userID int64) (time.Time, error) {
	ms, err := t.client.Get(ctx, BuildLastSeenKey(userID)).Int64()
	if err != nil {
		if err == redis.Nil {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
