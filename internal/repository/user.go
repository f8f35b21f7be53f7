package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/model"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

// UserRepository 用户数据访问
// 账号注册/密码由外部服务负责，这里只读公开资料，
// 在线状态与最后在线时间由在线状态追踪器回写
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID 按 ID 查找用户公开信息
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	query := `
		SELECT id, display_name, avatar, is_online, last_seen
		FROM users WHERE id = $1
	`
	var user model.User
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.DisplayName,
		&user.Avatar,
		&user.IsOnline,
		&user.LastSeen,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetOnline 更新在线标记与最后在线时间
func (r *UserRepository) SetOnline(ctx context.Context, id int64, online bool) error {
	query := `UPDATE users SET is_online = $2, last_seen = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, query, id, online)
	return err
}
