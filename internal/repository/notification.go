package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/model"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// NotificationRepository 通知仓库
type NotificationRepository struct {
	db *pgxpool.Pool
}

// NewNotificationRepository 创建通知仓库
func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create 写入通知记录
func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	query := `
		INSERT INTO notifications (id, recipient_id, sender_id, type, referenced, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		n.ID,
		n.RecipientID,
		n.SenderID,
		n.Type,
		n.Referenced,
		n.Message,
		n.IsRead,
		n.CreatedAt,
	)
	return err
}

// ListByRecipient 获取用户最近的通知，按时间倒序
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]model.Notification, error) {
	query := `
		SELECT n.id, n.recipient_id, n.sender_id, n.type, n.referenced, n.message, n.is_read, n.created_at,
		       u.display_name, u.avatar
		FROM notifications n
		JOIN users u ON u.id = n.sender_id
		WHERE n.recipient_id = $1
		ORDER BY n.created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.SenderID,
			&n.Type,
			&n.Referenced,
			&n.Message,
			&n.IsRead,
			&n.CreatedAt,
			&n.SenderName,
			&n.SenderAvatar,
		); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}

	return notifications, rows.Err()
}

// MarkRead 标记单条已读
func (r *NotificationRepository) MarkRead(ctx context.Context, id int64) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead 标记用户全部已读
func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID int64) error {
	query := `UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND is_read = FALSE`
	_, err := r.db.Exec(ctx, query, recipientID)
	return err
}

// Delete 删除通知（仅限本人）
func (r *NotificationRepository) Delete(ctx context.Context, recipientID, id int64) error {
	query := `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`
	_, err := r.db.Exec(ctx, query, id, recipientID)
	return err
}
