package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/model"
)

var (
	ErrMessageNotFound = errors.New("message not found")
)

// MessageRepository 消息仓库
// 消息按会话追加写入，除 read_by 与 is_unsent 外不做修改
type MessageRepository struct {
	db *pgxpool.Pool
}

// NewMessageRepository 创建消息仓库
func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 写入消息，这是发送协议的持久化点
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, content, type, attachments, reply_to_message_id, read_by, is_unsent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.db.Exec(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.Content,
		msg.Type,
		attachments,
		msg.ReplyToMessageID,
		msg.ReadBy,
		msg.IsUnsent,
		msg.CreatedAt,
	)
	return err
}

// FindByID 按 ID 查找消息
func (r *MessageRepository) FindByID(ctx context.Context, id int64) (*model.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.type, m.attachments,
		       m.reply_to_message_id, m.read_by, m.is_unsent, m.created_at,
		       u.display_name, u.avatar
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1
	`
	msg, err := scanMessage(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

// ListBefore 游标分页查询会话消息
// before 为空时取最新的 limit 条；结果按时间倒序返回，由服务层翻转
func (r *MessageRepository) ListBefore(ctx context.Context, convID int64, limit int, before *time.Time) ([]model.Message, error) {
	query := `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.type, m.attachments,
		       m.reply_to_message_id, m.read_by, m.is_unsent, m.created_at,
		       u.display_name, u.avatar
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = $1
	`
	args := []interface{}{convID}
	if before != nil {
		query += ` AND m.created_at < $2`
		args = append(args, *before)
	}
	query += fmt.Sprintf(` ORDER BY m.created_at DESC LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}

	return messages, rows.Err()
}

// MarkConversationRead 将会话内未读消息标记为某用户已读
func (r *MessageRepository) MarkConversationRead(ctx context.Context, convID, userID int64) error {
	query := `
		UPDATE messages SET read_by = array_append(read_by, $2)
		WHERE conversation_id = $1 AND NOT ($2 = ANY(read_by))
	`
	_, err := r.db.Exec(ctx, query, convID, userID)
	return err
}

// MarkUnsent 撤回消息（软删除，仅发送者本人）
func (r *MessageRepository) MarkUnsent(ctx context.Context, msgID, senderID int64) error {
	query := `UPDATE messages SET is_unsent = TRUE WHERE id = $1 AND sender_id = $2`
	tag, err := r.db.Exec(ctx, query, msgID, senderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// CountByConversation 统计会话消息数
func (r *MessageRepository) CountByConversation(ctx context.Context, convID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, convID).Scan(&count)
	return count, err
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var msg model.Message
	var attachments []byte

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&msg.Type,
		&attachments,
		&msg.ReplyToMessageID,
		&msg.ReadBy,
		&msg.IsUnsent,
		&msg.CreatedAt,
		&msg.SenderName,
		&msg.SenderAvatar,
	)
	if err != nil {
		return nil, err
	}

	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, err
		}
	}

	return &msg, nil
}
