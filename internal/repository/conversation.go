package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/model"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
)

// PairKey 私聊会话的确定性唯一键
// 对两个成员 ID 排序后拼接，库表对该列建唯一索引，
// 保证同一对用户至多存在一个私聊会话
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// ConversationRepository 会话仓库
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository 创建会话仓库
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreatePrivate 创建私聊会话
// 通过 pair_key 唯一约束闭合并发创建竞态：冲突时不插入，
// 返回 created=false，调用方重新按 pair_key 查询即可拿到先创建的会话
func (r *ConversationRepository) CreatePrivate(ctx context.Context, id int64, userA, userB int64, now time.Time) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO conversations (id, type, pair_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (pair_key) DO NOTHING
	`
	tag, err := tx.Exec(ctx, query, id, model.ConversationTypePrivate, PairKey(userA, userB), now)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		// 另一个并发调用已创建
		return false, tx.Commit(ctx)
	}

	memberQuery := `
		INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, userID := range []int64{userA, userB} {
		if _, err := tx.Exec(ctx, memberQuery, id, userID, model.MemberRoleMember, now); err != nil {
			return false, err
		}
	}

	return true, tx.Commit(ctx)
}

// FindPrivateByPair 按成员对查找私聊会话（含成员列表）
func (r *ConversationRepository) FindPrivateByPair(ctx context.Context, userA, userB int64) (*model.Conversation, error) {
	query := `
		SELECT id, type, COALESCE(name, ''), COALESCE(group_avatar, ''),
		       last_message_content, last_message_sender_id, last_message_sender_name,
		       last_message_type, last_message_created_at,
		       created_at, updated_at
		FROM conversations WHERE pair_key = $1
	`
	conv, err := r.scanConversation(ctx, r.db.QueryRow(ctx, query, PairKey(userA, userB)))
	if err != nil {
		return nil, err
	}

	members, err := r.loadMembers(ctx, []int64{conv.ID})
	if err != nil {
		return nil, err
	}
	conv.Members = members[conv.ID]

	return conv, nil
}

// CreateGroup 创建群聊会话
func (r *ConversationRepository) CreateGroup(ctx context.Context, conv *model.Conversation) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO conversations (id, type, name, group_avatar, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`
	if _, err := tx.Exec(ctx, query, conv.ID, model.ConversationTypeGroup, conv.Name, conv.GroupAvatar, conv.CreatedAt); err != nil {
		return err
	}

	memberQuery := `
		INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, m := range conv.Members {
		if _, err := tx.Exec(ctx, memberQuery, conv.ID, m.UserID, m.Role, m.JoinedAt); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// FindByID 按 ID 查找会话（含成员列表）
func (r *ConversationRepository) FindByID(ctx context.Context, id int64) (*model.Conversation, error) {
	query := `
		SELECT id, type, COALESCE(name, ''), COALESCE(group_avatar, ''),
		       last_message_content, last_message_sender_id, last_message_sender_name,
		       last_message_type, last_message_created_at,
		       created_at, updated_at
		FROM conversations WHERE id = $1
	`
	conv, err := r.scanConversation(ctx, r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	members, err := r.loadMembers(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	conv.Members = members[id]

	return conv, nil
}

// ListByUser 获取用户的会话列表，按最近活跃排序
func (r *ConversationRepository) ListByUser(ctx context.Context, userID int64) ([]model.Conversation, error) {
	query := `
		SELECT c.id, c.type, COALESCE(c.name, ''), COALESCE(c.group_avatar, ''),
		       c.last_message_content, c.last_message_sender_id, c.last_message_sender_name,
		       c.last_message_type, c.last_message_created_at,
		       c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.updated_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []model.Conversation
	var ids []int64
	for rows.Next() {
		conv, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
		ids = append(ids, conv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []model.Conversation{}, nil
	}

	members, err := r.loadMembers(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range conversations {
		conversations[i].Members = members[conversations[i].ID]
	}

	return conversations, nil
}

// AddMembers 追加群成员
func (r *ConversationRepository) AddMembers(ctx context.Context, convID int64, userIDs []int64, role string, now time.Time) error {
	query := `
		INSERT INTO conversation_members (conversation_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, user_id) DO NOTHING
	`
	for _, userID := range userIDs {
		if _, err := r.db.Exec(ctx, query, convID, userID, role, now); err != nil {
			return err
		}
	}
	return nil
}

// RemoveMember 移除群成员
func (r *ConversationRepository) RemoveMember(ctx context.Context, convID, userID int64) error {
	query := `DELETE FROM conversation_members WHERE conversation_id = $1 AND user_id = $2`
	_, err := r.db.Exec(ctx, query, convID, userID)
	return err
}

// UpdateLastMessage 更新会话消息预览
// 条件更新：仅当新消息不早于当前缓存的预览时间时覆盖预览，
// 防止并发发送时预览被旧消息回退；updated_at 始终前移
func (r *ConversationRepository) UpdateLastMessage(ctx context.Context, convID int64, preview *model.LastMessage) error {
	query := `
		UPDATE conversations
		SET last_message_content = $2,
		    last_message_sender_id = $3,
		    last_message_sender_name = $4,
		    last_message_type = $5,
		    last_message_created_at = $6,
		    updated_at = GREATEST(updated_at, $6)
		WHERE id = $1
		  AND (last_message_created_at IS NULL OR last_message_created_at <= $6)
	`
	tag, err := r.db.Exec(ctx, query,
		convID,
		preview.Content,
		preview.SenderID,
		preview.SenderName,
		preview.Type,
		preview.CreatedAt,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		// 预览已被更新的消息占据，只前移活跃时间
		touch := `UPDATE conversations SET updated_at = GREATEST(updated_at, $2) WHERE id = $1`
		_, err = r.db.Exec(ctx, touch, convID, preview.CreatedAt)
	}
	return err
}

// UpdateLastReadAt 更新成员的已读时间
func (r *ConversationRepository) UpdateLastReadAt(ctx context.Context, convID, userID int64, t time.Time) error {
	query := `
		UPDATE conversation_members SET last_read_at = $3
		WHERE conversation_id = $1 AND user_id = $2
	`
	_, err := r.db.Exec(ctx, query, convID, userID, t)
	return err
}

// Dissolve 解散会话
// 单事务内先删消息再删成员最后删会话，
// 保证读者不会观察到消息脱离会话存在的中间态
func (r *ConversationRepository) Dissolve(ctx context.Context, convID int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, convID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM conversation_members WHERE conversation_id = $1`, convID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, convID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// loadMembers 批量加载成员并联表填充用户展示信息
func (r *ConversationRepository) loadMembers(ctx context.Context, convIDs []int64) (map[int64][]model.Member, error) {
	query := `
		SELECT m.conversation_id, m.user_id, m.role, m.joined_at, m.last_read_at,
		       u.display_name, u.avatar, u.is_online
		FROM conversation_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.conversation_id = ANY($1)
		ORDER BY m.joined_at
	`
	rows, err := r.db.Query(ctx, query, convIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64][]model.Member, len(convIDs))
	for rows.Next() {
		var convID int64
		var m model.Member
		if err := rows.Scan(
			&convID,
			&m.UserID,
			&m.Role,
			&m.JoinedAt,
			&m.LastReadAt,
			&m.DisplayName,
			&m.Avatar,
			&m.IsOnline,
		); err != nil {
			return nil, err
		}
		result[convID] = append(result[convID], m)
	}

	return result, rows.Err()
}

// scanConversation 扫描单行会话
func (r *ConversationRepository) scanConversation(_ context.Context, row pgx.Row) (*model.Conversation, error) {
	conv, err := scanConversationRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return conv, nil
}

func scanConversationRow(row pgx.Row) (*model.Conversation, error) {
	var conv model.Conversation
	var previewContent, previewSenderName, previewType *string
	var previewSenderID *int64
	var previewCreatedAt *time.Time

	err := row.Scan(
		&conv.ID,
		&conv.Type,
		&conv.Name,
		&conv.GroupAvatar,
		&previewContent,
		&previewSenderID,
		&previewSenderName,
		&previewType,
		&previewCreatedAt,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// 预览列全空表示会话还没有消息
	if previewCreatedAt != nil {
		conv.LastMessage = &model.LastMessage{
			Content:    deref(previewContent),
			SenderID:   derefInt(previewSenderID),
			SenderName: deref(previewSenderName),
			Type:       deref(previewType),
			CreatedAt:  *previewCreatedAt,
		}
	}

	return &conv, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}
