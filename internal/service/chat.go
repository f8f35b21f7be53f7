package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/errors"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/model"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/repository"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/pkg/snowflake"
)

const (
	// DefaultMessageLimit 消息分页默认条数
	DefaultMessageLimit = 20

	// PreviewImagePlaceholder 图片消息在会话预览里的占位文案
	PreviewImagePlaceholder = "发送了一张图片"

	// notificationContentLimit 通知正文截断长度
	notificationContentLimit = 30
)

// ChatService 聊天服务
// 承载会话解析、成员策略与消息发送协议的存储部分；
// 实时广播由 realtime 包在此之上完成
type ChatService struct {
	conversations ConversationStore
	messages      MessageStore
	users         UserStore
	notifications NotificationStore
	idGen         *snowflake.Node
	logger        *slog.Logger
}

// NewChatService 创建聊天服务
func NewChatService(
	conversations ConversationStore,
	messages MessageStore,
	users UserStore,
	notifications NotificationStore,
	idGen *snowflake.Node,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		messages:      messages,
		users:         users,
		notifications: notifications,
		idGen:         idGen,
		logger:        slog.Default(),
	}
}

// GetConversations 获取用户会话列表，按最近活跃排序
func (s *ChatService) GetConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	conversations, err := s.conversations.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return conversations, nil
}

// GetConversationDetails 获取会话详情
func (s *ChatService) GetConversationDetails(ctx context.Context, convID int64) (*model.Conversation, error) {
	conv, err := s.conversations.FindByID(ctx, convID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, apperrors.Internal(err)
	}
	return conv, nil
}

// GetOrCreatePrivate 查找或创建两人私聊会话
// 幂等：同一对用户重复调用（含并发）始终收敛到同一个会话，
// 唯一性由存储层 pair_key 约束保证
func (s *ChatService) GetOrCreatePrivate(ctx context.Context, userID, partnerID int64) (*model.Conversation, bool, error) {
	if userID == partnerID {
		return nil, false, apperrors.Validation("不能与自己建立私聊")
	}

	if _, err := s.users.FindByID(ctx, partnerID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, false, apperrors.ErrUserNotFound
		}
		return nil, false, apperrors.Internal(err)
	}

	existing, err := s.conversations.FindPrivateByPair(ctx, userID, partnerID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrConversationNotFound) {
		return nil, false, apperrors.Internal(err)
	}

	created, err := s.conversations.CreatePrivate(ctx, s.idGen.Generate().Int64(), userID, partnerID, time.Now())
	if err != nil {
		return nil, false, apperrors.Internal(err)
	}

	// 无论是本次创建还是并发输掉后复用，都按 pair_key 取回最终会话
	conv, err := s.conversations.FindPrivateByPair(ctx, userID, partnerID)
	if err != nil {
		return nil, false, apperrors.Internal(err)
	}

	return conv, created, nil
}

// GetPrivatePartner 获取私聊会话的对方信息
func (s *ChatService) GetPrivatePartner(ctx context.Context, userID, convID int64) (*model.User, error) {
	conv, err := s.GetConversationDetails(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv.Type != model.ConversationTypePrivate {
		return nil, apperrors.ErrNotPrivate
	}

	var partnerID int64
	for _, m := range conv.Members {
		if m.UserID != userID {
			partnerID = m.UserID
			break
		}
	}
	if partnerID == 0 {
		return nil, apperrors.ErrPartnerNotFound
	}

	partner, err := s.users.FindByID(ctx, partnerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Internal(err)
	}

	return partner, nil
}

// CreateGroup 创建群聊
// 创建者为管理员，除创建者外至少再指定 2 名成员
func (s *ChatService) CreateGroup(ctx context.Context, creatorID int64, name string, memberIDs []int64, groupAvatar string) (*model.Conversation, error) {
	if name == "" || len(memberIDs) < 2 {
		return nil, apperrors.ErrGroupTooSmall
	}

	now := time.Now()
	conv := &model.Conversation{
		ID:          s.idGen.Generate().Int64(),
		Type:        model.ConversationTypeGroup,
		Name:        name,
		GroupAvatar: groupAvatar,
		CreatedAt:   now,
		Members: []model.Member{
			{UserID: creatorID, Role: model.MemberRoleAdmin, JoinedAt: now},
		},
	}
	for _, id := range memberIDs {
		if id == creatorID {
			continue
		}
		conv.Members = append(conv.Members, model.Member{
			UserID:   id,
			Role:     model.MemberRoleMember,
			JoinedAt: now,
		})
	}

	if err := s.conversations.CreateGroup(ctx, conv); err != nil {
		return nil, apperrors.Internal(err)
	}

	return s.GetConversationDetails(ctx, conv.ID)
}

// AddMembers 向群聊添加成员，仅管理员可操作
// 每个新成员写入一条入群邀请通知
func (s *ChatService) AddMembers(ctx context.Context, actorID, convID int64, memberIDs []int64) (*model.Conversation, error) {
	group, err := s.requireGroupAdmin(ctx, actorID, convID)
	if err != nil {
		return nil, err
	}

	index := group.MemberIndex()
	var newIDs []int64
	for _, id := range memberIDs {
		if _, exists := index[id]; !exists {
			newIDs = append(newIDs, id)
		}
	}
	if len(newIDs) == 0 {
		return nil, apperrors.ErrAllMembersExist
	}

	now := time.Now()
	if err := s.conversations.AddMembers(ctx, convID, newIDs, model.MemberRoleMember, now); err != nil {
		return nil, apperrors.Internal(err)
	}

	for _, id := range newIDs {
		notification := &model.Notification{
			ID:          s.idGen.Generate().Int64(),
			RecipientID: id,
			SenderID:    actorID,
			Type:        model.NotificationTypeGroupInvite,
			Referenced:  convID,
			Message:     fmt.Sprintf("邀请你加入群聊「%s」", group.Name),
			CreatedAt:   now,
		}
		if err := s.notifications.Create(ctx, notification); err != nil {
			return nil, apperrors.Internal(err)
		}
	}

	return s.GetConversationDetails(ctx, convID)
}

// RemoveMember 将成员移出群聊，仅管理员可操作
// 管理员不可被移除，群聊始终保留至少一名管理员
func (s *ChatService) RemoveMember(ctx context.Context, actorID, convID, targetID int64) (*model.Conversation, error) {
	group, err := s.requireGroupAdmin(ctx, actorID, convID)
	if err != nil {
		return nil, err
	}

	target := group.FindMember(targetID)
	if target == nil {
		return nil, apperrors.ErrMemberNotFound
	}
	if target.Role == model.MemberRoleAdmin {
		return nil, apperrors.ErrCannotRemoveAdmin
	}

	if err := s.conversations.RemoveMember(ctx, convID, targetID); err != nil {
		return nil, apperrors.Internal(err)
	}

	return s.GetConversationDetails(ctx, convID)
}

// Dissolve 解散群聊，仅管理员可操作
// 群内消息随会话一并删除，不留下孤儿消息
func (s *ChatService) Dissolve(ctx context.Context, actorID, convID int64) error {
	if _, err := s.requireGroupAdmin(ctx, actorID, convID); err != nil {
		return err
	}

	if err := s.conversations.Dissolve(ctx, convID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// SendMessageRequest 发送消息请求
type SendMessageRequest struct {
	ConversationID   int64              `json:"conversationId"`
	Content          string             `json:"content"`
	Type             string             `json:"type"`
	Attachments      []model.Attachment `json:"attachments,omitempty"`
	ReplyToMessageID *int64             `json:"replyToMessageId,omitempty"`
}

// SendMessage 发送消息的存储部分
// 1. 解析发送者公开资料（预览与推送载荷都需要，接收端无需二次查询）
// 2. 追加消息——持久化点，之后的任何失败不影响消息可见性
// 3. 条件更新会话预览并前移活跃时间
// 任一步失败都向调用方报错，不会产生半完成的广播
func (s *ChatService) SendMessage(ctx context.Context, senderID int64, req *SendMessageRequest) (*model.Message, error) {
	if req.ConversationID == 0 {
		return nil, apperrors.Validation("conversationId 不能为空")
	}
	if req.Content == "" && len(req.Attachments) == 0 {
		return nil, apperrors.ErrEmptyMessage
	}
	msgType := req.Type
	if msgType == "" {
		msgType = model.MessageTypeText
	}

	sender, err := s.users.FindByID(ctx, senderID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Internal(err)
	}

	if _, err := s.conversations.FindByID(ctx, req.ConversationID); err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, apperrors.Internal(err)
	}

	msg := &model.Message{
		ID:               s.idGen.Generate().Int64(),
		ConversationID:   req.ConversationID,
		SenderID:         senderID,
		Content:          req.Content,
		Type:             msgType,
		Attachments:      req.Attachments,
		ReplyToMessageID: req.ReplyToMessageID,
		ReadBy:           []int64{},
		CreatedAt:        time.Now(),
		SenderName:       sender.DisplayName,
		SenderAvatar:     sender.Avatar,
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.Internal(err)
	}

	preview := &model.LastMessage{
		Content:    msg.Content,
		SenderID:   senderID,
		SenderName: sender.DisplayName,
		Type:       msgType,
		CreatedAt:  msg.CreatedAt,
	}
	if msgType == model.MessageTypeImage {
		preview.Content = PreviewImagePlaceholder
	}

	if err := s.conversations.UpdateLastMessage(ctx, req.ConversationID, preview); err != nil {
		return nil, apperrors.Internal(err)
	}

	return msg, nil
}

// ListMessages 游标分页获取消息
// beforeID 指定时取其创建时间之前的消息；无法解析的游标直接忽略，
// 回退为最新 limit 条。内部按时间倒序查询，响应翻转为正序
func (s *ChatService) ListMessages(ctx context.Context, convID int64, limit int, beforeID int64) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}

	var before *time.Time
	if beforeID != 0 {
		ref, err := s.messages.FindByID(ctx, beforeID)
		if err == nil {
			before = &ref.CreatedAt
		} else if !errors.Is(err, repository.ErrMessageNotFound) {
			return nil, apperrors.Internal(err)
		}
	}

	messages, err := s.messages.ListBefore(ctx, convID, limit, before)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	// 倒序翻转为正序，聊天界面自上而下按时间渲染
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	// 已撤回的消息不返回原文
	for i := range messages {
		if messages[i].IsUnsent {
			messages[i].Content = ""
			messages[i].Attachments = nil
		}
	}

	if messages == nil {
		messages = []model.Message{}
	}
	return messages, nil
}

// CountMessages 统计会话消息总数
func (s *ChatService) CountMessages(ctx context.Context, convID int64) (int, error) {
	total, err := s.messages.CountByConversation(ctx, convID)
	if err != nil {
		return 0, apperrors.Internal(err)
	}
	return total, nil
}

// MarkConversationRead 标记会话已读
// 更新成员的 lastReadAt，并把会话内消息的 readBy 补上该用户
func (s *ChatService) MarkConversationRead(ctx context.Context, userID, convID int64) error {
	conv, err := s.GetConversationDetails(ctx, convID)
	if err != nil {
		return err
	}
	if conv.FindMember(userID) == nil {
		return apperrors.ErrNotMember
	}

	now := time.Now()
	if err := s.conversations.UpdateLastReadAt(ctx, convID, userID, now); err != nil {
		return apperrors.Internal(err)
	}
	if err := s.messages.MarkConversationRead(ctx, convID, userID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// UnsendMessage 撤回消息（仅发送者本人）
func (s *ChatService) UnsendMessage(ctx context.Context, senderID, msgID int64) error {
	if err := s.messages.MarkUnsent(ctx, msgID, senderID); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return apperrors.ErrMessageNotFound
		}
		return apperrors.Internal(err)
	}
	return nil
}

// requireGroupAdmin 校验会话为群聊且操作者是管理员
func (s *ChatService) requireGroupAdmin(ctx context.Context, actorID, convID int64) (*model.Conversation, error) {
	conv, err := s.GetConversationDetails(ctx, convID)
	if err != nil {
		return nil, err
	}
	if conv.Type != model.ConversationTypeGroup {
		return nil, apperrors.ErrNotGroupConversation
	}
	if !conv.IsAdmin(actorID) {
		return nil, apperrors.ErrNotAdmin
	}
	return conv, nil
}

// TruncateContent 通知正文截断
func TruncateContent(content string) string {
	runes := []rune(content)
	if len(runes) <= notificationContentLimit {
		return content
	}
	return string(runes[:notificationContentLimit]) + "..."
}
