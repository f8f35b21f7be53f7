package service

import (
	"context"
	"time"

	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/model"
)

// 服务层依赖的存储接口，由 repository 包的 pgx 实现满足。
// 单测用内存实现替换，核心策略（权限、竞态闭合、分页）不依赖数据库。

// ConversationStore 会话存储
type ConversationStore interface {
	CreatePrivate(ctx context.Context, id int64, userA, userB int64, now time.Time) (bool, error)
	FindPrivateByPair(ctx context.Context, userA, userB int64) (*model.Conversation, error)
	CreateGroup(ctx context.Context, conv *model.Conversation) error
	FindByID(ctx context.Context, id int64) (*model.Conversation, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Conversation, error)
	AddMembers(ctx context.Context, convID int64, userIDs []int64, role string, now time.Time) error
	RemoveMember(ctx context.Context, convID, userID int64) error
	UpdateLastMessage(ctx context.Context, convID int64, preview *model.LastMessage) error
	UpdateLastReadAt(ctx context.Context, convID, userID int64, t time.Time) error
	Dissolve(ctx context.Context, convID int64) error
}

// MessageStore 消息存储
type MessageStore interface {
	Create(ctx context.Context, msg *model.Message) error
	FindByID(ctx context.Context, id int64) (*model.Message, error)
	ListBefore(ctx context.Context, convID int64, limit int, before *time.Time) ([]model.Message, error)
	CountByConversation(ctx context.Context, convID int64) (int, error)
	MarkConversationRead(ctx context.Context, convID, userID int64) error
	MarkUnsent(ctx context.Context, msgID, senderID int64) error
}

// UserStore 用户存储
type UserStore interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// NotificationStore 通知存储
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]model.Notification, error)
	MarkRead(ctx context.Context, id int64) error
	MarkAllRead(ctx context.Context, recipientID int64) error
	Delete(ctx context.Context, recipientID, id int64) error
}
