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

// DefaultNotificationLimit 通知列表默认条数
const DefaultNotificationLimit = 20

// NotificationService 通知服务
// 投递核心只向这里写入；已读/删除等生命周期操作由通知接口消费
type NotificationService struct {
	notifications NotificationStore
	idGen         *snowflake.Node
	logger        *slog.Logger
}

// NewNotificationService 创建通知服务
func NewNotificationService(notifications NotificationStore, idGen *snowflake.Node) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		idGen:         idGen,
		logger:        slog.Default(),
	}
}

// NotifyMessage 写入新消息通知
// 正文截断保存，完整内容走消息本身；调用方决定失败是否致命
func (s *NotificationService) NotifyMessage(ctx context.Context, sender *model.User, recipientID, convID int64, content string) (*model.Notification, error) {
	n := &model.Notification{
		ID:          s.idGen.Generate().Int64(),
		RecipientID: recipientID,
		SenderID:    sender.ID,
		Type:        model.NotificationTypeMessage,
		Referenced:  convID,
		Message:     fmt.Sprintf("发来消息：%s", TruncateContent(content)),
		CreatedAt:   time.Now(),
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return nil, err
	}

	n.SenderName = sender.DisplayName
	n.SenderAvatar = sender.Avatar
	return n, nil
}

// List 获取用户最近通知
func (s *NotificationService) List(ctx context.Context, userID int64) ([]model.Notification, error) {
	notifications, err := s.notifications.ListByRecipient(ctx, userID, DefaultNotificationLimit)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if notifications == nil {
		notifications = []model.Notification{}
	}
	return notifications, nil
}

// MarkRead 标记单条已读
func (s *NotificationService) MarkRead(ctx context.Context, id int64) error {
	if err := s.notifications.MarkRead(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotificationNotFound) {
			return apperrors.ErrNotificationNotFound
		}
		return apperrors.Internal(err)
	}
	return nil
}

// MarkAllRead 标记全部已读
func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) error {
	if err := s.notifications.MarkAllRead(ctx, userID); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}

// Delete 删除通知（仅限本人）
func (s *NotificationService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.notifications.Delete(ctx, userID, id); err != nil {
		return apperrors.Internal(err)
	}
	return nil
}
