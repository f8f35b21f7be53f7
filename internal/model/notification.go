package model

import "time"

// NotificationType 通知类型
const (
	NotificationTypeMessage     = "message"
	NotificationTypeGroupInvite = "group_invite"
	NotificationTypeSystem      = "system"
)

// Notification 通知记录
// 投递核心只负责写入，通知的生命周期由通知侧自行管理
type Notification struct {
	ID          int64     `json:"id"`
	RecipientID int64     `json:"recipientId"`
	SenderID    int64     `json:"senderId"`
	Type        string    `json:"type"`
	Referenced  int64     `json:"referenced,omitempty"`
	Message     string    `json:"message"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`

	// 发送者展示信息，查询时联表填充
	SenderName   string `json:"senderName,omitempty"`
	SenderAvatar string `json:"senderAvatar,omitempty"`
}
