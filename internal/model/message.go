package model

import "time"

// MessageType 消息类型
const (
	MessageTypeText   = "text"
	MessageTypeImage  = "image"
	MessageTypeVideo  = "video"
	MessageTypeFile   = "file"
	MessageTypeSystem = "system"
)

// Attachment 消息附件
type Attachment struct {
	URL      string `json:"url"`
	FileType string `json:"fileType"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

// Message 消息实体
// 创建后除 ReadBy 和 IsUnsent 外不可变
type Message struct {
	ID               int64        `json:"id"`
	ConversationID   int64        `json:"conversationId"`
	SenderID         int64        `json:"senderId"`
	Content          string       `json:"content"`
	Type             string       `json:"type"`
	Attachments      []Attachment `json:"attachments,omitempty"`
	ReplyToMessageID *int64       `json:"replyToMessageId,omitempty"`
	ReadBy           []int64      `json:"readBy"`
	IsUnsent         bool         `json:"isUnsent"`
	CreatedAt        time.Time    `json:"createdAt"`

	// 发送者展示信息，查询时联表填充
	SenderName   string `json:"senderName,omitempty"`
	SenderAvatar string `json:"senderAvatar,omitempty"`
}
