package realtime

import (
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// 帧格式：4 字节大端长度 + 2 字节事件类型 + JSON 消息体
const HeaderSize = 6

// MaxFrameSize 单帧消息体上限
const MaxFrameSize = 1 << 20

// 事件类型
const (
	EventHeartbeat    uint16 = 0
	EventSetup        uint16 = 1
	EventConnected    uint16 = 2
	EventJoinRoom     uint16 = 3
	EventLeaveRoom    uint16 = 4
	EventSendMessage  uint16 = 10
	EventNewMessage   uint16 = 11
	EventNotification uint16 = 12
	EventError        uint16 = 13
)

// ErrFrameTooLarge 消息体超过单帧上限
var ErrFrameTooLarge = errors.New("frame too large")

// SetupPayload 连接建立后的身份声明
// 带 token 时以 token 中的身份为准
type SetupPayload struct {
	UserID int64  `json:"userId"`
	Token  string `json:"token,omitempty"`
}

// ConnectedPayload setup 成功的确认
type ConnectedPayload struct {
	UserID int64 `json:"userId"`
	ConnID int64 `json:"connId"`
}

// JoinRoomPayload 订阅会话房间
type JoinRoomPayload struct {
	ConversationID int64 `json:"conversationId"`
}

// SendMessagePayload 客户端发送消息
// senderId 仅为兼容客户端字段保留，服务端忽略它，
// 发送者身份始终取 setup 绑定的连接身份
type SendMessagePayload struct {
	ConversationID int64  `json:"conversationId"`
	Text           string `json:"text"`
	SenderID       int64  `json:"senderId"`
	Type           string `json:"type"`
	ReceiverID     int64  `json:"receiverId,omitempty"`
}

// NotificationPayload 推送到接收者私有通道的新消息通知
type NotificationPayload struct {
	ID             int64     `json:"id"`
	Type           string    `json:"type"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	SenderName     string    `json:"senderName"`
	SenderAvatar   string    `json:"senderAvatar"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ErrorPayload 只发给出错连接本身的错误事件
type ErrorPayload struct {
	Message string `json:"message"`
}

// EncodeFrame 编码一帧完整消息
func EncodeFrame(event uint16, body []byte) []byte {
	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[:4], uint32(len(body)))
	binary.BigEndian.PutUint16(frame[4:6], event)
	copy(frame[HeaderSize:], body)
	return frame
}

// ReadFrame 从流中读出一帧，返回事件类型与消息体
func ReadFrame(r io.Reader) (uint16, []byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	length := binary.BigEndian.Uint32(header[:4])
	event := binary.BigEndian.Uint16(header[4:6])

	if length > MaxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return event, body, nil
}
