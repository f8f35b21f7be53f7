package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/quic-go/webtransport-go"

	apperrors "github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/errors"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/model"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/presence"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/service"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/pkg/jwt"
)

// Handler 实时事件处理器
// 每个连接的上行帧在自己的 HandleStream 循环里串行处理
type Handler struct {
	connMgr       *Manager
	chat          *service.ChatService
	notifications *service.NotificationService
	presence      *presence.Tracker
	jwtService    *jwt.Service
	logger        *slog.Logger
}

func NewHandler(
	connMgr *Manager,
	chat *service.ChatService,
	notifications *service.NotificationService,
	tracker *presence.Tracker,
	jwtService *jwt.Service,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		connMgr:       connMgr,
		chat:          chat,
		notifications: notifications,
		presence:      tracker,
		jwtService:    jwtService,
		logger:        logger,
	}
}

// HandleStream 处理连接的双向流，阻塞直到流关闭
func (h *Handler) HandleStream(ctx context.Context, conn *Connection, stream *webtransport.Stream) {
	defer stream.Close()

	for {
		event, body, err := ReadFrame(stream)
		if err != nil {
			if err != io.EOF {
				h.logger.Debug("Failed to read frame", "conn_id", conn.ID(), "error", err)
			}
			return
		}

		conn.UpdateActive()
		h.dispatch(ctx, conn, stream, event, body)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *Connection, stream *webtransport.Stream, event uint16, body []byte) {
	switch event {
	case EventHeartbeat:
		h.handleHeartbeat(ctx, conn, stream)
	case EventSetup:
		h.handleSetup(ctx, conn, stream, body)
	case EventJoinRoom:
		h.handleJoinRoom(conn, stream, body)
	case EventLeaveRoom:
		h.handleLeaveRoom(conn, body)
	case EventSendMessage:
		h.handleSendMessage(ctx, conn, stream, body)
	default:
		h.logger.Warn("Unknown event type", "conn_id", conn.ID(), "event", event)
		h.sendError(stream, "未知的事件类型")
	}
}

func (h *Handler) handleHeartbeat(ctx context.Context, conn *Connection, stream *webtransport.Stream) {
	if conn.UserID() > 0 {
		if err := h.presence.Refresh(ctx, conn.UserID()); err != nil {
			h.logger.Warn("Failed to refresh presence", "userId", conn.UserID(), "error", err)
		}
	}
	h.sendResponse(stream, EventHeartbeat, nil)
}

// handleSetup 绑定连接身份并标记用户上线
// 带 token 时以 token 中的身份为准，声明的 userId 与之不符则拒绝
func (h *Handler) handleSetup(ctx context.Context, conn *Connection, stream *webtransport.Stream, body []byte) {
	var payload SetupPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.sendError(stream, "setup 载荷格式错误")
		return
	}

	userID := payload.UserID
	if payload.Token != "" && h.jwtService != nil {
		claims, err := h.jwtService.ValidateToken(payload.Token)
		if err != nil {
			h.logger.Warn("Setup token rejected", "conn_id", conn.ID(), "error", err)
			h.sendError(stream, "登录凭证无效")
			return
		}
		if userID != 0 && userID != claims.UserID {
			h.sendError(stream, "登录凭证与声明的用户不符")
			return
		}
		userID = claims.UserID
	}
	if userID == 0 {
		h.sendError(stream, "setup 缺少用户身份")
		return
	}

	conn.BindUser(userID)
	h.connMgr.BindUser(conn.ID(), userID)

	if err := h.presence.MarkOnline(ctx, userID); err != nil {
		h.logger.Error("Failed to mark user online", "userId", userID, "error", err)
	}

	ack, _ := json.Marshal(ConnectedPayload{UserID: userID, ConnID: conn.ID()})
	h.sendResponse(stream, EventConnected, ack)
	h.logger.Info("Realtime connection established", "conn_id", conn.ID(), "userId", userID)
}

func (h *Handler) handleJoinRoom(conn *Connection, stream *webtransport.Stream, body []byte) {
	if conn.UserID() == 0 {
		h.sendError(stream, "未完成 setup")
		return
	}

	var payload JoinRoomPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.ConversationID == 0 {
		h.sendError(stream, "joinRoom 载荷格式错误")
		return
	}

	h.connMgr.JoinRoom(conn.ID(), payload.ConversationID)
	h.logger.Debug("Joined room", "conn_id", conn.ID(), "conversationId", payload.ConversationID)
}

func (h *Handler) handleLeaveRoom(conn *Connection, body []byte) {
	var payload JoinRoomPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.ConversationID == 0 {
		return
	}
	h.connMgr.LeaveRoom(conn.ID(), payload.ConversationID)
}

// handleSendMessage 实时发送链路
// 存储阶段失败只回错误事件给发送方；存储成功后广播到会话房间，
// 随后尽力投递接收者通知，通知失败记日志，不影响已完成的发送
func (h *Handler) handleSendMessage(ctx context.Context, conn *Connection, stream *webtransport.Stream, body []byte) {
	if conn.UserID() == 0 {
		h.sendError(stream, "未完成 setup")
		return
	}

	var payload SendMessagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.sendError(stream, "sendMessage 载荷格式错误")
		return
	}

	msg, err := h.chat.SendMessage(ctx, conn.UserID(), &service.SendMessageRequest{
		ConversationID: payload.ConversationID,
		Content:        payload.Text,
		Type:           payload.Type,
	})
	if err != nil {
		h.logger.Warn("Send message failed",
			"conn_id", conn.ID(),
			"conversationId", payload.ConversationID,
			"error", err)
		h.sendError(stream, apperrors.GetMessage(err))
		return
	}

	data, _ := json.Marshal(msg)
	pushed := h.connMgr.BroadcastToRoom(msg.ConversationID, EncodeFrame(EventNewMessage, data))
	h.logger.Debug("Broadcast new message",
		"conversationId", msg.ConversationID,
		"messageId", msg.ID,
		"connCount", pushed)

	if payload.ReceiverID > 0 && payload.ReceiverID != conn.UserID() {
		h.notifyReceiver(ctx, msg, payload.ReceiverID)
	}
}

// notifyReceiver 写入并推送新消息通知，尽力而为
func (h *Handler) notifyReceiver(ctx context.Context, msg *model.Message, receiverID int64) {
	sender := &model.User{
		ID:          msg.SenderID,
		DisplayName: msg.SenderName,
		Avatar:      msg.SenderAvatar,
	}

	n, err := h.notifications.NotifyMessage(ctx, sender, receiverID, msg.ConversationID, msg.Content)
	if err != nil {
		h.logger.Error("Failed to create message notification",
			"receiverId", receiverID,
			"messageId", msg.ID,
			"error", err)
		return
	}

	data, _ := json.Marshal(NotificationPayload{
		ID:             n.ID,
		Type:           n.Type,
		ConversationID: msg.ConversationID,
		SenderID:       n.SenderID,
		SenderName:     n.SenderName,
		SenderAvatar:   n.SenderAvatar,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
	})
	h.connMgr.PushToUser(receiverID, EncodeFrame(EventNotification, data))
}

// OnDisconnect 连接断开时的清理，由服务器的会话生命周期调用
func (h *Handler) OnDisconnect(ctx context.Context, conn *Connection) {
	if conn.UserID() > 0 {
		if err := h.presence.MarkOffline(ctx, conn.UserID()); err != nil {
			h.logger.Error("Failed to mark user offline", "userId", conn.UserID(), "error", err)
		}
	}
	h.connMgr.Remove(conn.ID())
}

func (h *Handler) sendError(stream *webtransport.Stream, message string) {
	body, _ := json.Marshal(ErrorPayload{Message: message})
	h.sendResponse(stream, EventError, body)
}

func (h *Handler) sendResponse(stream *webtransport.Stream, event uint16, body []byte) {
	if _, err := stream.Write(EncodeFrame(event, body)); err != nil {
		h.logger.Debug("Failed to write response frame", "event", event, "error", err)
	}
}
