package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/middleware"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/internal/service"
	"github.com/DAHP-ChatMeNow/ChatMeNowBE/pkg/response"
)

// ChatHandler 会话与消息处理器
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler 创建会话与消息处理器
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// GetConversations 获取当前用户的会话列表，按最近活跃排序
// GET /api/v1/conversations
func (h *ChatHandler) GetConversations(c *gin.Context) {
	userID := middleware.GetUserID(c)

	conversations, err := h.chatService.GetConversations(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"conversations": conversations})
}

// GetConversationDetails 获取会话详情
// GET /api/v1/conversations/:id
func (h *ChatHandler) GetConversationDetails(c *gin.Context) {
	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "无效的会话 ID")
		return
	}

	conv, err := h.chatService.GetConversationDetails(c.Request.Context(), convID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"conversation": conv})
}

// GetOrCreatePrivate 获取或创建与指定用户的私聊
// 幂等：已存在返回 200，新建返回 201
// GET /api/v1/private/:partnerId
func (h *ChatHandler) GetOrCreatePrivate(c *gin.Context) {
	userID := middleware.GetUserID(c)

	partnerID, err := strconv.ParseInt(c.Param("partnerId"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "无效的用户 ID")
		return
	}

	conv, created, err := h.chatService.GetOrCreatePrivate(c.Request.Context(), userID, partnerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.OKWithStatus(c, status, gin.H{"conversation": conv})
}

// GetPrivatePartner 获取私聊对方的公开资料
// GET /api/v1/conversations/:id/partner
func (h *ChatHandler) GetPrivatePartner(c *gin.Context) {
	userID := middleware.GetUserID(c)

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "无效的会话 ID")
		return
	}

	partner, err := h.chatService.GetPrivatePartner(c.Request.Context(), userID, convID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"partner": partner})
}

// CreateGroupRequest 创建群聊请求
type CreateGroupRequest struct {
	Name        string  `json:"name"`
	MemberIDs   []int64 `json:"memberIds"`
	GroupAvatar string  `json:"groupAvatar"`
}

// CreateGroup 创建群聊，除创建者外至少 2 名成员
// POST /api/v1/conversations
func (h *ChatHandler) CreateGroup(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "请求格式错误")
		return
	}

	conv, err := h.chatService.CreateGroup(c.Request.Context(), userID, req.Name, req.MemberIDs, req.GroupAvatar)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{"conversation": conv})
}

// AddMembersRequest 添加成员请求
type AddMembersRequest struct {
	MemberIDs []int64 `json:"memberIds"`
}

// AddMembers 向群聊添加成员，仅管理员
// POST /api/v1/conversations/:id/members
func (h *ChatHandler) AddMembers(c *gin.Context) {
	userID := middleware.GetUserID(c)

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "无效的会话 ID")
		return
	}

	var req AddMembersRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.MemberIDs) == 0 {
		response.ErrorWithMsg(c, http.StatusBadRequest, "memberIds 不能为空")
		return
	}

	conv, err := h.chatService.AddMembers(c.Request.Context(), userID, convID, req.MemberIDs)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"conversation": conv})
}

// RemoveMember 从群聊移除成员，仅管理员，不能移除管理员
// DELETE /api/v1/conversations/:id/members/:memberId
func (h *ChatHandler) RemoveMember(c *gin.Context) {
	userID := middleware.GetUserID(c)

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "无效的会话 ID")
		return
	}
	memberID, err := strconv.ParseInt(c.Param("memberId"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "无效的成员 ID")
		return
	}

	conv, err := h.chatService.RemoveMember(c.Request.Context(), userID, convID, memberID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"conversation": conv})
}

// Dissolve 解散群聊，仅管理员；消息随会话一并删除
// DELETE /api/v1/conversations/:id
func (h *ChatHandler) Dissolve(c *gin.Context) {
	userID := middleware.GetUserID(c)

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "无效的会话 ID")
		return
	}

	if err := h.chatService.Dissolve(c.Request.Context(), userID, convID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, nil)
}

// ListMessages 游标分页获取消息，响应按时间正序
// GET /api/v1/conversations/:id/messages?limit=&beforeId=
func (h *ChatHandler) ListMessages(c *gin.Context) {
	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "无效的会话 ID")
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			response.ErrorWithMsg(c, http.StatusBadRequest, "无效的 limit")
			return
		}
	}

	var beforeID int64
	if v := c.Query("beforeId"); v != "" {
		// 无法解析的游标按缺失处理，返回最新一页
		beforeID, _ = strconv.ParseInt(v, 10, 64)
	}

	messages, err := h.chatService.ListMessages(c.Request.Context(), convID, limit, beforeID)
	if err != nil {
		response.Error(c, err)
		return
	}

	total, err := h.chatService.CountMessages(c.Request.Context(), convID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"messages": messages, "total": total})
}

// SendMessage 发送消息（REST 路径，只做存储更新，不做实时广播）
// POST /api/v1/messages
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req service.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "请求格式错误")
		return
	}

	msg, err := h.chatService.SendMessage(c.Request.Context(), userID, &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, gin.H{"message": msg})
}

// MarkRead 标记会话已读
// POST /api/v1/conversations/:id/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID := middleware.GetUserID(c)

	convID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "无效的会话 ID")
		return
	}

	if err := h.chatService.MarkConversationRead(c.Request.Context(), userID, convID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, nil)
}

// UnsendMessage 撤回消息，仅发送者本人
// POST /api/v1/messages/:id/unsend
func (h *ChatHandler) UnsendMessage(c *gin.Context) {
	userID := middleware.GetUserID(c)

	msgID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ErrorWithMsg(c, http.StatusBadRequest, "无效的消息 ID")
		return
	}

	if err := h.chatService.UnsendMessage(c.Request.Context(), userID, msgID); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, nil)
}
