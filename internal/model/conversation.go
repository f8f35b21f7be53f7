package model

import "time"

// ConversationType 会话类型
const (
	ConversationTypePrivate = "private" // 私聊，固定两人
	ConversationTypeGroup   = "group"   // 群聊
)

// MemberRole 成员角色
const (
	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"
)

// Member 会话成员
type Member struct {
	UserID     int64      `json:"userId"`
	Role       string     `json:"role"`
	JoinedAt   time.Time  `json:"joinedAt"`
	LastReadAt *time.Time `json:"lastReadAt,omitempty"`

	// 展示用冗余字段，查询时联表填充
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	IsOnline    bool   `json:"isOnline"`
}

// LastMessage 会话最新消息预览（冗余缓存，避免渲染会话列表时查消息表）
type LastMessage struct {
	Content    string    `json:"content"`
	SenderID   int64     `json:"senderId"`
	SenderName string    `json:"senderName"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Conversation 会话实体
type Conversation struct {
	ID          int64        `json:"id"`
	Type        string       `json:"type"`
	Name        string       `json:"name,omitempty"`
	GroupAvatar string       `json:"groupAvatar,omitempty"`
	Members     []Member     `json:"members"`
	LastMessage *LastMessage `json:"lastMessage"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// FindMember 按用户查找成员
func (c *Conversation) FindMember(userID int64) *Member {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return &c.Members[i]
		}
	}
	return nil
}

// MemberIndex 构建 userId -> Member 索引，成员多时避免重复线性扫描
func (c *Conversation) MemberIndex() map[int64]*Member {
	idx := make(map[int64]*Member, len(c.Members))
	for i := range c.Members {
		idx[c.Members[i].UserID] = &c.Members[i]
	}
	return idx
}

// IsAdmin 判断用户是否为群管理员
func (c *Conversation) IsAdmin(userID int64) bool {
	m := c.FindMember(userID)
	return m != nil && m.Role == MemberRoleAdmin
}
