package model

import "time"

// User 用户公开信息（账号体系由外部服务维护，这里只读）
type User struct {
	ID          int64      `json:"id"`
	DisplayName string     `json:"displayName"`
	Avatar      string     `json:"avatar"`
	IsOnline    bool       `json:"isOnline"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
}
