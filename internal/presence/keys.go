package presence

import (
	"fmt"
	"time"
)

const (
	// OnlineKeyPrefix 在线标记 Key 前缀
	OnlineKeyPrefix = "chat:user:online:"

	// LastSeenKeyPrefix 最后在线时间 Key 前缀
	LastSeenKeyPrefix = "chat:user:lastseen:"

	// OnlineTTL 在线标记 TTL，由心跳续期
	OnlineTTL = 2 * time.Minute
)

// BuildOnlineKey 构建在线标记 Key
func BuildOnlineKey(userID int64) string {
	return fmt.Sprintf("%s%d", OnlineKeyPrefix, userID)
}

// BuildLastSeenKey 构建最后在线时间 Key
func BuildLastSeenKey(userID int64) string {
	return fmt.Sprintf("%s%d", LastSeenKeyPrefix, userID)
}
