package realtime

import (
	"sync"
)

// Manager 管理所有连接与两类投递通道：
// 用户私有通道（userConns）和会话房间（roomConns）。
// 连接移除时释放它占用的全部映射，不残留退出成员
type Manager struct {
	connections map[int64]*Connection
	userConns   map[int64]map[int64]*Connection // userID -> connID -> Connection
	roomConns   map[int64]map[int64]*Connection // conversationID -> connID -> Connection
	connRooms   map[int64]map[int64]struct{}    // connID -> conversationID 集合
	mu          sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[int64]*Connection),
		userConns:   make(map[int64]map[int64]*Connection),
		roomConns:   make(map[int64]map[int64]*Connection),
		connRooms:   make(map[int64]map[int64]struct{}),
	}
}

func (m *Manager) Add(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[conn.ID()] = conn
}

// Remove 移除连接并释放其用户绑定与房间订阅
func (m *Manager) Remove(connID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}

	delete(m.connections, connID)

	if conn.UserID() > 0 {
		if userConns, ok := m.userConns[conn.UserID()]; ok {
			delete(userConns, connID)
			if len(userConns) == 0 {
				delete(m.userConns, conn.UserID())
			}
		}
	}

	for convID := range m.connRooms[connID] {
		if room, ok := m.roomConns[convID]; ok {
			delete(room, connID)
			if len(room) == 0 {
				delete(m.roomConns, convID)
			}
		}
	}
	delete(m.connRooms, connID)
}

func (m *Manager) Get(connID int64) *Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connections[connID]
}

// BindUser 把连接挂到用户私有通道
func (m *Manager) BindUser(connID, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}

	if _, ok := m.userConns[userID]; !ok {
		m.userConns[userID] = make(map[int64]*Connection)
	}
	m.userConns[userID][connID] = conn
}

// JoinRoom 把连接订阅到会话房间
func (m *Manager) JoinRoom(connID, convID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connID]
	if !ok {
		return
	}

	if _, ok := m.roomConns[convID]; !ok {
		m.roomConns[convID] = make(map[int64]*Connection)
	}
	m.roomConns[convID][conn.ID()] = conn

	if _, ok := m.connRooms[connID]; !ok {
		m.connRooms[connID] = make(map[int64]struct{})
	}
	m.connRooms[connID][convID] = struct{}{}
}

// LeaveRoom 取消连接对会话房间的订阅
func (m *Manager) LeaveRoom(connID, convID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.roomConns[convID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(m.roomConns, convID)
		}
	}
	if rooms, ok := m.connRooms[connID]; ok {
		delete(rooms, convID)
		if len(rooms) == 0 {
			delete(m.connRooms, connID)
		}
	}
}

// PushToUser 向用户的全部连接推送，返回实际推送的连接数
// 用户不在线时静默返回 0，不属于错误
func (m *Manager) PushToUser(userID int64, data []byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, conn := range m.userConns[userID] {
		if err := conn.Send(data); err == nil {
			count++
		}
	}
	return count
}

// BroadcastToRoom 向会话房间的全部订阅连接推送
func (m *Manager) BroadcastToRoom(convID int64, data []byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, conn := range m.roomConns[convID] {
		if err := conn.Send(data); err == nil {
			count++
		}
	}
	return count
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// RoomSize 返回房间当前订阅连接数
func (m *Manager) RoomSize(convID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.roomConns[convID])
}

// GetAllConnections 返回所有连接（用于心跳检测）
func (m *Manager) GetAllConnections() []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	return conns
}
