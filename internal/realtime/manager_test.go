package realtime

import (
	"testing"
)

// newTestConnection 构造不启动 writeLoop 的连接，Send 只入队
func newTestConnection(id int64) *Connection {
	return &Connection{
		id:        id,
		writeChan: make(chan []byte, 16),
		closeChan: make(chan struct{}),
	}
}

func TestManager_BindUserAndPush(t *testing.T) {
	m := NewManager()

	c1 := newTestConnection(1)
	c2 := newTestConnection(2)
	m.Add(c1)
	m.Add(c2)

	c1.BindUser(100)
	m.BindUser(1, 100)
	c2.BindUser(100)
	m.BindUser(2, 100)

	// 同一用户的两个连接都收到推送
	n := m.PushToUser(100, []byte("hi"))
	if n != 2 {
		t.Errorf("Expected push to 2 connections, got %d", n)
	}

	if n := m.PushToUser(999, []byte("hi")); n != 0 {
		t.Errorf("Push to offline user should reach 0 connections, got %d", n)
	}
}

func TestManager_RoomBroadcast(t *testing.T) {
	m := NewManager()

	c1 := newTestConnection(1)
	c2 := newTestConnection(2)
	c3 := newTestConnection(3)
	for _, c := range []*Connection{c1, c2, c3} {
		m.Add(c)
	}

	m.JoinRoom(1, 500)
	m.JoinRoom(2, 500)
	m.JoinRoom(3, 600)

	if n := m.BroadcastToRoom(500, []byte("msg")); n != 2 {
		t.Errorf("Expected broadcast to 2 connections, got %d", n)
	}
	if m.RoomSize(600) != 1 {
		t.Errorf("Expected room 600 size 1, got %d", m.RoomSize(600))
	}

	// 退出房间后不再接收广播
	m.LeaveRoom(2, 500)
	if n := m.BroadcastToRoom(500, []byte("msg")); n != 1 {
		t.Errorf("Expected broadcast to 1 connection after leave, got %d", n)
	}
}

func TestManager_RemoveReleasesSubscriptions(t *testing.T) {
	m := NewManager()

	c := newTestConnection(1)
	m.Add(c)
	c.BindUser(100)
	m.BindUser(1, 100)
	m.JoinRoom(1, 500)
	m.JoinRoom(1, 600)

	m.Remove(1)

	if m.Count() != 0 {
		t.Errorf("Expected 0 connections, got %d", m.Count())
	}
	if n := m.PushToUser(100, []byte("hi")); n != 0 {
		t.Errorf("Removed connection should not receive user push, got %d", n)
	}
	if n := m.BroadcastToRoom(500, []byte("hi")); n != 0 {
		t.Errorf("Removed connection should not receive room broadcast, got %d", n)
	}
	if m.RoomSize(600) != 0 {
		t.Errorf("Room 600 should be empty, got %d", m.RoomSize(600))
	}

	// 重复移除是安全的
	m.Remove(1)
}

func TestManager_JoinRoomUnknownConnection(t *testing.T) {
	m := NewManager()

	// 未注册的连接加入房间应被忽略
	m.JoinRoom(42, 500)
	if m.RoomSize(500) != 0 {
		t.Errorf("Unknown connection should not join room, got size %d", m.RoomSize(500))
	}
}
