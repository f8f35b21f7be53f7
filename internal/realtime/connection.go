package realtime

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/webtransport-go"
)

// ErrConnectionClosed 连接已关闭
var ErrConnectionClosed = errors.New("connection closed")

var connIDCounter int64

// Connection 表示一个客户端实时连接
// 服务端推送经 writeChan 由单独的 writeLoop 串行发出，
// 单连接上的下行帧保持入队顺序
type Connection struct {
	id         int64
	userID     atomic.Int64
	session    *webtransport.Session
	logger     *slog.Logger
	writeChan  chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
	createTime time.Time
	lastActive atomic.Int64 // UnixMilli
}

// NewConnection 从 WebTransport 会话创建连接
func NewConnection(session *webtransport.Session, logger *slog.Logger) *Connection {
	id := atomic.AddInt64(&connIDCounter, 1)
	c := &Connection{
		id:         id,
		session:    session,
		logger:     logger,
		writeChan:  make(chan []byte, 256),
		closeChan:  make(chan struct{}),
		createTime: time.Now(),
	}
	c.lastActive.Store(time.Now().UnixMilli())
	go c.writeLoop()
	return c
}

func (c *Connection) ID() int64 {
	return c.id
}

// UserID 返回绑定的用户 ID，未完成 setup 时为 0
func (c *Connection) UserID() int64 {
	return c.userID.Load()
}

// BindUser 绑定用户身份，setup 成功后调用
func (c *Connection) BindUser(userID int64) {
	c.userID.Store(userID)
}

func (c *Connection) Session() *webtransport.Session {
	return c.session
}

// Send 异步推送一帧数据
func (c *Connection) Send(data []byte) error {
	select {
	case c.writeChan <- data:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeChan:
			stream, err := c.session.OpenStream()
			if err != nil {
				c.logger.Error("Failed to open stream", "error", err)
				continue
			}
			if _, err := stream.Write(data); err != nil {
				c.logger.Error("Failed to write to stream", "error", err)
			}
			stream.Close()
		case <-c.closeChan:
			return
		}
	}
}

func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.session.CloseWithError(0, "connection closed")
	})
}

// UpdateActive 刷新活跃时间，收到任意上行帧时调用
func (c *Connection) UpdateActive() {
	c.lastActive.Store(time.Now().UnixMilli())
}

// LastActiveTime 最后活跃时间，供心跳检测使用
func (c *Connection) LastActiveTime() time.Time {
	return time.UnixMilli(c.lastActive.Load())
}

func (c *Connection) CreateTime() time.Time {
	return c.createTime
}
