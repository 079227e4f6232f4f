package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client 代表一条WebSocket连接
// ID 是连接标识（非用户标识），注册表以它为键
// userID 在收到join事件后绑定，只在该连接的读循环里读写

type Client struct {
	ID          string
	conn        *websocket.Conn
	send        chan []byte
	userID      string
	username    string // join时从用户目录取，写进在线状态镜像
	tokenUserID string // 会话令牌预绑定的身份，join不得与之冲突
}

// NewClient 包装一条已升级的连接
func NewClient(conn *websocket.Conn, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		ID:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
}

// writePump 写协程：串行写出send通道里的帧，并定时发送ping心跳
// send通道关闭或写失败时退出并关闭底层连接，读循环随之结束
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
