package websocket

import (
	"sync"

	"alapio/pkg/logger"

	"go.uber.org/zap"
)

// Manager 管理全部活跃连接与以用户ID命名的频道
// 发往某个频道名的帧会到达订阅该频道的所有连接（同一用户的全部标签页），
// 网关因此不需要知道接收者具体是哪条连接

type Manager struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}          // 全部连接（含未join的）
	rooms   map[string]map[*Client]struct{} // 频道名（用户ID） → 订阅连接
	joined  map[*Client]string            // 连接 → 已订阅的频道
}

// NewManager 创建连接管理器
func NewManager() *Manager {
	return &Manager{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		joined:  make(map[*Client]string),
	}
}

// AddClient 登记新连接（尚未绑定身份）
func (m *Manager) AddClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client] = struct{}{}
}

// Subscribe 把连接订阅到以用户ID命名的频道
// 已订阅其他频道时先退出旧频道（重复join按覆盖处理）
func (m *Manager) Subscribe(client *Client, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.joined[client]; ok {
		if old == userID {
			return
		}
		m.leaveRoom(client, old)
	}

	room, ok := m.rooms[userID]
	if !ok {
		room = make(map[*Client]struct{})
		m.rooms[userID] = room
	}
	room[client] = struct{}{}
	m.joined[client] = userID
}

// RemoveClient 移除连接并关闭其发送通道
func (m *Manager) RemoveClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[client]; !ok {
		return
	}
	delete(m.clients, client)
	if room, ok := m.joined[client]; ok {
		m.leaveRoom(client, room)
	}
	// 连接已不在clients中，不会再有并发写入，可以安全关闭
	close(client.send)
}

// leaveRoom 调用方需持有写锁
func (m *Manager) leaveRoom(client *Client, userID string) {
	if room, ok := m.rooms[userID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(m.rooms, userID)
		}
	}
	delete(m.joined, client)
}

// SendToUser 把帧发往指定用户的频道
// 用户不在线时静默丢弃：只面向当前连接做 best effort 投递
func (m *Manager) SendToUser(userID string, frame []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for client := range m.rooms[userID] {
		m.trySend(client, frame)
	}
}

// SendToClient 把帧发往单条连接（回执、错误帧）
func (m *Manager) SendToClient(client *Client, frame []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.trySend(client, frame)
}

// Broadcast 把帧发往全部连接（含未join的）
func (m *Manager) Broadcast(frame []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for client := range m.clients {
		m.trySend(client, frame)
	}
}

// Count 当前连接数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// trySend 非阻塞投递，缓冲满则丢弃该帧
// 调用方需持有读锁：关闭send发生在连接移出clients之后的写锁临界区，
// 因此持锁期间连接仍在clients中就保证send未关闭
func (m *Manager) trySend(client *Client, frame []byte) {
	if _, ok := m.clients[client]; !ok {
		return
	}
	select {
	case client.send <- frame:
	default:
		logger.Warn("连接发送缓冲已满，丢弃一帧", zap.String("conn_id", client.ID))
	}
}
