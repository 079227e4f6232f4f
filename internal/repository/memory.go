package repository

import (
	"sort"
	"sync"
	"time"

	"alapio/internal/model"
)

// MemoryUserStore 进程内用户存储
// 测试以及无MySQL环境下使用，行为与UserRepository一致
type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]model.User
}

// NewMemoryUserStore 创建空的内存用户存储
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{users: make(map[string]model.User)}
}

// Upsert 插入或覆盖username/avatar，保留已有的last_seen
func (m *MemoryUserStore) Upsert(user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[user.ID]; ok {
		existing.Username = user.Username
		existing.Avatar = user.Avatar
		m.users[user.ID] = existing
		return nil
	}
	u := *user
	if u.LastSeen.IsZero() {
		u.LastSeen = time.Now()
	}
	m.users[u.ID] = u
	return nil
}

// Get 按ID获取用户
func (m *MemoryUserStore) Get(id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok {
		found := u
		return &found, nil
	}
	return nil, ErrUserNotFound
}

// List 返回按用户名排序的快照
func (m *MemoryUserStore) List() ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// TouchLastSeen 更新最近在线时间
func (m *MemoryUserStore) TouchLastSeen(userID string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.LastSeen = t
		m.users[userID] = u
	}
	return nil
}

// MemoryMessageStore 进程内消息存储
type MemoryMessageStore struct {
	mu       sync.RWMutex
	byID     map[string]struct{}
	messages []model.Message
}

// NewMemoryMessageStore 创建空的内存消息存储
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{byID: make(map[string]struct{})}
}

// Create 追加消息，ID冲突返回ErrDuplicateMessageID
func (m *MemoryMessageStore) Create(message *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[message.ID]; ok {
		return ErrDuplicateMessageID
	}
	msg := *message
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.byID[msg.ID] = struct{}{}
	m.messages = append(m.messages, msg)
	return nil
}

// GetConversation 返回双向消息，按时间升序
func (m *MemoryMessageStore) GetConversation(userA, userB string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []model.Message
	for _, msg := range m.messages {
		if (msg.SenderID == userA && msg.ReceiverID == userB) ||
			(msg.SenderID == userB && msg.ReceiverID == userA) {
			result = append(result, msg)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}
