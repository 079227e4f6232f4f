package websocket

import (
	"sync"
)

// Registry 在线注册表：连接ID → 用户ID 的纯内存映射
// 随网关生命周期存在，进程重启后从零重建，不持久化
// 同一用户允许多条连接（多标签页/多设备），按连接独立计数：
// 只有0→1条连接算上线，1→0条连接算下线，避免状态抖动

type Registry struct {
	mu    sync.RWMutex
	conns map[string]string // 连接ID → 用户ID
	refs  map[string]int    // 用户ID → 活跃连接数
}

// NewRegistry 创建空的在线注册表
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]string),
		refs:  make(map[string]int),
	}
}

// Register 绑定连接与用户
// 对同一连接重复调用按覆盖处理
// first: 该用户由此从离线变为在线
// prev/prevLast: 被覆盖的旧绑定用户，及其是否因此离线
func (r *Registry) Register(connID, userID string) (first bool, prev string, prevLast bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.conns[connID]; ok {
		if old == userID {
			return false, "", false
		}
		prev = old
		r.refs[old]--
		if r.refs[old] <= 0 {
			delete(r.refs, old)
			prevLast = true
		}
	}

	r.conns[connID] = userID
	r.refs[userID]++
	return r.refs[userID] == 1, prev, prevLast
}

// Unregister 解除连接绑定
// 未注册过的连接（join之前就断开）返回 ok=false，不报错
// last: 该用户已无任何活跃连接
func (r *Registry) Unregister(connID string) (userID string, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.conns[connID]
	if !ok {
		return "", false, false
	}
	delete(r.conns, connID)

	r.refs[userID]--
	if r.refs[userID] <= 0 {
		delete(r.refs, userID)
		last = true
	}
	return userID, last, true
}

// IsOnline 用户是否至少有一条活跃连接
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refs[userID] > 0
}

// Connections 用户的活跃连接数
func (r *Registry) Connections(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refs[userID]
}

// OnlineUsers 在线用户ID快照
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.refs))
	for userID := range r.refs {
		users = append(users, userID)
	}
	return users
}
