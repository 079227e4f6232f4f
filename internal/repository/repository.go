package repository

import (
	"errors"
	"time"

	"alapio/internal/model"
)

// ErrDuplicateMessageID 消息ID冲突
// 消息ID由客户端生成，冲突时拒绝写入，保留先到的那一条
var ErrDuplicateMessageID = errors.New("message id already exists")

// ErrUserNotFound 用户不存在
var ErrUserNotFound = errors.New("user not found")

// UserStore 用户存储契约
type UserStore interface {
	// Upsert 按ID插入或覆盖username/avatar，不触碰last_seen
	Upsert(user *model.User) error
	// Get 按ID获取用户，不存在返回ErrUserNotFound
	Get(id string) (*model.User, error)
	// List 返回全量用户快照（目录规模小，无分页）
	List() ([]model.User, error)
	// TouchLastSeen 仅更新最近在线时间
	TouchLastSeen(userID string, t time.Time) error
}

// MessageStore 消息存储契约
type MessageStore interface {
	// Create 追加一条消息，ID冲突返回ErrDuplicateMessageID
	Create(message *model.Message) error
	// GetConversation 返回两个用户之间的全部消息（双向），按时间升序
	GetConversation(userA, userB string) ([]model.Message, error)
}
