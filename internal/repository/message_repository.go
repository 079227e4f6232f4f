package repository

import (
	"errors"
	"time"

	"alapio/internal/model"

	"gorm.io/gorm"
)

// MessageRepository 消息数据仓储（MySQL）
type MessageRepository struct {
	orm *gorm.DB
}

// NewMessageRepository 创建MessageRepository实例
func NewMessageRepository(orm *gorm.DB) *MessageRepository {
	return &MessageRepository{orm: orm}
}

// Create 追加消息
// 依赖 gorm 的 TranslateError 把主键冲突翻译为 ErrDuplicatedKey
func (r *MessageRepository) Create(message *model.Message) error {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	err := r.orm.Create(message).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateMessageID
	}
	return err
}

// GetConversation 获取两个用户之间的私聊消息（双向），按时间升序
// 不做分页：无界结果集是当前产品的既定取舍
func (r *MessageRepository) GetConversation(userA, userB string) ([]model.Message, error) {
	var messages []model.Message
	err := r.orm.Where(
		"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
		userA, userB, userB, userA,
	).
		Order("timestamp ASC").
		Find(&messages).Error
	return messages, err
}
