package service

import (
	"errors"
	"time"

	"alapio/internal/model"
	"alapio/internal/repository"
)

// MessageService 消息服务
type MessageService struct {
	messages repository.MessageStore
}

// NewMessageService 创建MessageService实例
func NewMessageService(messages repository.MessageStore) *MessageService {
	return &MessageService{messages: messages}
}

// Append 校验并持久化一条消息
// 消息ID由客户端生成，冲突原样返回repository.ErrDuplicateMessageID
func (s *MessageService) Append(message *model.Message) error {
	if message.ID == "" {
		return errors.New("message id is required")
	}
	if message.SenderID == "" || message.ReceiverID == "" {
		return errors.New("sender_id and receiver_id are required")
	}
	if message.Type == "" {
		message.Type = model.MsgTypeText
	}
	if !model.ValidType(message.Type) {
		return errors.New("invalid message type")
	}
	// text消息必须有内容，附件消息内容可为空
	if message.Type == model.MsgTypeText && message.Content == "" {
		return errors.New("content is required for text messages")
	}
	// 时间戳以服务端为准，转发给接收方的帧与落库的行一致
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	return s.messages.Create(message)
}

// Conversation 获取两个用户之间的消息历史，按时间升序
func (s *MessageService) Conversation(userA, userB string) ([]model.Message, error) {
	if userA == "" || userB == "" {
		return nil, errors.New("both user ids are required")
	}
	return s.messages.GetConversation(userA, userB)
}
