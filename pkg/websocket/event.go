package websocket

import (
	"encoding/json"

	"alapio/internal/model"
)

// 事件协议。每帧是一个JSON信封 {"event": ..., "data": ...}
// 事件名与客户端既有约定一致，不可改动

// 客户端→服务端事件
const (
	EventJoin        = "join"         // 绑定身份并订阅以用户ID命名的频道
	EventSendMessage = "send_message" // 发送消息：先持久化，再转发给接收者频道
	EventTyping      = "typing"       // 正在输入：直接转发，不持久化
)

// 服务端→客户端事件
const (
	EventReceiveMessage = "receive_message" // 投递给接收者的消息
	EventUserTyping     = "user_typing"     // 正在输入通知
	EventUserStatus     = "user_status"     // 上下线广播（发给全部连接）
	EventMessageAck     = "message_ack"     // 发送回执（按消息ID关联）
	EventError          = "error"           // 协议错误
)

// 在线状态
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// 回执状态
const (
	AckStored = "stored" // 已持久化并转发
	AckFailed = "failed" // 持久化失败，未转发
)

// Frame 事件信封
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload join事件负载
// 兼容两种形式：裸字符串 "u1" 或对象 {"user_id":"u1"}
type JoinPayload struct {
	UserID string `json:"user_id"`
}

// UnmarshalJoin 解析join负载
func UnmarshalJoin(data json.RawMessage) (string, error) {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		return plain, nil
	}
	var p JoinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", err
	}
	return p.UserID, nil
}

// TypingPayload typing事件负载
type TypingPayload struct {
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

// UserTypingPayload user_typing事件负载
type UserTypingPayload struct {
	SenderID string `json:"sender_id"`
}

// UserStatusPayload user_status事件负载
type UserStatusPayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// AckPayload message_ack事件负载
type AckPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// ErrorPayload error事件负载
type ErrorPayload struct {
	Message string `json:"message"`
}

// EncodeFrame 编码一帧事件
func EncodeFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

// mustFrame 编码必然成功的帧（负载为本包定义的结构体）
func mustFrame(event string, payload interface{}) []byte {
	data, err := EncodeFrame(event, payload)
	if err != nil {
		panic(err)
	}
	return data
}

// messageFrame 编码receive_message帧
func messageFrame(msg *model.Message) ([]byte, error) {
	return EncodeFrame(EventReceiveMessage, msg)
}
