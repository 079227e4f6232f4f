package model

import (
	"time"
)

// 消息类型
// 非text类型时 FileURL/FileName 才有意义
const (
	MsgTypeText     = "text"
	MsgTypeImage    = "image"
	MsgTypeVideo    = "video"
	MsgTypeAudio    = "audio"
	MsgTypeDocument = "document"
)

// Message 消息模型
// ID 由客户端生成，作为主键，重复即冲突
// FileURL 可能是内联编码的大负载（几十MB），不经解码直接存储
// 消息一经写入不再修改或删除，按 Timestamp 升序检索

type Message struct {
	ID         string    `gorm:"type:varchar(64);primaryKey;comment:消息ID(客户端生成)" json:"id"`
	SenderID   string    `gorm:"type:varchar(64);not null;index;comment:发送者ID" json:"sender_id"`
	ReceiverID string    `gorm:"type:varchar(64);not null;index;comment:接收者ID" json:"receiver_id"`
	Content    string    `gorm:"type:text;comment:消息内容" json:"content"`
	Type       string    `gorm:"type:varchar(32);default:'text';comment:消息类型" json:"type"`
	FileURL    string    `gorm:"type:longtext;comment:附件URL或内联数据" json:"file_url,omitempty"`
	FileName   string    `gorm:"type:varchar(255);comment:附件文件名" json:"file_name,omitempty"`
	Timestamp  time.Time `gorm:"index;comment:创建时间" json:"timestamp"`
}

func (Message) TableName() string { return "messages" }

// ValidType 校验消息类型是否合法
func ValidType(t string) bool {
	switch t {
	case MsgTypeText, MsgTypeImage, MsgTypeVideo, MsgTypeAudio, MsgTypeDocument:
		return true
	}
	return false
}
