package model

import (
	"time"
)

// User 用户模型
// ID 由外部认证方下发，创建后不可变，作为主键
// 用户名唯一；头像为不透明的URL引用
// LastSeen 在连接断开时更新，表示最近在线时间
// 用户由本系统 upsert 创建/更新，从不删除

type User struct {
	ID       string    `gorm:"type:varchar(64);primaryKey;comment:用户ID(外部下发)" json:"id"`
	Username string    `gorm:"type:varchar(64);not null;uniqueIndex;comment:用户名" json:"username"`
	Avatar   string    `gorm:"type:varchar(512);comment:头像URL" json:"avatar"`
	LastSeen time.Time `gorm:"comment:最近在线时间" json:"last_seen"`
}

// TableName 指定表名（全局配置使用单数表名，这里保持复数以兼容既有schema）
func (User) TableName() string { return "users" }
