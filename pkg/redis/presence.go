package redis

import (
	"encoding/json"
	"fmt"
	"time"
)

// 在线状态镜像。进程内的 Registry 才是真相来源，
// 这里只是把快照写进Redis，供运维和外部进程观察，
// 全部 best effort，失败不影响消息投递

// PresenceData 在线状态数据
type PresenceData struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Status   string    `json:"status"` // online/offline
	LastSeen time.Time `json:"last_seen"`
}

// 在线状态相关常量
const (
	PresenceKeyPrefix = "alapio:presence:user:" // 用户在线状态key前缀
	OnlineUsersKey    = "alapio:online:users"   // 在线用户集合key
	PresenceTTL       = 3 * time.Minute         // 在线状态TTL（3倍心跳周期）
)

// SetUserPresence 设置用户在线状态镜像
func SetUserPresence(userID, username, status string) error {
	if client == nil {
		return nil
	}

	key := PresenceKeyPrefix + userID

	presence := PresenceData{
		UserID:   userID,
		Username: username,
		Status:   status,
		LastSeen: time.Now(),
	}

	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("序列化在线状态失败: %w", err)
	}

	if err := client.Set(ctx, key, data, PresenceTTL).Err(); err != nil {
		return fmt.Errorf("设置用户在线状态失败: %w", err)
	}

	// 更新在线用户集合
	if status == "online" {
		err = client.SAdd(ctx, OnlineUsersKey, userID).Err()
	} else {
		err = client.SRem(ctx, OnlineUsersKey, userID).Err()
	}
	if err != nil {
		return fmt.Errorf("更新在线用户集合失败: %w", err)
	}

	return nil
}

// GetUserPresence 获取用户在线状态镜像
func GetUserPresence(userID string) (*PresenceData, error) {
	if client == nil {
		return nil, fmt.Errorf("redis未启用")
	}

	data, err := client.Get(ctx, PresenceKeyPrefix+userID).Result()
	if err != nil {
		return nil, fmt.Errorf("获取用户在线状态失败: %w", err)
	}

	var presence PresenceData
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return nil, fmt.Errorf("反序列化在线状态失败: %w", err)
	}

	return &presence, nil
}

// GetOnlineUsers 获取在线用户ID列表
func GetOnlineUsers() ([]string, error) {
	if client == nil {
		return nil, fmt.Errorf("redis未启用")
	}

	members, err := client.SMembers(ctx, OnlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("获取在线用户列表失败: %w", err)
	}

	return members, nil
}

// RefreshUserPresence 刷新用户在线状态（延长TTL）
func RefreshUserPresence(userID string) error {
	if client == nil {
		return nil
	}

	key := PresenceKeyPrefix + userID

	exists, err := client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("检查用户状态失败: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("用户不在线")
	}

	if err := client.Expire(ctx, key, PresenceTTL).Err(); err != nil {
		return fmt.Errorf("刷新用户在线状态失败: %w", err)
	}

	return nil
}
