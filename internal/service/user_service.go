package service

import (
	"errors"
	"strings"
	"time"

	"alapio/internal/model"
	"alapio/internal/repository"
	"alapio/pkg/token"
)

// UserService 用户服务
// 身份核验（手机OTP等）发生在外部认证方，这里接收其下发的
// {id, username, avatar} 三元组：语法合法即接受，不假设ID经过加密验证

type UserService struct {
	users  repository.UserStore
	tokens *token.Service
}

// NewUserService 创建UserService实例
func NewUserService(users repository.UserStore, tokens *token.Service) *UserService {
	return &UserService{users: users, tokens: tokens}
}

// Login 登录即upsert：新用户插入，老用户覆盖username/avatar
// 返回可选的会话令牌，供WebSocket握手使用
func (s *UserService) Login(id, username, avatar string) (string, error) {
	id = strings.TrimSpace(id)
	username = strings.TrimSpace(username)
	if id == "" || username == "" {
		return "", errors.New("id and username are required")
	}

	user := &model.User{
		ID:       id,
		Username: username,
		Avatar:   avatar,
	}
	if err := s.users.Upsert(user); err != nil {
		return "", err
	}

	return s.tokens.Generate(id, username)
}

// Get 按ID获取用户，不存在返回repository.ErrUserNotFound
func (s *UserService) Get(id string) (*model.User, error) {
	return s.users.Get(id)
}

// List 获取全量用户目录
func (s *UserService) List() ([]model.User, error) {
	return s.users.List()
}

// TouchLastSeen 更新最近在线时间（连接断开时调用）
func (s *UserService) TouchLastSeen(userID string, t time.Time) error {
	return s.users.TouchLastSeen(userID, t)
}
