package repository

import (
	"errors"
	"time"

	"alapio/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户数据仓储（MySQL）
type UserRepository struct {
	orm *gorm.DB
}

// NewUserRepository 创建UserRepository实例
func NewUserRepository(orm *gorm.DB) *UserRepository {
	return &UserRepository{orm: orm}
}

// Upsert 插入或更新用户
// 已存在时只覆盖username/avatar，last_seen走自己的更新路径
func (r *UserRepository) Upsert(user *model.User) error {
	if user.LastSeen.IsZero() {
		user.LastSeen = time.Now()
	}
	return r.orm.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "avatar"}),
	}).Create(user).Error
}

// Get 按ID获取用户
func (r *UserRepository) Get(id string) (*model.User, error) {
	var user model.User
	err := r.orm.First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// List 获取全量用户目录
func (r *UserRepository) List() ([]model.User, error) {
	var users []model.User
	err := r.orm.Order("username ASC").Find(&users).Error
	return users, err
}

// TouchLastSeen 更新最近在线时间
func (r *UserRepository) TouchLastSeen(userID string, t time.Time) error {
	return r.orm.Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_seen", t).Error
}
