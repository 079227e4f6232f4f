package handler

import (
	"alapio/internal/model"
	"alapio/internal/service"
	"alapio/pkg/response"
	"alapio/pkg/websocket"

	"github.com/gin-gonic/gin"
)

// UserHandler 用户目录接口
type UserHandler struct {
	service  *service.UserService
	registry *websocket.Registry
}

// NewUserHandler 创建UserHandler实例
func NewUserHandler(s *service.UserService, registry *websocket.Registry) *UserHandler {
	return &UserHandler{service: s, registry: registry}
}

// userView 目录条目：用户信息加上注册表派生的在线状态
type userView struct {
	model.User
	Status string `json:"status"`
}

// List 获取用户目录（侧栏初始化用）
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.service.List()
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		status := websocket.StatusOffline
		if h.registry.IsOnline(u.ID) {
			status = websocket.StatusOnline
		}
		views = append(views, userView{User: u, Status: status})
	}

	response.JSON(c, views)
}

// Login 登录即upsert
// 身份三元组由外部认证方核验后下发，这里语法合法即接受
func (h *UserHandler) Login(c *gin.Context) {
	type req struct {
		ID       string `json:"id" binding:"required"`
		Username string `json:"username" binding:"required"`
		Avatar   string `json:"avatar"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	token, err := h.service.Login(r.ID, r.Username, r.Avatar)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.SuccessWithToken(c, token)
}

// Online 获取在线用户ID列表（注册表快照）
func (h *UserHandler) Online(c *gin.Context) {
	users := h.registry.OnlineUsers()
	if users == nil {
		users = []string{}
	}
	response.JSON(c, users)
}
