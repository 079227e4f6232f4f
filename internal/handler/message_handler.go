package handler

import (
	"alapio/internal/model"
	"alapio/internal/service"
	"alapio/pkg/response"

	"github.com/gin-gonic/gin"
)

// MessageHandler 消息历史接口
type MessageHandler struct {
	service *service.MessageService
}

// NewMessageHandler 创建MessageHandler实例
func NewMessageHandler(s *service.MessageService) *MessageHandler {
	return &MessageHandler{service: s}
}

// Conversation 获取两个用户之间的消息历史，按时间升序
// 打开会话时调用一次，不在实时热路径上
func (h *MessageHandler) Conversation(c *gin.Context) {
	userA := c.Param("user_a")
	userB := c.Param("user_b")
	if userA == "" || userB == "" {
		response.BadRequest(c, "both user ids are required")
		return
	}

	messages, err := h.service.Conversation(userA, userB)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	response.JSON(c, messages)
}
