package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"alapio/config"
	"alapio/internal/model"
	"alapio/internal/service"
	"alapio/pkg/logger"
	"alapio/pkg/redis"
	"alapio/pkg/response"
	"alapio/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域
	},
}

// Gateway 实时网关：每个客户端一条长连接，复用三路事件流
// （join、消息收发、输入通知），并驱动上下线广播与持久化副作用
// 每连接状态机：Connected（已升级未绑定身份）→ Joined → Closed

type Gateway struct {
	registry *Registry
	manager  *Manager
	users    *service.UserService
	messages *service.MessageService
	tokens   *token.Service
	cfg      config.WebSocketConfig
}

// NewGateway 创建实时网关
// 注册表与管理器由网关持有，不暴露全局状态
func NewGateway(users *service.UserService, messages *service.MessageService, tokens *token.Service, cfg config.WebSocketConfig) *Gateway {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 90 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 100 << 20
	}
	return &Gateway{
		registry: NewRegistry(),
		manager:  NewManager(),
		users:    users,
		messages: messages,
		tokens:   tokens,
		cfg:      cfg,
	}
}

// Registry 暴露在线注册表（目录接口需要在线状态）
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Handle Gin路由处理函数：升级连接并驱动事件协议
func (g *Gateway) Handle(c *gin.Context) {
	// 可选的会话令牌：有效则在升级后直接预绑定身份
	// 没有令牌的连接同样接受，由join事件绑定（身份核验在外部认证方）
	var tokenUser string
	if t := c.Query("token"); t != "" && g.tokens != nil {
		userID, err := g.tokens.Validate(t)
		if err != nil {
			response.Unauthorized(c, "token无效或已过期")
			return
		}
		tokenUser = userID
	}

	// 选定子协议，避免客户端提示 "Server sent no subprotocol"
	// 客户端可能提交逗号分隔的多个候选，握手响应只允许选其中一个
	respHeader := http.Header{}
	if protocol := c.GetHeader("Sec-WebSocket-Protocol"); protocol != "" {
		if i := strings.Index(protocol, ","); i >= 0 {
			protocol = protocol[:i]
		}
		respHeader.Set("Sec-WebSocket-Protocol", strings.TrimSpace(protocol))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
	if err != nil {
		return
	}

	// 帧大小上限要容纳内联编码的附件
	conn.SetReadLimit(g.cfg.MaxMessageSize)

	client := NewClient(conn, g.cfg.SendBuffer)
	client.tokenUserID = tokenUser
	g.manager.AddClient(client)

	logger.Info("连接建立",
		zap.String("conn_id", client.ID),
		zap.String("ip", c.ClientIP()),
		zap.Int("connections", g.manager.Count()),
	)

	// 写协程 + 定时ping心跳
	go client.writePump(g.cfg.PingInterval)

	defer g.disconnect(client)

	if tokenUser != "" {
		g.join(client, tokenUser)
	}

	// 读循环：未在超时窗口内收到任何读事件（含pong）则断开
	// pong同时顺延Redis镜像的TTL，镜像key过期即表示连接早已不在
	_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		if client.userID != "" {
			if err := redis.RefreshUserPresence(client.userID); err != nil {
				// key已过期或Redis重启过，重写一份完整快照
				_ = redis.SetUserPresence(client.userID, client.username, StatusOnline)
			}
		}
		return conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
	})
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(g.cfg.ReadTimeout))
		g.dispatch(client, payload)
	}
}

// dispatch 解析并处理一帧客户端事件
// 事件在该连接的读循环里顺序处理完毕才读下一帧
func (g *Gateway) dispatch(client *Client, payload []byte) {
	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		g.sendError(client, "无法解析事件帧")
		return
	}

	switch frame.Event {
	case EventJoin:
		g.handleJoin(client, frame.Data)
	case EventSendMessage:
		g.handleSend(client, frame.Data)
	case EventTyping:
		g.handleTyping(client, frame.Data)
	default:
		g.sendError(client, "未知事件: "+frame.Event)
	}
}

// handleJoin 绑定身份并订阅以用户ID命名的频道
func (g *Gateway) handleJoin(client *Client, data json.RawMessage) {
	userID, err := UnmarshalJoin(data)
	if err != nil || userID == "" {
		g.sendError(client, "join需要用户ID")
		return
	}

	// 令牌预绑定的连接不允许join成别人
	if client.tokenUserID != "" && client.tokenUserID != userID {
		g.sendError(client, "join身份与会话令牌不符")
		return
	}

	g.join(client, userID)
}

// join 登记在线状态并广播
// 只有用户的第一条连接触发online广播（引用计数），广播发往全部连接（含触发者自己）
func (g *Gateway) join(client *Client, userID string) {
	first, prev, prevLast := g.registry.Register(client.ID, userID)
	g.manager.Subscribe(client, userID)
	prevName := client.username
	client.userID = userID
	client.username = g.lookupUsername(userID)

	// 同一连接换身份：旧身份可能因此下线
	if prevLast {
		_ = redis.SetUserPresence(prev, prevName, StatusOffline)
		g.manager.Broadcast(mustFrame(EventUserStatus, UserStatusPayload{UserID: prev, Status: StatusOffline}))
	}

	_ = redis.SetUserPresence(userID, client.username, StatusOnline)
	if first {
		g.manager.Broadcast(mustFrame(EventUserStatus, UserStatusPayload{UserID: userID, Status: StatusOnline}))
	}

	logger.Info("用户加入",
		zap.String("conn_id", client.ID),
		zap.String("user_id", userID),
		zap.Bool("first_connection", first),
	)
}

// lookupUsername 从用户目录取用户名，尚未登录过的用户留空
func (g *Gateway) lookupUsername(userID string) string {
	u, err := g.users.Get(userID)
	if err != nil || u == nil {
		return ""
	}
	return u.Username
}

// handleSend 先持久化，再转发到接收者频道，最后给发送者回执
// 持久化失败则不转发：不投递一条事后无据可查的消息
func (g *Gateway) handleSend(client *Client, data json.RawMessage) {
	if client.userID == "" {
		g.sendError(client, "发送消息前必须先join")
		return
	}

	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		g.sendError(client, "无法解析消息负载")
		return
	}

	// 发送者身份以连接绑定为准，不信任客户端自报的sender_id
	if msg.SenderID == "" {
		msg.SenderID = client.userID
	}
	if msg.SenderID != client.userID {
		g.sendError(client, "sender_id与连接身份不符")
		return
	}

	if err := g.messages.Append(&msg); err != nil {
		logger.Warn("消息持久化失败",
			zap.String("message_id", msg.ID),
			zap.String("sender_id", msg.SenderID),
			zap.Error(err),
		)
		g.sendAck(client, msg.ID, AckFailed, err.Error())
		return
	}

	frame, err := messageFrame(&msg)
	if err != nil {
		g.sendAck(client, msg.ID, AckFailed, "消息编码失败")
		return
	}
	g.manager.SendToUser(msg.ReceiverID, frame)
	g.sendAck(client, msg.ID, AckStored, "")
}

// handleTyping 转发输入通知，不持久化，无回执
func (g *Gateway) handleTyping(client *Client, data json.RawMessage) {
	if client.userID == "" {
		g.sendError(client, "发送事件前必须先join")
		return
	}

	var p TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendError(client, "无法解析typing负载")
		return
	}
	if p.SenderID == "" {
		p.SenderID = client.userID
	}
	if p.SenderID != client.userID {
		g.sendError(client, "sender_id与连接身份不符")
		return
	}
	if p.ReceiverID == "" {
		g.sendError(client, "typing需要receiver_id")
		return
	}

	g.manager.SendToUser(p.ReceiverID, mustFrame(EventUserTyping, UserTypingPayload{SenderID: p.SenderID}))
}

// disconnect 连接关闭时的清理
// join之前断开的连接：只移除，不广播、不落库
func (g *Gateway) disconnect(client *Client) {
	g.manager.RemoveClient(client)

	userID, last, ok := g.registry.Unregister(client.ID)
	if !ok {
		logger.Info("连接断开（未绑定身份）", zap.String("conn_id", client.ID))
		return
	}

	now := time.Now()
	if err := g.users.TouchLastSeen(userID, now); err != nil {
		logger.Error("更新最近在线时间失败",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	if last {
		_ = redis.SetUserPresence(userID, client.username, StatusOffline)
		g.manager.Broadcast(mustFrame(EventUserStatus, UserStatusPayload{UserID: userID, Status: StatusOffline}))
	}

	logger.Info("用户断开",
		zap.String("conn_id", client.ID),
		zap.String("user_id", userID),
		zap.Bool("last_connection", last),
	)
}

// sendAck 给发送者回执
func (g *Gateway) sendAck(client *Client, messageID, status, errMsg string) {
	g.manager.SendToClient(client, mustFrame(EventMessageAck, AckPayload{ID: messageID, Status: status, Error: errMsg}))
}

// sendError 给连接回协议错误
func (g *Gateway) sendError(client *Client, message string) {
	g.manager.SendToClient(client, mustFrame(EventError, ErrorPayload{Message: message}))
}
