package websocket

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"alapio/config"
	"alapio/internal/model"
	"alapio/internal/repository"
	"alapio/internal/service"
	redispkg "alapio/pkg/redis"
	"alapio/pkg/token"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type gatewayFixture struct {
	gateway  *Gateway
	tokens   *token.Service
	users    *repository.MemoryUserStore
	messages *repository.MemoryMessageStore
	wsURL    string
}

func setupGateway(t *testing.T) *gatewayFixture {
	t.Helper()
	return setupGatewayWithConfig(t, config.WebSocketConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  90 * time.Second,
	})
}

func setupGatewayWithConfig(t *testing.T, cfg config.WebSocketConfig) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := repository.NewMemoryUserStore()
	messages := repository.NewMemoryMessageStore()
	tokens := token.NewService(config.TokenConfig{Secret: "test", ExpireTime: time.Hour, Issuer: "alapio-test"})
	userSvc := service.NewUserService(users, tokens)
	msgSvc := service.NewMessageService(messages)
	gateway := NewGateway(userSvc, msgSvc, tokens, cfg)

	router := gin.New()
	router.GET("/ws", gateway.Handle)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &gatewayFixture{
		gateway:  gateway,
		tokens:   tokens,
		users:    users,
		messages: messages,
		wsURL:    "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (f *gatewayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Frame{Event: event, Data: data}))
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame Frame
	require.NoError(t, json.Unmarshal(payload, &frame))
	return frame
}

// expectNoFrame 断言在短窗口内没有任何帧到达
func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func requireStatus(t *testing.T, frame Frame, userID, status string) {
	t.Helper()
	require.Equal(t, EventUserStatus, frame.Event)
	var p UserStatusPayload
	require.NoError(t, json.Unmarshal(frame.Data, &p))
	require.Equal(t, userID, p.UserID)
	require.Equal(t, status, p.Status)
}

// join 发送join并消费自己收到的上线广播
func join(t *testing.T, conn *websocket.Conn, userID string) {
	t.Helper()
	sendFrame(t, conn, EventJoin, userID)
	requireStatus(t, readFrame(t, conn), userID, StatusOnline)
}

func TestJoinBroadcastsOnlineToAll(t *testing.T) {
	f := setupGateway(t)

	connA := f.dial(t)
	join(t, connA, "u1")

	connB := f.dial(t)
	join(t, connB, "u2")

	// 先到的连接也会收到后来者的上线广播
	requireStatus(t, readFrame(t, connA), "u2", StatusOnline)
}

func TestJoinAcceptsObjectPayload(t *testing.T) {
	f := setupGateway(t)

	conn := f.dial(t)
	sendFrame(t, conn, EventJoin, JoinPayload{UserID: "u1"})
	requireStatus(t, readFrame(t, conn), "u1", StatusOnline)
	require.True(t, f.gateway.Registry().IsOnline("u1"))
}

func TestSendMessageDeliveredPersistedAcked(t *testing.T) {
	f := setupGateway(t)

	connA := f.dial(t)
	join(t, connA, "u1")
	connB := f.dial(t)
	join(t, connB, "u2")
	requireStatus(t, readFrame(t, connA), "u2", StatusOnline)

	sendFrame(t, connA, EventSendMessage, model.Message{
		ID: "m1", SenderID: "u1", ReceiverID: "u2", Content: "hi", Type: model.MsgTypeText,
	})

	// 接收方收到原样的消息
	frame := readFrame(t, connB)
	require.Equal(t, EventReceiveMessage, frame.Event)
	var got model.Message
	require.NoError(t, json.Unmarshal(frame.Data, &got))
	require.Equal(t, "m1", got.ID)
	require.Equal(t, "u1", got.SenderID)
	require.Equal(t, "u2", got.ReceiverID)
	require.Equal(t, "hi", got.Content)
	require.Equal(t, model.MsgTypeText, got.Type)
	require.False(t, got.Timestamp.IsZero())

	// 发送方收到回执
	ackFrame := readFrame(t, connA)
	require.Equal(t, EventMessageAck, ackFrame.Event)
	var ack AckPayload
	require.NoError(t, json.Unmarshal(ackFrame.Data, &ack))
	require.Equal(t, "m1", ack.ID)
	require.Equal(t, AckStored, ack.Status)

	// 消息已持久化
	msgs, err := f.messages.GetConversation("u1", "u2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "m1", msgs[0].ID)
}

func TestTypingForwardedWithoutPersistence(t *testing.T) {
	f := setupGateway(t)

	connA := f.dial(t)
	join(t, connA, "u1")
	connB := f.dial(t)
	join(t, connB, "u2")
	requireStatus(t, readFrame(t, connA), "u2", StatusOnline)

	sendFrame(t, connA, EventTyping, TypingPayload{SenderID: "u1", ReceiverID: "u2"})

	frame := readFrame(t, connB)
	require.Equal(t, EventUserTyping, frame.Event)
	var p UserTypingPayload
	require.NoError(t, json.Unmarshal(frame.Data, &p))
	require.Equal(t, "u1", p.SenderID)

	// typing不落库
	msgs, err := f.messages.GetConversation("u1", "u2")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestSendBeforeJoinRejected(t *testing.T) {
	f := setupGateway(t)

	conn := f.dial(t)
	sendFrame(t, conn, EventSendMessage, model.Message{
		ID: "m1", SenderID: "u1", ReceiverID: "u2", Content: "hi",
	})

	frame := readFrame(t, conn)
	require.Equal(t, EventError, frame.Event)

	msgs, err := f.messages.GetConversation("u1", "u2")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestSenderMismatchRejected(t *testing.T) {
	f := setupGateway(t)

	conn := f.dial(t)
	join(t, conn, "u1")

	// 冒用他人身份发送
	sendFrame(t, conn, EventSendMessage, model.Message{
		ID: "m1", SenderID: "u9", ReceiverID: "u2", Content: "hi",
	})

	frame := readFrame(t, conn)
	require.Equal(t, EventError, frame.Event)

	msgs, err := f.messages.GetConversation("u9", "u2")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestSenderDefaultsToBoundIdentity(t *testing.T) {
	f := setupGateway(t)

	conn := f.dial(t)
	join(t, conn, "u1")

	// 不带sender_id时由网关按连接身份补齐
	sendFrame(t, conn, EventSendMessage, map[string]string{
		"id": "m1", "receiver_id": "u2", "content": "hi",
	})

	ackFrame := readFrame(t, conn)
	require.Equal(t, EventMessageAck, ackFrame.Event)

	msgs, err := f.messages.GetConversation("u1", "u2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "u1", msgs[0].SenderID)
}

func TestDuplicateMessageAckFailed(t *testing.T) {
	f := setupGateway(t)

	connA := f.dial(t)
	join(t, connA, "u1")

	sendFrame(t, connA, EventSendMessage, model.Message{
		ID: "m1", SenderID: "u1", ReceiverID: "u2", Content: "first",
	})
	frame := readFrame(t, connA)
	require.Equal(t, EventMessageAck, frame.Event)

	// 同ID再次发送：拒绝写入，保留第一条
	sendFrame(t, connA, EventSendMessage, model.Message{
		ID: "m1", SenderID: "u1", ReceiverID: "u2", Content: "other",
	})
	frame = readFrame(t, connA)
	require.Equal(t, EventMessageAck, frame.Event)
	var ack AckPayload
	require.NoError(t, json.Unmarshal(frame.Data, &ack))
	require.Equal(t, AckFailed, ack.Status)
	require.NotEmpty(t, ack.Error)

	msgs, err := f.messages.GetConversation("u1", "u2")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "first", msgs[0].Content)
}

func TestDisconnectBroadcastsOfflineAndTouchesLastSeen(t *testing.T) {
	f := setupGateway(t)

	require.NoError(t, f.users.Upsert(&model.User{ID: "u2", Username: "bob"}))
	joinTime := time.Now()

	connA := f.dial(t)
	join(t, connA, "u1")
	connB := f.dial(t)
	join(t, connB, "u2")
	requireStatus(t, readFrame(t, connA), "u2", StatusOnline)

	require.NoError(t, connB.Close())

	// 下线广播在last_seen落库之后发出
	requireStatus(t, readFrame(t, connA), "u2", StatusOffline)

	users, err := f.users.List()
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.False(t, users[0].LastSeen.Before(joinTime))
}

func TestMultiTabPresenceRefcounted(t *testing.T) {
	f := setupGateway(t)

	observer := f.dial(t)
	join(t, observer, "u9")

	tab1 := f.dial(t)
	join(t, tab1, "u1")
	requireStatus(t, readFrame(t, observer), "u1", StatusOnline)

	// 第二个标签页上线：不再广播
	tab2 := f.dial(t)
	sendFrame(t, tab2, EventJoin, "u1")
	// 同一连接上事件按序处理：typing到达说明join已生效
	sendFrame(t, tab2, EventTyping, TypingPayload{SenderID: "u1", ReceiverID: "u9"})
	frame := readFrame(t, observer)
	require.Equal(t, EventUserTyping, frame.Event)
	require.Equal(t, 2, f.gateway.Registry().Connections("u1"))

	// 两个标签页先后关闭：只在最后一条连接断开时广播一次下线
	// （观察者收到的下一帧直接就是offline，证明中间没有多余广播）
	require.NoError(t, tab1.Close())
	require.NoError(t, tab2.Close())
	requireStatus(t, readFrame(t, observer), "u1", StatusOffline)
	expectNoFrame(t, observer)
}

func TestJoinViaSessionToken(t *testing.T) {
	f := setupGateway(t)

	tok, err := f.tokens.Generate("u1", "alice")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL+"?token="+tok, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	// 令牌预绑定：无需join即上线
	requireStatus(t, readFrame(t, conn), "u1", StatusOnline)
	require.True(t, f.gateway.Registry().IsOnline("u1"))

	// 预绑定的连接join成别人会被拒绝
	sendFrame(t, conn, EventJoin, "u2")
	frame := readFrame(t, conn)
	require.Equal(t, EventError, frame.Event)
}

func TestInvalidSessionTokenRejectsHandshake(t *testing.T) {
	f := setupGateway(t)

	_, _, err := websocket.DefaultDialer.Dial(f.wsURL+"?token=garbage", nil)
	require.Error(t, err)
}

func TestUnknownEventReturnsError(t *testing.T) {
	f := setupGateway(t)

	conn := f.dial(t)
	join(t, conn, "u1")

	sendFrame(t, conn, "dance", gin.H{})
	frame := readFrame(t, conn)
	require.Equal(t, EventError, frame.Event)
}

func TestDisconnectBeforeJoinIsSilent(t *testing.T) {
	f := setupGateway(t)

	observer := f.dial(t)
	join(t, observer, "u9")

	// 未join的连接断开：不产生任何广播
	stranger := f.dial(t)
	require.NoError(t, stranger.Close())
	expectNoFrame(t, observer)
}

func TestTypingBeforeJoinRejected(t *testing.T) {
	f := setupGateway(t)

	conn := f.dial(t)
	sendFrame(t, conn, EventTyping, TypingPayload{ReceiverID: "u2"})

	frame := readFrame(t, conn)
	require.Equal(t, EventError, frame.Event)
}

func TestHandshakeSelectsSingleSubprotocol(t *testing.T) {
	f := setupGateway(t)

	// 客户端提交多个候选子协议，握手响应只能选定一个
	dialer := websocket.Dialer{Subprotocols: []string{"chat.v1", "chat.v2"}}
	conn, resp, err := dialer.Dial(f.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Equal(t, "chat.v1", resp.Header.Get("Sec-WebSocket-Protocol"))
	require.Equal(t, "chat.v1", conn.Subprotocol())
}

// setupMirror 注入miniredis作为在线状态镜像后端
// 镜像客户端是包级单例，相关测试不并行
func setupMirror(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	redispkg.SetClient(client)
	t.Cleanup(func() {
		redispkg.SetClient(nil)
		_ = client.Close()
	})
	return mr
}

func TestPresenceMirrorRecordsUsername(t *testing.T) {
	setupMirror(t)
	f := setupGateway(t)

	require.NoError(t, f.users.Upsert(&model.User{ID: "u1", Username: "alice"}))

	observer := f.dial(t)
	join(t, observer, "u9")

	conn := f.dial(t)
	join(t, conn, "u1")
	requireStatus(t, readFrame(t, observer), "u1", StatusOnline)

	// 镜像快照带上用户目录里的用户名
	p, err := redispkg.GetUserPresence("u1")
	require.NoError(t, err)
	require.Equal(t, "alice", p.Username)
	require.Equal(t, StatusOnline, p.Status)

	online, err := redispkg.GetOnlineUsers()
	require.NoError(t, err)
	require.Contains(t, online, "u1")

	// 断开后镜像同步转为offline并移出在线集合
	require.NoError(t, conn.Close())
	requireStatus(t, readFrame(t, observer), "u1", StatusOffline)

	p, err = redispkg.GetUserPresence("u1")
	require.NoError(t, err)
	require.Equal(t, "alice", p.Username)
	require.Equal(t, StatusOffline, p.Status)

	online, err = redispkg.GetOnlineUsers()
	require.NoError(t, err)
	require.NotContains(t, online, "u1")
}

func TestHeartbeatKeepsPresenceMirrorAlive(t *testing.T) {
	mr := setupMirror(t)
	f := setupGatewayWithConfig(t, config.WebSocketConfig{
		PingInterval: 20 * time.Millisecond,
		ReadTimeout:  90 * time.Second,
	})

	require.NoError(t, f.users.Upsert(&model.User{ID: "u1", Username: "alice"}))

	conn := f.dial(t)
	join(t, conn, "u1")

	// 客户端持续读，底层自动应答ping
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// 把镜像key推到临近过期，再留几个心跳周期让pong顺延TTL，
	// 再次推进同样的跨度：没有刷新的话key此时已经过期
	mr.FastForward(redispkg.PresenceTTL - time.Second)
	time.Sleep(100 * time.Millisecond)
	mr.FastForward(redispkg.PresenceTTL - time.Second)

	p, err := redispkg.GetUserPresence("u1")
	require.NoError(t, err)
	require.Equal(t, StatusOnline, p.Status)

	// 镜像key与在线集合保持一致
	online, err := redispkg.GetOnlineUsers()
	require.NoError(t, err)
	require.Contains(t, online, "u1")
}
