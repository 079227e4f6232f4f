package websocket

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterFirstConnection(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	first, prev, prevLast := r.Register("c1", "u1")
	require.True(t, first)
	require.Empty(t, prev)
	require.False(t, prevLast)
	require.True(t, r.IsOnline("u1"))
	require.Equal(t, 1, r.Connections("u1"))
}

func TestRegisterSecondConnectionSameUser(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("c1", "u1")

	first, _, _ := r.Register("c2", "u1")
	require.False(t, first)
	require.Equal(t, 2, r.Connections("u1"))
}

func TestRegisterIdempotentForSameConnection(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("c1", "u1")

	first, prev, prevLast := r.Register("c1", "u1")
	require.False(t, first)
	require.Empty(t, prev)
	require.False(t, prevLast)
	require.Equal(t, 1, r.Connections("u1"))
}

func TestRegisterRebindReleasesOldUser(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("c1", "u1")

	// 同一连接换绑成另一个用户
	first, prev, prevLast := r.Register("c1", "u2")
	require.True(t, first)
	require.Equal(t, "u1", prev)
	require.True(t, prevLast)
	require.False(t, r.IsOnline("u1"))
	require.True(t, r.IsOnline("u2"))
}

func TestUnregisterRefcount(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("c1", "u1")
	r.Register("c2", "u1")

	userID, last, ok := r.Unregister("c1")
	require.True(t, ok)
	require.Equal(t, "u1", userID)
	require.False(t, last)
	require.True(t, r.IsOnline("u1"))

	userID, last, ok = r.Unregister("c2")
	require.True(t, ok)
	require.Equal(t, "u1", userID)
	require.True(t, last)
	require.False(t, r.IsOnline("u1"))
}

func TestUnregisterUnknownConnection(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	// join之前就断开的连接：不报错，不产生广播依据
	userID, last, ok := r.Unregister("never-joined")
	require.False(t, ok)
	require.False(t, last)
	require.Empty(t, userID)
}

func TestOnlineUsersSnapshot(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.Empty(t, r.OnlineUsers())

	r.Register("c1", "u1")
	r.Register("c2", "u2")
	r.Register("c3", "u2")

	users := r.OnlineUsers()
	require.Len(t, users, 2)
	require.ElementsMatch(t, []string{"u1", "u2"}, users)
}
