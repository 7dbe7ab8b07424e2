package ws

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
)

func pipeConnection(t *testing.T, id string, buffer int) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return newConnection(id, server, socketFD(server), buffer, time.Second), client
}

func TestConnection_EnqueueWhenFull(t *testing.T) {
	req := require.New(t)
	c, _ := pipeConnection(t, "a", 2)

	req.True(c.Enqueue([]byte("1")))
	req.True(c.Enqueue([]byte("2")))
	req.False(c.Enqueue([]byte("3")))
}

func TestConnection_EnqueueAfterClose(t *testing.T) {
	req := require.New(t)
	c, _ := pipeConnection(t, "a", 2)

	req.NoError(c.Close())
	req.NoError(c.Close())
	req.False(c.Enqueue([]byte("late")))

	select {
	case <-c.Done():
	default:
		t.Fatal("expected Done to be closed")
	}
}

func TestConnection_WritePumpKeepsOrder(t *testing.T) {
	req := require.New(t)
	c, client := pipeConnection(t, "a", 8)
	go c.writePump()

	for _, msg := range []string{"one", "two", "three"} {
		req.True(c.Enqueue([]byte(msg)))
	}

	for _, want := range []string{"one", "two", "three"} {
		got, err := wsutil.ReadServerText(client)
		req.NoError(err)
		req.Equal(want, string(got))
	}
}

func TestConnection_WritePumpStopsOnWriteError(t *testing.T) {
	req := require.New(t)
	c, client := pipeConnection(t, "a", 8)
	client.Close()
	go c.writePump()

	req.True(c.Enqueue([]byte("lost")))
	req.Eventually(func() bool {
		select {
		case <-c.Done():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestConnectionManager_AddGetRemove(t *testing.T) {
	req := require.New(t)
	cm := NewConnectionManager()
	a, _ := pipeConnection(t, "a", 1)
	b, _ := pipeConnection(t, "b", 1)

	cm.Add(a)
	cm.Add(b)

	req.Equal(2, cm.Count())
	req.Same(a, cm.Get("a"))
	req.Same(b, cm.GetByConn(b.Conn))
	req.Nil(cm.Get("missing"))

	req.True(cm.Remove("a"))
	req.False(cm.Remove("a"))
	req.Nil(cm.GetByConn(a.Conn))
	req.Len(cm.All(), 1)
}

func TestCheckConnections_EvictsIdle(t *testing.T) {
	req := require.New(t)
	srv := NewServer(DefaultServerConfig(), nil)
	var removed []string
	srv.SetOnDisconnect(func(id string) { removed = append(removed, id) })

	stale, _ := pipeConnection(t, "stale", 1)
	live, liveClient := pipeConnection(t, "live", 1)
	go func() { _, _ = io.Copy(io.Discard, liveClient) }()
	srv.conns.Add(stale)
	srv.conns.Add(live)

	cfg := HeartbeatConfig{Interval: time.Second, Timeout: time.Second}
	stale.lastSeen.Store(time.Now().Add(-time.Minute).UnixNano())

	checkConnections(srv, cfg, time.Now())

	req.Equal([]string{"stale"}, removed)
	req.Nil(srv.conns.Get("stale"))
	req.NotNil(srv.conns.Get("live"))
}
