package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whisper/pairing/internal/protocol"
)

func queued(t *testing.T, c *Connection) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.send:
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	default:
		t.Fatal("expected a queued frame")
		return nil
	}
}

func TestDispatch_RoutesToHandler(t *testing.T) {
	req := require.New(t)
	srv := NewServer(DefaultServerConfig(), nil)
	c, _ := pipeConnection(t, "a", 4)
	srv.conns.Add(c)

	d := NewMessageDispatcher(srv)
	var got protocol.RequestChatMsg
	d.Register(protocol.TypeRequestChat, func(conn *Connection, msg interface{}) {
		req.Same(c, conn)
		got = msg.(protocol.RequestChatMsg)
	})

	d.Dispatch(c, []byte(`{"type":"request-chat","name":"ana","interests":["go"]}`))

	req.Equal("ana", got.Name)
	req.Equal([]string{"go"}, got.Interests)
	req.Empty(c.send)
}

func TestDispatch_PingAnsweredWithoutHandler(t *testing.T) {
	req := require.New(t)
	srv := NewServer(DefaultServerConfig(), nil)
	c, _ := pipeConnection(t, "a", 4)
	srv.conns.Add(c)

	NewMessageDispatcher(srv).Dispatch(c, []byte(`{"type":"ping"}`))

	req.Equal(protocol.TypePong, queued(t, c)["type"])
}

func TestDispatch_ValidationFailureIsParseError(t *testing.T) {
	req := require.New(t)
	srv := NewServer(DefaultServerConfig(), nil)
	c, _ := pipeConnection(t, "a", 4)
	srv.conns.Add(c)

	d := NewMessageDispatcher(srv)
	d.Register(protocol.TypeReportUser, func(*Connection, interface{}) {
		t.Fatal("handler must not run for invalid payload")
	})

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	d.Dispatch(c, []byte(`{"type":"report-user","reason":"`+string(long)+`"}`))

	msg := queued(t, c)
	req.Equal(protocol.TypeError, msg["type"])
	req.Equal("parse_error", msg["code"])
}

func TestDispatch_RateLimitedReply(t *testing.T) {
	req := require.New(t)
	srv := NewServer(DefaultServerConfig(), nil)
	c, _ := pipeConnection(t, "a", 4)
	srv.conns.Add(c)

	NewMessageDispatcher(srv).SendRateLimited(c, 7)

	msg := queued(t, c)
	req.Equal(protocol.TypeRateLimited, msg["type"])
	req.EqualValues(7, msg["retry_after"])
}
