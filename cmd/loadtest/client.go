package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/whisper/pairing/internal/protocol"
)

// client is one simulated participant. Incoming frames are decoded by a
// read loop and handed out on the inbox channel in arrival order.
type client struct {
	conn      net.Conn
	rw        io.ReadWriter // conn, preceded by bytes buffered during the handshake
	id        string
	writeMu   sync.Mutex
	inbox     chan frame
	done      chan struct{}
	closeOnce sync.Once
}

type frame struct {
	Type string
	Raw  json.RawMessage
	At   time.Time
}

// dial connects and waits for session_created.
func dial(ctx context.Context, url string) (*client, time.Duration, error) {
	start := time.Now()
	conn, br, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, 0, fmt.Errorf("dial: %w", err)
	}
	c := &client{conn: conn, rw: conn, inbox: make(chan frame, 64), done: make(chan struct{})}
	if br != nil {
		c.rw = struct {
			io.Reader
			io.Writer
		}{io.MultiReader(br, conn), conn}
	}
	go c.readLoop()

	f, err := c.await(ctx, protocol.TypeSessionCreated)
	if err != nil {
		c.close()
		return nil, 0, err
	}
	var created protocol.SessionCreatedMsg
	if err := json.Unmarshal(f.Raw, &created); err != nil {
		c.close()
		return nil, 0, fmt.Errorf("decode session_created: %w", err)
	}
	c.id = created.SessionID
	return c, time.Since(start), nil
}

// send marshals msg, sets its type and writes it as one text frame.
func (c *client) send(msgType string, msg interface{}) error {
	data, err := protocol.NewServerMessage(msgType, msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// await returns the next frame of the given type, skipping others.
func (c *client) await(ctx context.Context, msgType string) (frame, error) {
	for {
		select {
		case <-ctx.Done():
			return frame{}, fmt.Errorf("waiting for %s: %w", msgType, ctx.Err())
		case f, ok := <-c.inbox:
			if !ok {
				return frame{}, fmt.Errorf("connection closed while waiting for %s", msgType)
			}
			if f.Type == msgType {
				return f, nil
			}
		}
	}
}

func (c *client) readLoop() {
	defer close(c.inbox)
	for {
		data, err := wsutil.ReadServerText(c.rw)
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		select {
		case c.inbox <- frame{Type: env.Type, Raw: data, At: time.Now()}:
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
