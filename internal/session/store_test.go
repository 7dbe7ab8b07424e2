package session

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/whisper/pairing/internal/matching"
)

// setupTestStore connects to the local Redis test database, skipping the test
// when Redis is not running.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return NewStoreWithClient(client, "ws-test")
}

func TestStore_Lifecycle(t *testing.T) {
	req := require.New(t)
	store := setupTestStore(t)
	ctx := context.Background()

	// Given a connected participant
	connectedAt := time.Unix(1_700_000_000, 0)
	req.NoError(store.Create(ctx, "p1", connectedAt))

	// Then the record is idle and owned by this server
	sess, err := store.Get(ctx, "p1")
	req.NoError(err)
	req.NotNil(sess)
	req.Equal("idle", sess.State)
	req.Equal("ws-test", sess.Server)
	req.Equal(connectedAt.Unix(), sess.ConnectedAt)

	ttl, err := store.Client().TTL(ctx, SessionPrefix+"p1").Result()
	req.NoError(err)
	req.Greater(ttl, time.Duration(0))

	// When it is paired
	req.NoError(store.UpdateState(ctx, "p1", "paired", "p2"))
	sess, err = store.Get(ctx, "p1")
	req.NoError(err)
	req.Equal("paired", sess.State)
	req.Equal("p2", sess.PartnerID)

	// When it is deleted the record is gone
	req.NoError(store.Delete(ctx, "p1"))
	sess, err = store.Get(ctx, "p1")
	req.NoError(err)
	req.Nil(sess)
}

func TestStore_Purge(t *testing.T) {
	req := require.New(t)
	store := setupTestStore(t)
	ctx := context.Background()

	req.NoError(store.Create(ctx, "a", time.Now()))
	req.NoError(store.Create(ctx, "b", time.Now()))

	other := NewStoreWithClient(store.Client(), "ws-other")
	req.NoError(other.Create(ctx, "c", time.Now()))

	n, err := store.Purge(ctx)
	req.NoError(err)
	req.Equal(2, n)

	sess, err := store.Get(ctx, "a")
	req.NoError(err)
	req.Nil(sess)

	sess, err = other.Get(ctx, "c")
	req.NoError(err)
	req.NotNil(sess, "sessions of other servers survive")

	n, err = store.Purge(ctx)
	req.NoError(err)
	req.Zero(n)
}

func TestMirror_FollowsLifecycle(t *testing.T) {
	req := require.New(t)
	store := setupTestStore(t)
	ctx := context.Background()

	// Given a pairing service mirrored into Redis
	mirror := NewMirror(store, 64)
	svc := matching.NewService(matching.DefaultConfig(), matching.SenderFunc(func(string, string, any) {}), mirror)

	// When two participants pair and one of them leaves for good
	req.NoError(svc.Connect("a"))
	req.NoError(svc.Connect("b"))
	svc.RequestChat("a", "", nil)
	svc.RequestChat("b", "", nil)
	svc.Tick()
	svc.Leave("a", false)
	req.NoError(svc.Connect("c"))
	svc.Disconnect("c")

	runCtx, cancel := context.WithCancel(ctx)
	cancel()
	mirror.Run(runCtx)

	// Then the mirror shows both idle and the disconnected one gone
	a, err := store.Get(ctx, "a")
	req.NoError(err)
	req.Equal("idle", a.State)
	req.Empty(a.PartnerID)

	b, err := store.Get(ctx, "b")
	req.NoError(err)
	req.Equal("idle", b.State)
	req.Empty(b.PartnerID)

	c, err := store.Get(ctx, "c")
	req.NoError(err)
	req.Nil(c)
	req.Zero(mirror.Dropped())
}

func TestMirror_DropsWhenFull(t *testing.T) {
	req := require.New(t)
	mirror := NewMirror(nil, 1)

	mirror.Observe(matching.Event{Kind: matching.EventConnected, ParticipantID: "a"})
	mirror.Observe(matching.Event{Kind: matching.EventTicked})
	mirror.Observe(matching.Event{Kind: matching.EventRelayed, ParticipantID: "a"})
	mirror.Observe(matching.Event{Kind: matching.EventQueued, ParticipantID: "a"})

	req.EqualValues(1, mirror.Dropped(), "only lifecycle events are buffered")
}
