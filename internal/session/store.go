package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SessionPrefix is the Redis key prefix for all session hashes.
	SessionPrefix = "session:"

	// ServerSetPrefix keys the set of session ids owned by one server.
	ServerSetPrefix = "server-sessions:"

	// SessionTTL is the time-to-live for session keys in Redis.
	SessionTTL = 1 * time.Hour
)

// Session is one participant's presence record stored in Redis.
type Session struct {
	ID          string `redis:"id"`
	State       string `redis:"state"`      // idle | queued | paired
	PartnerID   string `redis:"partner_id"` // empty unless paired
	Server      string `redis:"server"`     // which WS server instance
	ConnectedAt int64  `redis:"connected_at"`
	LastActive  int64  `redis:"last_active"`
}

// Store manages session records in Redis.
type Store struct {
	client     *redis.Client
	serverName string // identifier for this WS server instance
}

// NewStore creates a new session store connected to Redis.
func NewStore(redisAddr string, serverName string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: redis connection failed: %w", err)
	}

	return NewStoreWithClient(client, serverName), nil
}

// NewStoreWithClient wraps an existing Redis client.
func NewStoreWithClient(client *redis.Client, serverName string) *Store {
	return &Store{client: client, serverName: serverName}
}

// Create stores a new idle session owned by this server.
func (s *Store) Create(ctx context.Context, sessionID string, connectedAt time.Time) error {
	key := SessionPrefix + sessionID
	now := time.Now().Unix()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"id":           sessionID,
		"state":        "idle",
		"partner_id":   "",
		"server":       s.serverName,
		"connected_at": connectedAt.Unix(),
		"last_active":  now,
	})
	pipe.Expire(ctx, key, SessionTTL)
	pipe.SAdd(ctx, ServerSetPrefix+s.serverName, sessionID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("session: create %s: %w", sessionID, err)
	}
	return nil
}

// Get retrieves a session from Redis. Returns nil if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	key := SessionPrefix + sessionID
	var session Session
	if err := s.client.HGetAll(ctx, key).Scan(&session); err != nil {
		return nil, fmt.Errorf("session: get %s: %w", sessionID, err)
	}
	if session.ID == "" {
		return nil, nil
	}
	return &session, nil
}

// UpdateState records the participant's pairing state and partner and
// refreshes the TTL.
func (s *Store) UpdateState(ctx context.Context, sessionID, state, partnerID string) error {
	key := SessionPrefix + sessionID
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "state", state, "partner_id", partnerID, "last_active", time.Now().Unix())
	pipe.Expire(ctx, key, SessionTTL)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("session: update %s: %w", sessionID, err)
	}
	return nil
}

// Delete removes a session from Redis.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, SessionPrefix+sessionID)
	pipe.SRem(ctx, ServerSetPrefix+s.serverName, sessionID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("session: delete %s: %w", sessionID, err)
	}
	return nil
}

// Purge deletes every session this server owns. It is used at startup to
// clear records left behind by a crashed predecessor with the same name.
func (s *Store) Purge(ctx context.Context) (int, error) {
	setKey := ServerSetPrefix + s.serverName
	ids, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, fmt.Errorf("session: list %s: %w", setKey, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, SessionPrefix+id)
	}
	keys = append(keys, setKey)
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("session: purge %s: %w", setKey, err)
	}
	return len(ids), nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client for use by other packages.
func (s *Store) Client() *redis.Client {
	return s.client
}
