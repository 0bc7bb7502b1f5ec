package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/chatflow/pkg/domain"
)

// DefaultPrefix namespaces all keys written by this package.
const DefaultPrefix = "chatflow:session:"

// reservedPrefix marks keys under the store prefix that hold bookkeeping
// rather than sessions. Session IDs may not start with it.
const reservedPrefix = "__"

// ErrReservedID is returned when saving a session whose ID would collide with
// the store's own keys.
var ErrReservedID = errors.New("session id uses the reserved \"" + reservedPrefix + "\" prefix")

// Store implements ports.SessionStore using Redis.
// Sessions are JSON documents; a sorted set indexes them by expiry.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for sessions.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) indexKey() string {
	return s.prefix + reservedPrefix + "index"
}

// LockPrefix is the key prefix a Locker sharing this store's namespace should use.
func (s *Store) LockPrefix() string {
	return s.prefix + reservedPrefix
}

func reserved(sessionID string) bool {
	return strings.HasPrefix(sessionID, reservedPrefix)
}

// farFuture scores sessions without TTL (2100-01-01).
const farFuture = 4102444800

// Save persists the session. The version check and the write run in a
// WATCH/MULTI transaction so concurrent writers cannot both win.
func (s *Store) Save(ctx context.Context, session *domain.Session) error {
	if reserved(session.ID) {
		return fmt.Errorf("%w: %q", ErrReservedID, session.ID)
	}
	key := s.key(session.ID)
	next := *session
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	txf := func(tx *backend.Tx) error {
		stored, err := s.storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored != session.Version {
			return domain.ErrVersionConflict
		}

		score := float64(time.Now().Add(s.ttl).Unix())
		if s.ttl == 0 {
			score = farFuture
		}

		_, err = tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			// 0 means no expiration.
			pipe.Set(ctx, key, data, s.ttl)
			pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: session.ID})
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, backend.TxFailedErr) {
		return domain.ErrVersionConflict
	}
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return err
		}
		return fmt.Errorf("failed to save to redis: %w", err)
	}

	session.Version = next.Version
	session.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *Store) storedVersion(ctx context.Context, tx *backend.Tx, key string) (int64, error) {
	val, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, backend.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read current version: %w", err)
	}
	var current struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(val, &current); err != nil {
		return 0, fmt.Errorf("failed to unmarshal stored session: %w", err)
	}
	return current.Version, nil
}

// Load retrieves the session from Redis.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	if reserved(sessionID) {
		return nil, domain.ErrSessionNotFound
	}
	val, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Variables == nil {
		session.Variables = make(map[string]any)
	}
	return &session, nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if reserved(sessionID) {
		return nil
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns live sessions from the index, pruning expired members first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())

	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired sessions: %w", err)
	}

	sessions, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
