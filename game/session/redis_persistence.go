package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wricardo/charles/game/engine"
	"github.com/wricardo/charles/game/service"
)

const (
	defaultRedisPrefix  = "charles"
	defaultRedisTimeout = 2 * time.Second
)

// RedisPersistence implements SessionPersistence on a Redis server. Each
// session is one string key holding the JSON document; a set indexes the
// IDs.
type RedisPersistence struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	codec   codec
}

// RedisOption configures a RedisPersistence
type RedisOption func(*RedisPersistence)

// WithRedisPrefix sets the key prefix
func WithRedisPrefix(prefix string) RedisOption {
	return func(rp *RedisPersistence) { rp.prefix = prefix }
}

// WithRedisTTL expires sessions that have not been saved for ttl. Zero keeps
// them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(rp *RedisPersistence) { rp.ttl = ttl }
}

// WithRedisSimulationOptions configures the simulations of loaded sessions
func WithRedisSimulationOptions(opts ...engine.Option) RedisOption {
	return func(rp *RedisPersistence) { rp.codec.simOpts = opts }
}

// NewRedisPersistence wraps client. It pings the server once so a bad
// address fails at startup.
func NewRedisPersistence(client *redis.Client, opts ...RedisOption) (*RedisPersistence, error) {
	rp := &RedisPersistence{
		client:  client,
		prefix:  defaultRedisPrefix,
		timeout: defaultRedisTimeout,
	}
	for _, opt := range opts {
		opt(rp)
	}

	ctx, cancel := rp.ctx()
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rp, nil
}

func (rp *RedisPersistence) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), rp.timeout)
}

func (rp *RedisPersistence) key(id string) string {
	return rp.prefix + ":session:" + storageID(id)
}

func (rp *RedisPersistence) indexKey() string {
	return rp.prefix + ":sessions"
}

// Save stores the session document and adds its ID to the index
func (rp *RedisPersistence) Save(session *service.Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}
	if err := validID(session.ID); err != nil {
		return err
	}
	data, err := rp.codec.marshal(session)
	if err != nil {
		return err
	}

	ctx, cancel := rp.ctx()
	defer cancel()

	_, err = rp.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, rp.key(session.ID), data, rp.ttl)
		pipe.SAdd(ctx, rp.indexKey(), storageID(session.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", session.ID, err)
	}
	return nil
}

// Load fetches and restores a session
func (rp *RedisPersistence) Load(id string) (*service.Session, error) {
	if err := validID(id); err != nil {
		return nil, err
	}
	ctx, cancel := rp.ctx()
	defer cancel()

	data, err := rp.client.Get(ctx, rp.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load %s: %w", id, err)
	}
	return rp.codec.unmarshal(data)
}

// Delete removes the session document and its index entry
func (rp *RedisPersistence) Delete(id string) error {
	if err := validID(id); err != nil {
		return err
	}
	ctx, cancel := rp.ctx()
	defer cancel()

	var removed *redis.IntCmd
	_, err := rp.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, rp.key(id))
		pipe.SRem(ctx, rp.indexKey(), storageID(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", id, err)
	}
	if removed.Val() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListAll returns the indexed IDs whose documents still exist. IDs whose
// keys expired are dropped from the index.
func (rp *RedisPersistence) ListAll() ([]string, error) {
	ctx, cancel := rp.ctx()
	defer cancel()

	ids, err := rp.client.SMembers(ctx, rp.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list: %w", err)
	}

	live := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := rp.client.Exists(ctx, rp.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis list: %w", err)
		}
		if n == 0 {
			rp.client.SRem(ctx, rp.indexKey(), id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// Exists checks whether the session document exists
func (rp *RedisPersistence) Exists(id string) bool {
	if validID(id) != nil {
		return false
	}
	ctx, cancel := rp.ctx()
	defer cancel()
	n, err := rp.client.Exists(ctx, rp.key(id)).Result()
	return err == nil && n > 0
}
