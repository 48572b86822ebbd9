package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Address  string
	Password string
	DB       int
	// Prefix namespaces keys; the full key is prefix:origin:key.
	Prefix string
}

type RedisOption func(*RedisOptions)

func WithAddress(addr string) RedisOption {
	return func(o *RedisOptions) {
		o.Address = addr
	}
}

func WithPassword(pass string) RedisOption {
	return func(o *RedisOptions) {
		o.Password = pass
	}
}

func WithDB(db int) RedisOption {
	return func(o *RedisOptions) {
		o.DB = db
	}
}

func WithPrefix(prefix string) RedisOption {
	return func(o *RedisOptions) {
		o.Prefix = prefix
	}
}

// Redis keeps the token in a shared redis instance so several client
// processes on the same origin see one session.
type Redis struct {
	client *redis.Client
	key    string
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, origin string, opts ...RedisOption) (*Redis, error) {
	if origin == "" {
		return nil, fmt.Errorf("tokenstore: origin is required")
	}
	options := &RedisOptions{
		Address: "localhost:6379",
		Prefix:  "aiticket",
	}
	for _, opt := range opts {
		opt(options)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     options.Address,
		Password: options.Password,
		DB:       options.DB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tokenstore: ping redis: %w", err)
	}

	return NewRedis(client, RedisKey(options.Prefix, origin)), nil
}

// NewRedis wraps an existing client. key is the full redis key.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

// RedisKey builds the key a token for origin is stored under.
func RedisKey(prefix, origin string) string {
	return fmt.Sprintf("%s:%s:%s", prefix, origin, DefaultKey)
}

func (r *Redis) Load(ctx context.Context) (string, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get token: %w", err)
	}
	return val, nil
}

// Save stores the token without expiry; the backend decides validity.
func (r *Redis) Save(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("token must not be empty")
	}
	if err := r.client.Set(ctx, r.key, token, 0).Err(); err != nil {
		return fmt.Errorf("set token: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
