package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	errorspkg "github.com/sweetpotato0/finsight/errors"
	"github.com/sweetpotato0/finsight/parser"
)

// RedisCache implements assistant.AnswerCache using Redis.
type RedisCache struct {
	client *redis.Client
	prefix string // Key prefix for namespacing
	ttl    time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string        // Redis server address (e.g., "localhost:6379")
	Password string        // Redis password (if any)
	DB       int           // Redis database number
	Prefix   string        // Key prefix for namespacing
	TTL      time.Duration // Time-to-live for cached answers
}

// NewRedisCache creates a new Redis-backed answer cache
func NewRedisCache(config *RedisConfig) *RedisCache {
	if config == nil {
		config = &RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "finsight:answer:",
			TTL:    15 * time.Minute,
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisCache{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

func (c *RedisCache) key(userID, question string) string {
	sum := sha256.Sum256([]byte(question))
	return fmt.Sprintf("%s%s:%s", c.prefix, userID, hex.EncodeToString(sum[:]))
}

// Get returns the cached answer, or errors.ErrNotFound on a miss.
func (c *RedisCache) Get(ctx context.Context, userID, question string) (*parser.Answer, error) {
	data, err := c.client.Get(ctx, c.key(userID, question)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errorspkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached answer: %w", err)
	}

	var answer parser.Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached answer: %w", err)
	}
	return &answer, nil
}

// Set stores an answer under the user and question key.
func (c *RedisCache) Set(ctx context.Context, userID, question string, answer *parser.Answer) error {
	if answer == nil {
		return fmt.Errorf("answer cannot be nil")
	}

	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}

	if err := c.client.Set(ctx, c.key(userID, question), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache answer: %w", err)
	}
	return nil
}

// Close releases the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
