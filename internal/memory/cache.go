// Package memory implements the ephemeral conversation state on Redis.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fintalk/fintalk/internal/common"
	"github.com/fintalk/fintalk/internal/model"
)

// Key prefixes. Everything this package writes lives under fintalk: so a
// shared Redis can be swept without touching other tenants.
const (
	pendingPrefix      = "fintalk:pending:"
	preferencesPrefix  = "fintalk:prefs:"
	conversationPrefix = "fintalk:conversa:"
)

// TTLs per key class. Pending actions are short-lived on purpose: a stale
// draft must never be confirmed by an unrelated "yes" minutes later.
const (
	PendingTTL      = 5 * time.Minute
	PreferencesTTL  = 30 * 24 * time.Hour
	ConversationTTL = 24 * time.Hour
)

// maxHistoryExchanges caps the rolling conversation window.
const maxHistoryExchanges = 10

// RedisCache implements the service.Cache interface on Redis.
type RedisCache struct {
	client *redis.Client
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg Config) (*RedisCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: redis address", common.ErrMissingConfig)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client. Used by tests.
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetPendingAction returns the conversation's pending action, or ErrNotFound
// when none is staged or the TTL has lapsed.
func (c *RedisCache) GetPendingAction(ctx context.Context, conversation string) (*model.PendingAction, error) {
	data, err := c.client.Get(ctx, pendingPrefix+conversation).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: no pending action", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending action: %w", err)
	}

	var action model.PendingAction
	if err := json.Unmarshal(data, &action); err != nil {
		return nil, fmt.Errorf("corrupt pending action: %w", err)
	}
	return &action, nil
}

// SavePendingAction stages an action, replacing any existing one and
// restarting the TTL.
func (c *RedisCache) SavePendingAction(ctx context.Context, conversation string, action *model.PendingAction) error {
	if action == nil {
		return errors.New("pending action cannot be nil")
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal pending action: %w", err)
	}

	if err := c.client.Set(ctx, pendingPrefix+conversation, data, PendingTTL).Err(); err != nil {
		return fmt.Errorf("failed to save pending action: %w", err)
	}
	return nil
}

// ClearPendingAction removes the staged action. Clearing when none exists is
// not an error.
func (c *RedisCache) ClearPendingAction(ctx context.Context, conversation string) error {
	if err := c.client.Del(ctx, pendingPrefix+conversation).Err(); err != nil {
		return fmt.Errorf("failed to clear pending action: %w", err)
	}
	return nil
}

// GetPreferences returns the user's saved preferences, falling back to
// defaults when none exist.
func (c *RedisCache) GetPreferences(ctx context.Context, userID string) (model.Preferences, error) {
	data, err := c.client.Get(ctx, preferencesPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DefaultPreferences(), nil
	}
	if err != nil {
		return model.DefaultPreferences(), fmt.Errorf("failed to get preferences: %w", err)
	}

	var prefs model.Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return model.DefaultPreferences(), fmt.Errorf("corrupt preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences stores the user's preferences and refreshes their TTL.
func (c *RedisCache) SavePreferences(ctx context.Context, userID string, prefs model.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	if err := c.client.Set(ctx, preferencesPrefix+userID, data, PreferencesTTL).Err(); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// AppendExchange pushes one user/assistant pair onto the conversation window,
// trimming to the newest entries and refreshing the TTL.
func (c *RedisCache) AppendExchange(ctx context.Context, conversation, userMessage, reply string) error {
	exchange := model.Exchange{
		Timestamp: time.Now().UTC(),
		User:      userMessage,
		Assistant: reply,
	}

	data, err := json.Marshal(exchange)
	if err != nil {
		return fmt.Errorf("failed to marshal exchange: %w", err)
	}

	key := conversationPrefix + conversation
	pipe := c.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-maxHistoryExchanges), -1)
	pipe.Expire(ctx, key, ConversationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append exchange: %w", err)
	}
	return nil
}

// History returns the conversation window, oldest first.
func (c *RedisCache) History(ctx context.Context, conversation string) ([]model.Exchange, error) {
	items, err := c.client.LRange(ctx, conversationPrefix+conversation, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	exchanges := make([]model.Exchange, 0, len(items))
	for _, item := range items {
		var e model.Exchange
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("corrupt exchange: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	return exchanges, nil
}
