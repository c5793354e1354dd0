package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fintalk/fintalk/internal/llm"
	"github.com/fintalk/fintalk/internal/memory"
	"github.com/fintalk/fintalk/internal/service"
	"github.com/fintalk/fintalk/internal/storage"
)

// initStorage opens the database and brings the schema up to date.
func initStorage(ctx context.Context) (service.Storage, error) {
	store, err := storage.NewSQLiteStorage(databasePath())
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func databasePath() string {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/fintalk/fintalk.db"
	}
	return expandPath(dbPath)
}

// expandPath resolves ~ and environment variables in a configured path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// initCache connects to Redis for pending actions, preferences and history.
func initCache(ctx context.Context) (*memory.RedisCache, error) {
	addr := viper.GetString("redis.addr")
	if addr == "" {
		addr = "localhost:6379"
	}

	return memory.NewRedisCache(ctx, memory.Config{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})
}

// initLLM builds the model client from config, with retries on transient
// failures.
func initLLM() (llm.Client, error) {
	client, err := llm.NewClient(llm.Config{
		Provider:          viper.GetString("llm.provider"),
		APIKey:            viper.GetString("llm.api_key"),
		Model:             viper.GetString("llm.model"),
		BaseURL:           viper.GetString("llm.base_url"),
		Temperature:       viper.GetFloat64("llm.temperature"),
		MaxTokens:         viper.GetInt("llm.max_tokens"),
		RequestsPerMinute: viper.GetInt("llm.requests_per_minute"),
	})
	if err != nil {
		return nil, err
	}

	return llm.WithRetries(client, service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}), nil
}
