package session

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/pearlyx/internal/config"
)

func New(cfg config.SessionConfig, log *zap.Logger) (Store, error) {
	switch strings.ToLower(cfg.Store) {
	case "", "memory":
		return NewMemory(cfg.CleanupInterval.Duration, log), nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("session store redis requires redis_url")
		}
		return NewRedis(cfg.RedisURL, log)
	default:
		return nil, fmt.Errorf("unsupported session store: %s", cfg.Store)
	}
}
