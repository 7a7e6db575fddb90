package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/ports/outbound"
)

// HistoryCache is a read-through cache in front of the conversation store.
// Cache failures fall through to the store silently; store failures
// propagate, matching the store's own contract.
type HistoryCache struct {
	store  outbound.ConversationStore
	cache  outbound.CacheRepository
	ttl    time.Duration
	logger *zap.Logger
}

func NewHistoryCache(store outbound.ConversationStore, cache outbound.CacheRepository, ttl time.Duration, logger *zap.Logger) *HistoryCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &HistoryCache{
		store:  store,
		cache:  cache,
		ttl:    ttl,
		logger: logger.Named("history-cache"),
	}
}

func historyKey(sessionID string) string {
	return "history:" + sessionID
}

// cachedHistory records the limit the turns were loaded with, so a request
// with a different limit misses instead of serving a wrong-sized slice.
type cachedHistory struct {
	Limit int                 `json:"limit"`
	Turns []conversation.Turn `json:"turns"`
}

// AppendTurn writes through to the store and invalidates the session's
// cached history.
func (h *HistoryCache) AppendTurn(ctx context.Context, sessionID string, turn conversation.Turn) error {
	if err := h.store.AppendTurn(ctx, sessionID, turn); err != nil {
		return err
	}
	if err := h.cache.Delete(ctx, historyKey(sessionID)); err != nil {
		h.logger.Debug("History invalidation failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil
}

// History serves from cache when possible.
func (h *HistoryCache) History(ctx context.Context, sessionID string, limit int) ([]conversation.Turn, error) {
	key := historyKey(sessionID)

	if data, err := h.cache.Get(ctx, key); err == nil && len(data) > 0 {
		var cached cachedHistory
		if err := json.Unmarshal(data, &cached); err == nil && cached.Limit == limit {
			return cached.Turns, nil
		}
	}

	turns, err := h.store.History(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(cachedHistory{Limit: limit, Turns: turns}); err == nil {
		if err := h.cache.Set(ctx, key, data, int(h.ttl.Seconds())); err != nil {
			h.logger.Debug("History cache fill failed", zap.String("key", key), zap.Error(err))
		}
	}
	return turns, nil
}
