package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/drew-quote-core/server/internal/agent/model"
	errx "github.com/drew-quote-core/server/internal/core/error"
	logx "github.com/drew-quote-core/server/pkg/logger"
)

// LookupCache is a Redis read-through cache in front of the knowledge base and checklist store.
// Redis failures degrade to the underlying store; misses are never cached.
type LookupCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewLookupCache(rdb redis.Cmdable, ttl time.Duration) *LookupCache {
	return &LookupCache{rdb: rdb, ttl: ttl}
}

func (c *LookupCache) searchKey(query, trade string) string {
	return fmt.Sprintf("drew:knowledge:search:%s:%s", strings.ToLower(trade), strings.Join(strings.Fields(strings.ToLower(query)), " "))
}

func (c *LookupCache) jobTypeKey(jobType string) string {
	return fmt.Sprintf("drew:knowledge:job:%s", jobType)
}

func (c *LookupCache) checklistKey(jobType string) string {
	return fmt.Sprintf("drew:checklist:%s", jobType)
}

// get decodes a cached value into dst. It reports false on a miss or any Redis error.
func (c *LookupCache) get(ctx context.Context, key string, dst any) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Warn().Err(errx.WrapRedis(err)).Str("key", key).Msg("lookup cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("dropping undecodable cache entry")
		_ = c.rdb.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *LookupCache) set(ctx context.Context, key string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to marshal cache entry")
		return
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		logx.Warn().Err(errx.WrapRedis(err)).Str("key", key).Msg("lookup cache write failed")
	}
}

// Knowledge decorates kb with the cache.
func (c *LookupCache) Knowledge(kb model.KnowledgeBase) model.KnowledgeBase {
	return &cachedKnowledge{cache: c, next: kb}
}

// Checklists decorates store with the cache.
func (c *LookupCache) Checklists(store model.ChecklistStore) model.ChecklistStore {
	return &cachedChecklists{cache: c, next: store}
}

type cachedKnowledge struct {
	cache *LookupCache
	next  model.KnowledgeBase
}

func (k *cachedKnowledge) Search(ctx context.Context, query, trade string) (*model.KnowledgeDoc, error) {
	return k.through(ctx, k.cache.searchKey(query, trade), func() (*model.KnowledgeDoc, error) {
		return k.next.Search(ctx, query, trade)
	})
}

func (k *cachedKnowledge) GetByJobType(ctx context.Context, jobType string) (*model.KnowledgeDoc, error) {
	return k.through(ctx, k.cache.jobTypeKey(jobType), func() (*model.KnowledgeDoc, error) {
		return k.next.GetByJobType(ctx, jobType)
	})
}

func (k *cachedKnowledge) through(ctx context.Context, key string, load func() (*model.KnowledgeDoc, error)) (*model.KnowledgeDoc, error) {
	var doc model.KnowledgeDoc
	if k.cache.get(ctx, key, &doc) {
		logx.Debug().Str("key", key).Msg("lookup cache hit")
		return &doc, nil
	}
	found, err := load()
	if err != nil || found == nil {
		return found, err
	}
	k.cache.set(ctx, key, found)
	return found, nil
}

type cachedChecklists struct {
	cache *LookupCache
	next  model.ChecklistStore
}

func (s *cachedChecklists) GetChecklist(ctx context.Context, jobType string) ([]model.ChecklistItem, error) {
	key := s.cache.checklistKey(jobType)
	var items []model.ChecklistItem
	if s.cache.get(ctx, key, &items) && len(items) > 0 {
		return items, nil
	}
	items, err := s.next.GetChecklist(ctx, jobType)
	if err != nil || len(items) == 0 {
		return items, err
	}
	s.cache.set(ctx, key, items)
	return items, nil
}
