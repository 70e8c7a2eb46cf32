package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drew-quote-core/server/internal/agent/model"
)

type countingKB struct {
	doc   *model.KnowledgeDoc
	calls int
}

func (k *countingKB) Search(context.Context, string, string) (*model.KnowledgeDoc, error) {
	k.calls++
	return k.doc, nil
}

func (k *countingKB) GetByJobType(context.Context, string) (*model.KnowledgeDoc, error) {
	k.calls++
	return k.doc, nil
}

type countingChecklists struct {
	items []model.ChecklistItem
	calls int
}

func (c *countingChecklists) GetChecklist(context.Context, string) ([]model.ChecklistItem, error) {
	c.calls++
	return c.items, nil
}

func newCache(t *testing.T) (*LookupCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewLookupCache(rdb, time.Minute), mr
}

func TestKnowledgeReadThrough(t *testing.T) {
	cache, mr := newCache(t)
	next := &countingKB{doc: &model.KnowledgeDoc{
		Title:            "Electrical Panel Upgrade",
		JobType:          "panel_upgrade",
		ScopingQuestions: []model.ScopingQuestion{{Question: "Size?", QuickReplies: []string{"100A"}, StoreAs: "size"}},
	}}
	kb := cache.Knowledge(next)
	ctx := context.Background()

	first, err := kb.GetByJobType(ctx, "panel_upgrade")
	require.NoError(t, err)
	second, err := kb.GetByJobType(ctx, "panel_upgrade")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("drew:knowledge:job:panel_upgrade"))
	assert.Equal(t, time.Minute, mr.TTL("drew:knowledge:job:panel_upgrade"))
}

func TestKnowledgeSearchKeyNormalizesQuery(t *testing.T) {
	cache, _ := newCache(t)
	next := &countingKB{doc: &model.KnowledgeDoc{JobType: "ev_charger"}}
	kb := cache.Knowledge(next)
	ctx := context.Background()

	_, err := kb.Search(ctx, "EV  Charger", "")
	require.NoError(t, err)
	_, err = kb.Search(ctx, "ev charger", "")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestMissesAreNotCached(t *testing.T) {
	cache, mr := newCache(t)
	next := &countingKB{}
	kb := cache.Knowledge(next)

	for i := 0; i < 2; i++ {
		doc, err := kb.GetByJobType(context.Background(), "roofing")
		require.NoError(t, err)
		assert.Nil(t, doc)
	}
	assert.Equal(t, 2, next.calls)
	assert.Empty(t, mr.Keys())
}

func TestChecklistReadThrough(t *testing.T) {
	cache, _ := newCache(t)
	next := &countingChecklists{items: []model.ChecklistItem{{Category: "panel", Name: "Panel", SearchTerms: []string{"panel"}, Required: true}}}
	store := cache.Checklists(next)

	for i := 0; i < 3; i++ {
		items, err := store.GetChecklist(context.Background(), "panel_upgrade")
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "panel", items[0].Category)
	}
	assert.Equal(t, 1, next.calls)
}

func TestRedisOutageFallsThrough(t *testing.T) {
	cache, mr := newCache(t)
	next := &countingChecklists{items: []model.ChecklistItem{{Category: "panel"}}}
	store := cache.Checklists(next)
	mr.Close()

	items, err := store.GetChecklist(context.Background(), "panel_upgrade")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, next.calls)
}

func TestCorruptEntryIsDropped(t *testing.T) {
	cache, mr := newCache(t)
	require.NoError(t, mr.Set("drew:checklist:panel_upgrade", "{not json"))
	next := &countingChecklists{items: []model.ChecklistItem{{Category: "panel"}}}

	items, err := cache.Checklists(next).GetChecklist(context.Background(), "panel_upgrade")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, next.calls)
}
