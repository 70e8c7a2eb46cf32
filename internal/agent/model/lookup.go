package model

import "context"

// KnowledgeBase resolves trade knowledge documents.
// Both methods return (nil, nil) on a miss.
type KnowledgeBase interface {
	// Search finds the best-matching document for a free-text query, optionally limited to a trade.
	Search(ctx context.Context, query, trade string) (*KnowledgeDoc, error)

	// GetByJobType looks a document up by its canonical job-type key.
	GetByJobType(ctx context.Context, jobType string) (*KnowledgeDoc, error)
}

// ChecklistStore returns the ordered materials checklist for a job type, or nil when none exists.
type ChecklistStore interface {
	GetChecklist(ctx context.Context, jobType string) ([]ChecklistItem, error)
}

// MaterialQuery parameterises a material search.
type MaterialQuery struct {
	Terms []string
	// UserID selects the private price list; empty searches the shared catalog only.
	UserID string
	// Categories limits results to these catalog categories; empty means no filter.
	Categories []string
	Limit      int
}

// MaterialSearcher returns priced candidates, private price list first, deduplicated by id.
type MaterialSearcher interface {
	Search(ctx context.Context, q MaterialQuery) ([]PricedProduct, error)
}

// Lookups bundles the read-only collaborators used by the router and the tools.
type Lookups struct {
	Knowledge  KnowledgeBase
	Checklists ChecklistStore
	Materials  MaterialSearcher
}
