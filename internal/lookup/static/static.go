// Package static serves knowledge documents, checklists and materials from embedded seed data.
// It backs local runs without a database and the end-to-end tests.
package static

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/drew-quote-core/server/internal/agent/model"
	"github.com/drew-quote-core/server/internal/lookup/materials"
)

//go:embed seed.yaml
var seedData []byte

type seed struct {
	Documents  []model.KnowledgeDoc             `yaml:"documents"`
	Checklists map[string][]model.ChecklistItem `yaml:"checklists"`
	Catalog    []model.PricedProduct            `yaml:"catalog"`
	Pricebooks map[string][]model.PricedProduct `yaml:"pricebooks"`
}

// Store implements model.KnowledgeBase, model.ChecklistStore and model.MaterialSearcher.
// It is read-only after construction and safe for concurrent use.
type Store struct {
	docs       []model.KnowledgeDoc
	checklists map[string][]model.ChecklistItem
	catalog    []model.PricedProduct
	pricebooks map[string][]model.PricedProduct
}

// Load returns a Store over the embedded seed data.
func Load() (*Store, error) {
	return Parse(seedData)
}

// Parse decodes seed YAML.
func Parse(data []byte) (*Store, error) {
	var s seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode seed data: %w", err)
	}
	for i, d := range s.Documents {
		if d.JobType == "" {
			return nil, fmt.Errorf("seed document %d has no job_type", i)
		}
	}
	return &Store{
		docs:       s.Documents,
		checklists: s.Checklists,
		catalog:    s.Catalog,
		pricebooks: s.Pricebooks,
	}, nil
}

// Search scores documents by query token overlap. Title and job-type hits weigh more than
// content hits, and only a document with at least one title or job-type hit is returned.
func (s *Store) Search(_ context.Context, query, trade string) (*model.KnowledgeDoc, error) {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	best, bestScore := -1, 0
	for i, d := range s.docs {
		if trade != "" && !strings.EqualFold(d.Trade, trade) {
			continue
		}
		score := 0
		strong := false
		title := tokenSet(d.Title + " " + strings.ReplaceAll(d.JobType, "_", " "))
		content := tokenSet(d.Content)
		for _, t := range tokens {
			switch {
			case title[t]:
				score += 3
				strong = true
			case content[t]:
				score++
			}
		}
		if strong && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return nil, nil
	}
	doc := cloneDoc(s.docs[best])
	return &doc, nil
}

func (s *Store) GetByJobType(_ context.Context, jobType string) (*model.KnowledgeDoc, error) {
	for _, d := range s.docs {
		if d.JobType == jobType {
			doc := cloneDoc(d)
			return &doc, nil
		}
	}
	return nil, nil
}

func (s *Store) GetChecklist(_ context.Context, jobType string) ([]model.ChecklistItem, error) {
	items, ok := s.checklists[jobType]
	if !ok || len(items) == 0 {
		return nil, nil
	}
	out := make([]model.ChecklistItem, len(items))
	for i, it := range items {
		out[i] = it
		out[i].SearchTerms = append([]string(nil), it.SearchTerms...)
	}
	return out, nil
}

// SearchMaterials matches a product when every word of any term appears in its name.
func (s *Store) SearchMaterials(_ context.Context, q model.MaterialQuery) ([]model.PricedProduct, error) {
	terms := make([][]string, 0, len(q.Terms))
	for _, t := range q.Terms {
		if term := tokenize(t); len(term) > 0 {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return nil, nil
	}
	var pricebook []model.PricedProduct
	if q.UserID != "" {
		pricebook = filter(s.pricebooks[q.UserID], terms, q.Categories)
	}
	catalog := filter(s.catalog, terms, q.Categories)
	return materials.Merge(pricebook, catalog, q.Limit), nil
}

// Materials adapts the store to model.MaterialSearcher, whose Search method name
// collides with the knowledge lookup.
func (s *Store) Materials() model.MaterialSearcher {
	return materialSearcher{s}
}

type materialSearcher struct{ s *Store }

func (m materialSearcher) Search(ctx context.Context, q model.MaterialQuery) ([]model.PricedProduct, error) {
	return m.s.SearchMaterials(ctx, q)
}

func filter(products []model.PricedProduct, terms [][]string, categories []string) []model.PricedProduct {
	var out []model.PricedProduct
	for _, p := range products {
		if len(categories) > 0 && !containsFold(categories, p.Category) {
			continue
		}
		name := tokenSet(p.Name)
		for _, term := range terms {
			if all(name, term) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func all(set map[string]bool, term []string) bool {
	for _, w := range term {
		if !set[w] {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "for": true,
	"to": true, "of": true, "in": true, "on": true, "i": true, "need": true,
	"quote": true, "job": true, "install": true, "installation": true,
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(",.;:/()", r)
	})
}

func tokenize(s string) []string {
	var out []string
	for _, w := range words(s) {
		if !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range words(s) {
		set[w] = true
	}
	return set
}

func cloneDoc(d model.KnowledgeDoc) model.KnowledgeDoc {
	if d.ScopingQuestions != nil {
		qs := make([]model.ScopingQuestion, len(d.ScopingQuestions))
		for i, q := range d.ScopingQuestions {
			qs[i] = q
			qs[i].QuickReplies = append([]string(nil), q.QuickReplies...)
		}
		d.ScopingQuestions = qs
	}
	return d
}

var (
	_ model.KnowledgeBase    = (*Store)(nil)
	_ model.ChecklistStore   = (*Store)(nil)
	_ model.MaterialSearcher = materialSearcher{}
)
