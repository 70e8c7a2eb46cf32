// Package materials searches priced products across a user's private price list and the shared catalog.
package materials

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/drew-quote-core/server/internal/agent/model"
	errx "github.com/drew-quote-core/server/internal/core/error"
	logx "github.com/drew-quote-core/server/pkg/logger"
)

const defaultLimit = 10

// Querier is the subset of pgxpool.Pool the searcher needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const pricebookQuery = `
SELECT id, name, price::float8, COALESCE(unit, ''), COALESCE(category, '')
FROM pricebook_items
WHERE user_id = $1
  AND name ILIKE ANY($2)
  AND (cardinality($3::text[]) = 0 OR category = ANY($3))
ORDER BY name
LIMIT $4`

const catalogQuery = `
SELECT id, name, price::float8, COALESCE(unit, ''), COALESCE(category, '')
FROM catalog_products
WHERE name ILIKE ANY($1)
  AND (cardinality($2::text[]) = 0 OR category = ANY($2))
ORDER BY name
LIMIT $3`

// PostgresSearcher queries pricebook_items and catalog_products.
type PostgresSearcher struct {
	db Querier
}

func NewPostgresSearcher(db Querier) *PostgresSearcher {
	return &PostgresSearcher{db: db}
}

func (s *PostgresSearcher) Search(ctx context.Context, q model.MaterialQuery) ([]model.PricedProduct, error) {
	patterns := likePatterns(q.Terms)
	if len(patterns) == 0 {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	categories := q.Categories
	if categories == nil {
		categories = []string{}
	}

	var pricebook []model.PricedProduct
	if q.UserID != "" {
		rows, err := s.db.Query(ctx, pricebookQuery, q.UserID, patterns, categories, limit)
		if err != nil {
			logx.Error().Err(err).Str("user_id", q.UserID).Msg("pricebook query failed")
			return nil, errx.WrapPostgres(err)
		}
		if pricebook, err = scanProducts(rows, model.SourcePricebook); err != nil {
			return nil, errx.WrapPostgres(err)
		}
	}

	rows, err := s.db.Query(ctx, catalogQuery, patterns, categories, limit)
	if err != nil {
		logx.Error().Err(err).Strs("terms", q.Terms).Msg("catalog query failed")
		return nil, errx.WrapPostgres(err)
	}
	catalog, err := scanProducts(rows, model.SourceCatalog)
	if err != nil {
		return nil, errx.WrapPostgres(err)
	}

	return Merge(pricebook, catalog, limit), nil
}

func scanProducts(rows pgx.Rows, source string) ([]model.PricedProduct, error) {
	defer rows.Close()
	var out []model.PricedProduct
	for rows.Next() {
		p := model.PricedProduct{Source: source}
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Unit, &p.Category); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func likePatterns(terms []string) []string {
	patterns := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		t = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(t)
		patterns = append(patterns, "%"+t+"%")
	}
	return patterns
}

// Merge combines private price list and catalog results. Ids are unique in the output and the
// price list entry wins when both sources carry the same id. A non-positive limit keeps everything.
func Merge(pricebook, catalog []model.PricedProduct, limit int) []model.PricedProduct {
	seen := make(map[string]bool, len(pricebook)+len(catalog))
	out := make([]model.PricedProduct, 0, len(pricebook)+len(catalog))
	add := func(p model.PricedProduct, source string) {
		if p.ID == "" || seen[p.ID] {
			return
		}
		seen[p.ID] = true
		p.Source = source
		out = append(out, p)
	}
	for _, p := range pricebook {
		add(p, model.SourcePricebook)
	}
	for _, p := range catalog {
		add(p, model.SourceCatalog)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ model.MaterialSearcher = (*PostgresSearcher)(nil)
