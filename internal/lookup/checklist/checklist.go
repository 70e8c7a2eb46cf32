// Package checklist loads per-job-type materials checklists from Postgres.
package checklist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/drew-quote-core/server/internal/agent/model"
	errx "github.com/drew-quote-core/server/internal/core/error"
	logx "github.com/drew-quote-core/server/pkg/logger"
)

type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const checklistQuery = `
SELECT category, name, search_terms, default_qty::float8, COALESCE(unit, ''), required, COALESCE(notes, '')
FROM trade_checklists
WHERE job_type = $1
ORDER BY position`

// Store implements model.ChecklistStore over the trade_checklists table.
type Store struct {
	db Querier
}

func NewStore(db Querier) *Store {
	return &Store{db: db}
}

func (s *Store) GetChecklist(ctx context.Context, jobType string) ([]model.ChecklistItem, error) {
	rows, err := s.db.Query(ctx, checklistQuery, jobType)
	if err != nil {
		logx.Error().Err(err).Str("job_type", jobType).Msg("checklist query failed")
		return nil, errx.WrapPostgres(err)
	}
	defer rows.Close()

	var items []model.ChecklistItem
	for rows.Next() {
		var it model.ChecklistItem
		if err := rows.Scan(&it.Category, &it.Name, &it.SearchTerms, &it.DefaultQty, &it.Unit, &it.Required, &it.Notes); err != nil {
			return nil, errx.WrapPostgres(fmt.Errorf("scan checklist item: %w", err))
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapPostgres(err)
	}
	return items, nil
}

var _ model.ChecklistStore = (*Store)(nil)
