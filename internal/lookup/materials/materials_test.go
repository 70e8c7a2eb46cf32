package materials

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drew-quote-core/server/internal/agent/model"
	errx "github.com/drew-quote-core/server/internal/core/error"
)

var productColumns = []string{"id", "name", "price", "unit", "category"}

func TestMergePricebookWins(t *testing.T) {
	pricebook := []model.PricedProduct{{ID: "a", Name: "A (mine)", Price: 5}}
	catalog := []model.PricedProduct{
		{ID: "a", Name: "A", Price: 9},
		{ID: "b", Name: "B", Price: 3},
		{ID: "b", Name: "B again", Price: 4},
		{ID: "", Name: "no id"},
	}

	got := Merge(pricebook, catalog, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "A (mine)", got[0].Name)
	assert.Equal(t, model.SourcePricebook, got[0].Source)
	assert.Equal(t, "B", got[1].Name)
	assert.Equal(t, model.SourceCatalog, got[1].Source)
}

func TestMergeLimit(t *testing.T) {
	catalog := []model.PricedProduct{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	assert.Len(t, Merge(nil, catalog, 2), 2)
}

func TestPostgresSearcherMergesSources(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM pricebook_items").
		WithArgs("u1", []string{"%breaker%"}, []string{"electrical"}, 5).
		WillReturnRows(pgxmock.NewRows(productColumns).
			AddRow("brk-20", "20A Breaker", 7.25, "ea", "electrical"))
	mock.ExpectQuery("FROM catalog_products").
		WithArgs([]string{"%breaker%"}, []string{"electrical"}, 5).
		WillReturnRows(pgxmock.NewRows(productColumns).
			AddRow("brk-20", "20A Single Pole Breaker", 9.98, "ea", "electrical").
			AddRow("brk-30", "30A Single Pole Breaker", 10.50, "ea", "electrical"))

	s := NewPostgresSearcher(mock)
	got, err := s.Search(context.Background(), model.MaterialQuery{
		Terms:      []string{"breaker"},
		UserID:     "u1",
		Categories: []string{"electrical"},
		Limit:      5,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 7.25, got[0].Price)
	assert.Equal(t, model.SourcePricebook, got[0].Source)
	assert.Equal(t, "brk-30", got[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSearcherCatalogOnlyWithoutUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM catalog_products").
		WithArgs([]string{"%50\\%%"}, []string{}, defaultLimit).
		WillReturnRows(pgxmock.NewRows(productColumns))

	got, err := NewPostgresSearcher(mock).Search(context.Background(), model.MaterialQuery{Terms: []string{" 50% "}})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSearcherNoTermsSkipsQueries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	got, err := NewPostgresSearcher(mock).Search(context.Background(), model.MaterialQuery{Terms: []string{""}})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSearcherWrapsErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM catalog_products").WillReturnError(errors.New("connection reset"))

	_, err = NewPostgresSearcher(mock).Search(context.Background(), model.MaterialQuery{Terms: []string{"wire"}})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
}
