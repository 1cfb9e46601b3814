package reconcile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/beer-ratings-crawler/internal/catalog"
	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
)

type MockCountStore struct {
	mock.Mock
}

func (m *MockCountStore) SetCounts(ref entity.Ref, c Counts) error {
	args := m.Called(ref, c)
	return args.Error(0)
}

func TestReconcileOverwritesDrift(t *testing.T) {
	t.Parallel()

	// Arrange
	store := new(MockCountStore)
	ref := entity.NewRef(entity.KindBeer, "1", "2")
	store.On("SetCounts", ref, Counts{Ratings: 40, Reviews: 10}).Return(nil).Once()
	r := New(store, nil)

	// Act
	corrected, err := r.Reconcile(ref, Counts{Ratings: 42, Reviews: 10}, Counts{Ratings: 40, Reviews: 10})

	// Assert
	require.NoError(t, err)
	assert.True(t, corrected)
	store.AssertExpectations(t)
}

func TestReconcileLeavesMatchingCounts(t *testing.T) {
	t.Parallel()

	store := new(MockCountStore)
	r := New(store, nil)

	corrected, err := r.Reconcile(entity.NewRef(entity.KindBeer, "1", "2"), Counts{3, 1}, Counts{3, 1})

	require.NoError(t, err)
	assert.False(t, corrected)
	store.AssertNotCalled(t, "SetCounts", mock.Anything, mock.Anything)
}

func TestReconcileReviewDriftAlone(t *testing.T) {
	t.Parallel()

	store := new(MockCountStore)
	store.On("SetCounts", mock.Anything, Counts{Ratings: 3, Reviews: 2}).Return(nil)

	corrected, err := New(store, nil).Reconcile(entity.NewRef(entity.KindBeer, "1", "2"), Counts{3, 1}, Counts{3, 2})

	require.NoError(t, err)
	assert.True(t, corrected)
}

func TestReconcileSurfacesStoreFailure(t *testing.T) {
	t.Parallel()

	store := new(MockCountStore)
	store.On("SetCounts", mock.Anything, mock.Anything).Return(errors.New("boom"))

	_, err := New(store, nil).Reconcile(entity.NewRef(entity.KindBeer, "1", "2"), Counts{1, 0}, Counts{0, 0})

	require.Error(t, err)
}

func TestCatalogStore(t *testing.T) {
	t.Parallel()

	// Arrange
	tbl, err := catalog.Open(t.TempDir(), catalog.Beers)
	require.NoError(t, err)
	tbl.Upsert(catalog.Row{"brewery_id": "1", "beer_id": "2", "nbr_ratings": "42", "nbr_reviews": "7"})
	r := New(CatalogStore{Table: tbl}, nil)

	// Act
	corrected, err := r.Reconcile(entity.NewRef(entity.KindBeer, "1", "2"), Counts{42, 7}, Counts{40, 7})

	// Assert
	require.NoError(t, err)
	assert.True(t, corrected)
	row, ok := tbl.Get("1", "2")
	require.True(t, ok)
	assert.Equal(t, "40", row["nbr_ratings"])
	assert.Equal(t, "7", row["nbr_reviews"])

	err = CatalogStore{Table: tbl}.SetCounts(entity.NewRef(entity.KindBeer, "9", "9"), Counts{})
	require.Error(t, err)
}
