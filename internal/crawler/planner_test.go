package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
)

type mapStore struct {
	mu      sync.Mutex
	pages   map[string][]byte
	cleared int
	saveErr error
}

func newMapStore() *mapStore {
	return &mapStore{pages: make(map[string][]byte)}
}

func storeKey(ref entity.Ref, offset int) string {
	return fmt.Sprintf("%s#%d", ref, offset)
}

func (s *mapStore) Has(ref entity.Ref, offset int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages[storeKey(ref, offset)]) > 0, nil
}

func (s *mapStore) Save(_ context.Context, ref entity.Ref, offset int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.pages[storeKey(ref, offset)] = append([]byte(nil), body...)
	return nil
}

func (s *mapStore) Load(ref entity.Ref, offset int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.pages[storeKey(ref, offset)]
	if !ok {
		return nil, errors.New("not found")
	}
	return body, nil
}

func (s *mapStore) Clear(ref entity.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := ref.String() + "#"
	for k := range s.pages {
		if strings.HasPrefix(k, prefix) {
			delete(s.pages, k)
		}
	}
	s.cleared++
	return nil
}

// countLayout reads "count=N" from page bodies and appends ?start=N to seeds.
type countLayout struct{}

func (countLayout) DeclaredCount(_ entity.Kind, page []byte) (int, error) {
	body := string(page)
	idx := strings.Index(body, "count=")
	if idx < 0 {
		return 0, ErrDeclaredCountMissing
	}
	n, err := strconv.Atoi(strings.Fields(body[idx+len("count="):])[0])
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrDeclaredCountMissing, err)
	}
	return n, nil
}

func (countLayout) PageURL(_ entity.Kind, seedURL string, offset int) string {
	if offset == 0 {
		return seedURL
	}
	return fmt.Sprintf("%s?start=%d", seedURL, offset)
}

type countingFetcher struct {
	mu    sync.Mutex
	urls  []string
	first string
	fail  map[string]error
}

func (f *countingFetcher) Fetch(_ context.Context, url string) (Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	if err := f.fail[url]; err != nil {
		return Response{}, err
	}
	body := "page " + url
	if !strings.Contains(url, "?start=") {
		body = f.first
	}
	return Response{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

func TestOffsets(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		n    int
		step int
		want []int
	}{
		{"declared 237 step 50", 237, 50, []int{0, 50, 100, 150, 200}},
		{"exact multiple", 100, 50, []int{0, 50}},
		{"one past multiple", 101, 50, []int{0, 50, 100}},
		{"single item", 1, 25, []int{0}},
		{"zero items", 0, 25, []int{0}},
		{"negative", -3, 25, []int{0}},
		{"invalid step", 10, 0, []int{0}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Offsets(tc.n, tc.step))
		})
	}
}

func TestPlanner_PlanAndFetch(t *testing.T) {
	t.Parallel()

	ref := entity.NewRef(entity.KindStyle, "128")
	seed := "https://example.com/beer/style/128/"

	t.Run("fetches every continuation page in ascending order", func(t *testing.T) {
		t.Parallel()
		// Arrange
		store := newMapStore()
		fetcher := &countingFetcher{first: "<p>1 to 50 out of count=237 beers</p>"}
		planner := NewPlanner(fetcher, store, countLayout{}, nil, false)

		// Act
		res, err := planner.PlanAndFetch(context.Background(), ref, seed, 50)

		// Assert
		require.NoError(t, err)
		require.Equal(t, 237, res.Declared)
		require.False(t, res.NeedsReconcile)
		require.Equal(t, []int{0, 50, 100, 150, 200}, res.Offsets)
		require.Equal(t, 5, res.Fetched)
		require.Equal(t, []string{
			seed,
			seed + "?start=50",
			seed + "?start=100",
			seed + "?start=150",
			seed + "?start=200",
		}, fetcher.urls)
		for _, off := range res.Offsets {
			ok, err := store.Has(ref, off)
			require.NoError(t, err)
			require.True(t, ok, "offset %d", off)
		}
	})

	t.Run("second run issues no fetches", func(t *testing.T) {
		t.Parallel()
		store := newMapStore()
		first := &countingFetcher{first: "count=237"}
		_, err := NewPlanner(first, store, countLayout{}, nil, false).PlanAndFetch(context.Background(), ref, seed, 50)
		require.NoError(t, err)

		second := &countingFetcher{first: "count=237"}
		res, err := NewPlanner(second, store, countLayout{}, nil, false).PlanAndFetch(context.Background(), ref, seed, 50)

		require.NoError(t, err)
		require.Empty(t, second.urls)
		require.Equal(t, 0, res.Fetched)
		require.Equal(t, 5, res.Skipped)
	})

	t.Run("resumes after interruption", func(t *testing.T) {
		t.Parallel()
		store := newMapStore()
		require.NoError(t, store.Save(context.Background(), ref, 0, []byte("count=120")))
		require.NoError(t, store.Save(context.Background(), ref, 50, []byte("page")))

		fetcher := &countingFetcher{}
		res, err := NewPlanner(fetcher, store, countLayout{}, nil, false).PlanAndFetch(context.Background(), ref, seed, 50)

		require.NoError(t, err)
		require.Equal(t, []string{seed + "?start=100"}, fetcher.urls)
		require.Equal(t, 1, res.Fetched)
		require.Equal(t, 2, res.Skipped)
	})

	t.Run("missing count marker flags entity", func(t *testing.T) {
		t.Parallel()
		store := newMapStore()
		fetcher := &countingFetcher{first: "<html>layout changed</html>"}

		res, err := NewPlanner(fetcher, store, countLayout{}, nil, false).PlanAndFetch(context.Background(), ref, seed, 50)

		require.NoError(t, err)
		require.True(t, res.NeedsReconcile)
		require.Equal(t, 0, res.Declared)
		require.Equal(t, []int{0}, res.Offsets)
		require.Len(t, fetcher.urls, 1)
	})

	t.Run("fresh mode clears and refetches", func(t *testing.T) {
		t.Parallel()
		store := newMapStore()
		require.NoError(t, store.Save(context.Background(), ref, 0, []byte("count=10")))
		fetcher := &countingFetcher{first: "count=60"}

		res, err := NewPlanner(fetcher, store, countLayout{}, nil, true).PlanAndFetch(context.Background(), ref, seed, 50)

		require.NoError(t, err)
		require.Equal(t, 1, store.cleared)
		require.Equal(t, 60, res.Declared)
		require.Equal(t, []string{seed, seed + "?start=50"}, fetcher.urls)
	})

	t.Run("fetch failure aborts the entity", func(t *testing.T) {
		t.Parallel()
		store := newMapStore()
		netErr := &NetworkError{URL: seed + "?start=50", Attempts: 5, Err: ErrEmptyBody}
		fetcher := &countingFetcher{first: "count=237", fail: map[string]error{seed + "?start=50": netErr}}

		res, err := NewPlanner(fetcher, store, countLayout{}, nil, false).PlanAndFetch(context.Background(), ref, seed, 50)

		var target *NetworkError
		require.ErrorAs(t, err, &target)
		require.Contains(t, err.Error(), "offset 50")
		require.Equal(t, 1, res.Fetched)
		ok, _ := store.Has(ref, 100)
		require.False(t, ok)
	})

	t.Run("store failure is surfaced", func(t *testing.T) {
		t.Parallel()
		store := newMapStore()
		store.saveErr = errors.New("disk full")
		fetcher := &countingFetcher{first: "count=10"}

		_, err := NewPlanner(fetcher, store, countLayout{}, nil, false).PlanAndFetch(context.Background(), ref, seed, 50)

		require.ErrorContains(t, err, "disk full")
	})

	t.Run("rejects invalid refs", func(t *testing.T) {
		t.Parallel()
		fetcher := &countingFetcher{}
		_, err := NewPlanner(fetcher, newMapStore(), countLayout{}, nil, false).
			PlanAndFetch(context.Background(), entity.NewRef(entity.KindBeer, ".."), seed, 25)
		require.Error(t, err)
		require.Empty(t, fetcher.urls)
	})
}

func TestPlanner_Audit(t *testing.T) {
	t.Parallel()

	ref := entity.NewRef(entity.KindBeer, "345", "1234")
	store := newMapStore()
	planner := NewPlanner(&countingFetcher{}, store, countLayout{}, nil, false)

	res, err := planner.Audit(ref, 25)
	require.NoError(t, err)
	require.False(t, res.Complete())
	require.Equal(t, []int{0}, res.Missing)

	require.NoError(t, store.Save(context.Background(), ref, 0, []byte("count=60")))
	require.NoError(t, store.Save(context.Background(), ref, 50, []byte("page")))

	res, err = planner.Audit(ref, 25)
	require.NoError(t, err)
	require.Equal(t, 60, res.Declared)
	require.Equal(t, []int{0, 25, 50}, res.Expected)
	require.Equal(t, []int{25}, res.Missing)

	require.NoError(t, store.Save(context.Background(), ref, 25, []byte("page")))
	res, err = planner.Audit(ref, 25)
	require.NoError(t, err)
	require.True(t, res.Complete())
}
