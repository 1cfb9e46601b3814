package catalog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	tbl, err := Open(t.TempDir(), Beers)
	require.NoError(t, err)
	require.Equal(t, 0, tbl.Len())
	require.Equal(t, Beers, tbl.Spec())
}

func TestUpsertMergesByKey(t *testing.T) {
	t.Parallel()

	tbl, err := Open(t.TempDir(), Beers)
	require.NoError(t, err)

	require.True(t, tbl.Upsert(Row{"brewery_id": "1", "beer_id": "2", "beer_name": "Alpha"}))
	require.True(t, tbl.Upsert(Row{"brewery_id": "1", "beer_id": "3", "beer_name": "Beta"}))
	require.False(t, tbl.Upsert(Row{"brewery_id": "1", "beer_id": "2", "style": "IPA", "beer_name": ""}))

	row, ok := tbl.Get("1", "2")
	require.True(t, ok)
	require.Equal(t, "Alpha", row["beer_name"])
	require.Equal(t, "IPA", row["style"])

	row["beer_name"] = "mutated"
	again, _ := tbl.Get("1", "2")
	require.Equal(t, "Alpha", again["beer_name"])

	rows := tbl.Rows()
	require.Len(t, rows, 2)
	require.Equal(t, "2", rows[0]["beer_id"])
	require.Equal(t, "3", rows[1]["beer_id"])
}

func TestSetUpdatesExistingRowsOnly(t *testing.T) {
	t.Parallel()

	tbl, err := Open(t.TempDir(), Breweries)
	require.NoError(t, err)
	tbl.Upsert(Row{"brewery_id": "7", "brewery_name": "Seven"})

	require.True(t, tbl.Set([]string{"7"}, Row{"nbr_beers": "12"}))
	require.False(t, tbl.Set([]string{"8"}, Row{"nbr_beers": "1"}))

	row, _ := tbl.Get("7")
	require.Equal(t, "12", row["nbr_beers"])
}

func TestSaveAndReopen(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "parsed")
	tbl, err := Open(dir, Places)
	require.NoError(t, err)
	tbl.Upsert(Row{"country_id": "US", "region_id": "CA", "place_name": "United States, California"})
	tbl.Upsert(Row{"country_id": "BE", "place_name": "Belgium, \"the\" best"})
	require.NoError(t, tbl.Save())

	data, err := os.ReadFile(filepath.Join(dir, "places.csv"))
	require.NoError(t, err)
	require.Contains(t, string(data), "country_id,region_id,place_name\n")

	reopened, err := Open(dir, Places)
	require.NoError(t, err)
	require.Equal(t, 2, reopened.Len())
	row, ok := reopened.Get("BE", "")
	require.True(t, ok)
	require.Equal(t, "Belgium, \"the\" best", row["place_name"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestConcurrentUpserts(t *testing.T) {
	t.Parallel()

	tbl, err := Open(t.TempDir(), Users)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				tbl.Upsert(Row{"user_name": string(rune('a' + j%10)), "user_id": "x"})
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 10, tbl.Len())
}
