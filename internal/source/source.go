// Package source holds the markup contract with the ratings site: for each
// entity kind, where its pages live, how they paginate, how the declared item
// count is read and what the listing and detail pages yield. When the site
// changes its markup, this table is the place to edit.
package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/beer-ratings-crawler/internal/catalog"
	"github.com/JakeFAU/beer-ratings-crawler/internal/crawler"
	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/extract"
)

// DefaultBaseURL is the site the table was written against.
const DefaultBaseURL = "https://www.beeradvocate.com"

// CountRule reads a page's declared item count. The values of Sum are added;
// every one of them must be present.
type CountRule struct {
	Set extract.PatternSet
	Sum []string
}

// Profile describes one entity kind.
type Profile struct {
	Kind entity.Kind
	Step int
	// Targets is the catalog listing the entities of this kind to crawl.
	Targets catalog.Spec
	// PageQuery is the query appended for offsets past zero; %d is the offset.
	PageQuery string
	Count     CountRule
	// Listing extracts child rows from every page into ListingInto.
	Listing     *extract.PatternSet
	ListingInto catalog.Spec
	// Inherit copies columns of the entity's own catalog row onto every
	// listing row, keyed listing column to target column.
	Inherit map[string]string
	// Detail extracts entity fields from page 0.
	Detail *extract.PatternSet

	seed func(base string, keys []string) string
}

// Steps carries the configured page sizes per kind.
type Steps struct {
	Style   int
	Place   int
	Brewery int
	Beer    int
}

// DefaultSteps mirrors the site's page sizes.
func DefaultSteps() Steps {
	return Steps{Style: 50, Place: 20, Brewery: 20, Beer: 25}
}

// Table maps each kind to its profile and implements crawler.Layout.
type Table struct {
	base     string
	profiles map[entity.Kind]*Profile
}

var _ crawler.Layout = (*Table)(nil)

var (
	outOfCount = regexp.MustCompile(`out of (\d+)`)

	beerRatingsFallback = regexp.MustCompile(`</i> Ratings: (.+?)</b>`)
	breweryCurrent      = regexp.MustCompile(`Current \((\d+)\)`)
	breweryArchived     = regexp.MustCompile(`Arch \((\d+)\)`)
	pageHeading         = regexp.MustCompile(`<h1>(.+?)</h1>`)
	beerABV             = regexp.MustCompile(`<b>Alcohol by volume \(ABV\):</b> (.+?)<br>`)

	styleBeers     = regexp.MustCompile(`<a href="/beer/profile/(\d+)/(\d+)/"><b>([^<]+)</b></a>`)
	placeBreweries = regexp.MustCompile(`<a href="/beer/profile/(\d+)/"><b>(.+?)</b>`)
	breweryBeers   = regexp.MustCompile(`<a href="/beer/profile/(\d+)/(\d+)/"><b>(.+?)</b></a></td>` +
		`<td valign=top class="hr_bottom_light"><a href="/beer/style/(\d+)/">(.+?)</a></td>`)
)

// NewTable builds the profile table for baseURL. Non-positive steps fall back
// to the defaults.
func NewTable(baseURL string, steps Steps) *Table {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	def := DefaultSteps()
	pick := func(v, d int) int {
		if v > 0 {
			return v
		}
		return d
	}
	base := strings.TrimRight(baseURL, "/")

	profiles := map[entity.Kind]*Profile{
		entity.KindStyle: {
			Kind:      entity.KindStyle,
			Step:      pick(steps.Style, def.Style),
			Targets:   catalog.Styles,
			PageQuery: "sort=revsD&start=%d",
			Count: CountRule{
				Set: extract.PatternSet{
					Name:     "style-count",
					Fields:   []extract.Pattern{{Field: "total", Regex: outOfCount}},
					Required: []string{"total"},
				},
				Sum: []string{"total"},
			},
			Listing: &extract.PatternSet{
				Name: "style-beers",
				Items: &extract.Pattern{
					Regex:  styleBeers,
					Groups: []string{"brewery_id", "beer_id", "beer_name"},
				},
				Key:      []string{"brewery_id", "beer_id"},
				Required: []string{"beer_name"},
			},
			ListingInto: catalog.Beers,
			Inherit:     map[string]string{"style": "style_name"},
			seed: func(base string, keys []string) string {
				return fmt.Sprintf("%s/beer/style/%s/", base, url.PathEscape(keys[0]))
			},
		},
		entity.KindPlace: {
			Kind:      entity.KindPlace,
			Step:      pick(steps.Place, def.Place),
			Targets:   catalog.Places,
			PageQuery: "start=%d",
			Count: CountRule{
				Set: extract.PatternSet{
					Name:     "place-count",
					Fields:   []extract.Pattern{{Field: "total", Regex: outOfCount}},
					Required: []string{"total"},
				},
				Sum: []string{"total"},
			},
			Listing: &extract.PatternSet{
				Name: "place-breweries",
				Items: &extract.Pattern{
					Regex:  placeBreweries,
					Groups: []string{"brewery_id", "brewery_name"},
				},
				Key:      []string{"brewery_id"},
				Required: []string{"brewery_name"},
			},
			ListingInto: catalog.Breweries,
			Inherit:     map[string]string{"location": "place_name"},
			seed: func(base string, keys []string) string {
				q := url.Values{}
				q.Set("c_id", keys[0])
				if len(keys) > 1 {
					q.Set("s_id", keys[1])
				}
				q.Set("brewery", "Y")
				return fmt.Sprintf("%s/place/list/?%s", base, q.Encode())
			},
		},
		entity.KindBrewery: {
			Kind:      entity.KindBrewery,
			Step:      pick(steps.Brewery, def.Brewery),
			Targets:   catalog.Breweries,
			PageQuery: "start=%d",
			Count: CountRule{
				Set: extract.PatternSet{
					Name: "brewery-count",
					Fields: []extract.Pattern{
						{Field: "current", Regex: breweryCurrent},
						{Field: "archived", Regex: breweryArchived},
					},
					Required: []string{"current", "archived"},
				},
				Sum: []string{"current", "archived"},
			},
			Listing: &extract.PatternSet{
				Name: "brewery-beers",
				Items: &extract.Pattern{
					Regex:  breweryBeers,
					Groups: []string{"brewery_id", "beer_id", "beer_name", "", "style"},
				},
				Fields:   []extract.Pattern{{Field: "brewery_name", Regex: pageHeading}},
				Key:      []string{"brewery_id", "beer_id"},
				Required: []string{"beer_name"},
			},
			ListingInto: catalog.Beers,
			Detail: &extract.PatternSet{
				Name:     "brewery-detail",
				Fields:   []extract.Pattern{{Field: "brewery_name", Regex: pageHeading}},
				Required: []string{"brewery_name"},
			},
			seed: func(base string, keys []string) string {
				return fmt.Sprintf("%s/beer/profile/%s/?view=beers&show=all", base, url.PathEscape(keys[0]))
			},
		},
		entity.KindBeer: {
			Kind:      entity.KindBeer,
			Step:      pick(steps.Beer, def.Beer),
			Targets:   catalog.Beers,
			PageQuery: "view=beer&sort=&start=%d",
			Count: CountRule{
				Set: extract.PatternSet{
					Name: "beer-count",
					Fields: []extract.Pattern{
						{Field: "ratings", Selector: "span.ba-ratings", Transform: extract.StripCommas},
						{Field: "ratings", Regex: beerRatingsFallback, Transform: extract.StripCommas},
					},
					Required: []string{"ratings"},
				},
				Sum: []string{"ratings"},
			},
			Detail: &extract.PatternSet{
				Name: "beer-detail",
				Fields: []extract.Pattern{
					{Field: "nbr_ratings", Selector: "span.ba-ratings", Transform: extract.StripCommas},
					{Field: "nbr_reviews", Selector: "span.ba-reviews", Transform: extract.StripCommas},
					{Field: "avg", Selector: "span.ba-ravg"},
					{Field: "ba_score", Selector: "span.ba-score"},
					{Field: "bros_score", Selector: "span.ba-bro_score"},
					{Field: "abv", Regex: beerABV, Transform: func(s string) string { return strings.TrimSuffix(s, "%") }},
				},
				Required: []string{"nbr_ratings"},
			},
			seed: func(base string, keys []string) string {
				return fmt.Sprintf("%s/beer/profile/%s/%s/", base, url.PathEscape(keys[0]), url.PathEscape(keys[1]))
			},
		},
	}
	return &Table{base: base, profiles: profiles}
}

// Profile returns the profile for kind.
func (t *Table) Profile(kind entity.Kind) (*Profile, error) {
	p, ok := t.profiles[kind]
	if !ok {
		return nil, fmt.Errorf("no source profile for kind %q", kind)
	}
	return p, nil
}

// Ref builds the entity ref for a catalog row of the kind's target catalog.
// Trailing empty key columns (a country without regions) are omitted.
func (t *Table) Ref(kind entity.Kind, row catalog.Row) (entity.Ref, error) {
	p, err := t.Profile(kind)
	if err != nil {
		return entity.Ref{}, err
	}
	keys := make([]string, 0, len(p.Targets.Key))
	for _, col := range p.Targets.Key {
		keys = append(keys, strings.TrimSpace(row[col]))
	}
	for len(keys) > 0 && keys[len(keys)-1] == "" {
		keys = keys[:len(keys)-1]
	}
	ref := entity.NewRef(kind, keys...)
	if err := ref.Validate(); err != nil {
		return entity.Ref{}, err
	}
	return ref, nil
}

// Key returns the catalog key of ref in its target catalog, restoring the
// trailing empty columns Ref dropped.
func (t *Table) Key(ref entity.Ref) ([]string, error) {
	p, err := t.Profile(ref.Kind)
	if err != nil {
		return nil, err
	}
	if len(ref.Keys) > len(p.Targets.Key) {
		return nil, fmt.Errorf("entity %s has more keys than %s", ref, p.Targets.File)
	}
	key := make([]string, len(p.Targets.Key))
	copy(key, ref.Keys)
	return key, nil
}

// SeedURL returns the URL of page 0 for ref.
func (t *Table) SeedURL(ref entity.Ref) (string, error) {
	p, err := t.Profile(ref.Kind)
	if err != nil {
		return "", err
	}
	need := 1
	if ref.Kind == entity.KindBeer {
		need = 2
	}
	if len(ref.Keys) < need {
		return "", fmt.Errorf("entity %s needs %d keys", ref, need)
	}
	return p.seed(t.base, ref.Keys), nil
}

// PageURL implements crawler.Layout.
func (t *Table) PageURL(kind entity.Kind, seedURL string, offset int) string {
	p, ok := t.profiles[kind]
	if !ok || offset == 0 {
		return seedURL
	}
	sep := "?"
	if strings.Contains(seedURL, "?") {
		sep = "&"
	}
	return seedURL + sep + fmt.Sprintf(p.PageQuery, offset)
}

// DeclaredCount implements crawler.Layout. Any failure to read the marker is
// reported as crawler.ErrDeclaredCountMissing.
func (t *Table) DeclaredCount(kind entity.Kind, page []byte) (int, error) {
	p, err := t.Profile(kind)
	if err != nil {
		return 0, err
	}
	return p.Count.Read(extract.Normalize(page))
}

// Read applies the rule to normalized page text.
func (r CountRule) Read(text string) (int, error) {
	res := extract.ExtractText(text, r.Set)
	if len(res.Tuples) == 0 {
		return 0, fmt.Errorf("%w: %s", crawler.ErrDeclaredCountMissing, r.Set.Name)
	}
	total := 0
	for _, field := range r.Sum {
		n, err := strconv.Atoi(res.Tuples[0][field])
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %s field %s=%q", crawler.ErrDeclaredCountMissing, r.Set.Name, field, res.Tuples[0][field])
		}
		total += n
	}
	return total, nil
}
