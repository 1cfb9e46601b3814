// Package review turns the snapshots of one beer into rating records.
package review

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/beer-ratings-crawler/internal/entity"
	"github.com/JakeFAU/beer-ratings-crawler/internal/extract"
	"github.com/JakeFAU/beer-ratings-crawler/internal/record"
)

// DefaultMinReviewChars is the shortest text that counts as a review.
const DefaultMinReviewChars = 150

// Each rating block, after extract.Normalize. Groups: 2 score, 3 aspect
// block, 4 body block, 5 user id, 6 user name, 10 date.
var blockPattern = regexp.MustCompile(
	`alt="Photo of ([^<]*)"></a></div></div><div id="rating_fullview_content_2">` +
		`<span class="BAscore_norm">([^<]*)</span><span class="rAvg_norm">/5</span>&nbsp;&nbsp;` +
		`(.+?)<br><br>(.+?)<span class="muted"><a href="/community/members/(.+?)/" ` +
		`class="username">([^<]*)</a>, <a href="/beer/profile/(\d+)/(\d+)/\?ba=([^#]*)#review">` +
		`(.+?)</a></span>`)

const aspectMarker = "overall"

// The site separates feel and overall with two spaces.
var aspectPattern = regexp.MustCompile(
	`<span class="muted">look: (.+?) \| smell: (.+?) \| taste: (.+?) \| feel: (.+?) \|  overall: (.+?)</span>`)

const (
	charsMarker     = "characters"
	zeroCharsMarker = ">0 characters"
)

var bodyPattern = regexp.MustCompile(`(.+?)<br>(.+?)<span class="muted">(.+?) characters</span><br><br><div>`)

// Beer carries the catalog identity copied onto every record.
type Beer struct {
	Ref         entity.Ref
	Name        string
	BreweryName string
	Style       string
	ABV         *float64
}

// Page is one persisted snapshot. ModTime anchors relative dates.
type Page struct {
	Offset  int
	Body    []byte
	ModTime time.Time
}

// Result is the outcome of parsing one beer.
type Result struct {
	Records     []record.RatingRecord
	Ratings     int
	Reviews     int
	Diagnostics []error
}

// Parser extracts rating records. The zero value uses the default review
// threshold and the local time zone.
type Parser struct {
	MinReviewChars int
	Location       *time.Location
}

// Parse walks pages in ascending offset order. A reviewer name is emitted at
// most once; the earliest page wins.
func (p Parser) Parse(beer Beer, pages []Page) Result {
	ordered := make([]Page, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Offset < ordered[j].Offset })

	var res Result
	seen := make(map[string]struct{})
	for _, page := range ordered {
		if len(page.Body) == 0 {
			res.Diagnostics = append(res.Diagnostics,
				fmt.Errorf("%s offset %d: empty snapshot", beer.Ref, page.Offset))
			continue
		}
		text := extract.Normalize(page.Body)
		for _, m := range blockPattern.FindAllStringSubmatch(text, -1) {
			name := m[6]
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}

			rec, diag := p.block(beer, page, m)
			if diag != nil {
				res.Diagnostics = append(res.Diagnostics, diag)
			}
			res.Records = append(res.Records, rec)
			res.Ratings++
			if rec.IsReview {
				res.Reviews++
			}
		}
	}
	return res
}

// block builds one record. Fields that fail to parse stay nil; the returned
// error only describes what was lost.
func (p Parser) block(beer Beer, page Page, m []string) (record.RatingRecord, error) {
	rec := record.RatingRecord{
		BeerName:    beer.Name,
		BreweryName: beer.BreweryName,
		Style:       beer.Style,
		ABV:         beer.ABV,
		UserName:    m[6],
		UserID:      m[5],
	}
	if len(beer.Ref.Keys) == 2 {
		rec.BreweryID, rec.BeerID = beer.Ref.Keys[0], beer.Ref.Keys[1]
	}

	var problems []string
	rec.Rating = parseFloat(m[2])
	if rec.Rating == nil {
		problems = append(problems, "score")
	}

	if strings.Contains(m[3], aspectMarker) {
		if a := aspectPattern.FindStringSubmatch(m[3]); a != nil {
			rec.Appearance = parseFloat(a[1])
			rec.Aroma = parseFloat(a[2])
			rec.Taste = parseFloat(a[3])
			rec.Palate = parseFloat(a[4])
			rec.Overall = parseFloat(a[5])
		} else {
			problems = append(problems, "aspects")
		}
	}

	if strings.Contains(m[4], charsMarker) && !strings.Contains(m[4], zeroCharsMarker) {
		if b := bodyPattern.FindStringSubmatch(m[4]); b != nil {
			if n, err := strconv.Atoi(extract.StripCommas(strings.TrimSpace(b[3]))); err == nil && n > 0 {
				text := extract.Text(b[1])
				rec.Text = &text
				rec.CharCount = &n
			} else if err != nil {
				problems = append(problems, "character count")
			}
		} else {
			problems = append(problems, "text")
		}
	}
	rec.IsReview = rec.CharCount != nil && *rec.CharCount >= p.minChars()

	if ts, err := ParseDate(m[10], page.ModTime, p.Location); err == nil {
		rec.Date = &ts
	} else {
		problems = append(problems, "date")
	}

	if len(problems) == 0 {
		return rec, nil
	}
	return rec, fmt.Errorf("%s offset %d user %q: unparsed %s",
		beer.Ref, page.Offset, rec.UserName, strings.Join(problems, ", "))
}

func (p Parser) minChars() int {
	if p.MinReviewChars <= 0 {
		return DefaultMinReviewChars
	}
	return p.MinReviewChars
}

func parseFloat(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return &v
}
