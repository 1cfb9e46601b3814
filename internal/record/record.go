// Package record defines rating records and the compressed text streams they
// are appended to.
package record

import (
	"strconv"
	"strings"
)

// RatingRecord is one reviewer's rating of one beer. Nil pointers are values
// the page did not provide; they serialize as "nan".
type RatingRecord struct {
	BeerName    string
	BeerID      string
	BreweryName string
	BreweryID   string
	Style       string
	ABV         *float64
	// Date is epoch seconds at local noon of the rating day.
	Date       *int64
	UserName   string
	UserID     string
	Appearance *float64
	Aroma      *float64
	Palate     *float64
	Taste      *float64
	Overall    *float64
	Rating     *float64
	Text       *string
	// CharCount is the length the site reports for the full text. It drives
	// IsReview but is not written to the streams.
	CharCount *int
	IsReview  bool
}

// Field is one "label: value" line.
type Field struct {
	Label string
	Value string
}

const nan = "nan"

// Fields returns the record's lines in stream order. The review flag is only
// written to the all-ratings stream.
func (r RatingRecord) Fields(withReviewFlag bool) []Field {
	fields := []Field{
		{"beer_name", r.BeerName},
		{"beer_id", r.BeerID},
		{"brewery_name", r.BreweryName},
		{"brewery_id", r.BreweryID},
		{"style", r.Style},
		{"abv", formatFloat(r.ABV)},
		{"date", formatInt(r.Date)},
		{"user_name", r.UserName},
		{"user_id", r.UserID},
		{"appearance", formatFloat(r.Appearance)},
		{"aroma", formatFloat(r.Aroma)},
		{"palate", formatFloat(r.Palate)},
		{"taste", formatFloat(r.Taste)},
		{"overall", formatFloat(r.Overall)},
		{"rating", formatRating(r.Rating)},
		{"text", formatText(r.Text)},
	}
	if withReviewFlag {
		fields = append(fields, Field{"review", formatBool(r.IsReview)})
	}
	return fields
}

func formatFloat(v *float64) string {
	if v == nil {
		return nan
	}
	s := strconv.FormatFloat(*v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

func formatRating(v *float64) string {
	if v == nil {
		return nan
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatInt(v *int64) string {
	if v == nil {
		return nan
	}
	return strconv.FormatInt(*v, 10)
}

// Text goes on a single line; embedded line breaks would split the record.
func formatText(v *string) string {
	if v == nil {
		return nan
	}
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(*v)
}

func formatBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}
