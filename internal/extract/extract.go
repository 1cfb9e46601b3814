// Package extract pulls structured fields out of page snapshots.
//
// Every snapshot goes through Normalize exactly once; patterns are written
// against the normalized text. A PatternSet describes one page shape: an
// optional multi-match item pattern for listings plus scalar fields shared by
// every item (or forming the single item of a detail page).
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var normalizer = strings.NewReplacer("\r", "", "\n", "", "\t", "")

// Normalize removes carriage returns, newlines and tabs.
func Normalize(page []byte) string {
	return normalizer.Replace(string(page))
}

// Tuple is one extracted item keyed by field name.
type Tuple map[string]string

// Key joins the values of fields; it is empty when any field is missing.
func (t Tuple) Key(fields []string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		v := t[f]
		if v == "" {
			return ""
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "\x00")
}

// Pattern locates one field (scalar) or many items (listing).
//
// For a scalar, either Selector (goquery, first match text) or Regex (first
// capture group) is used. For an item pattern, Regex is matched repeatedly and
// Groups names capture group i+1; blank names are ignored.
type Pattern struct {
	Field     string
	Selector  string
	Regex     *regexp.Regexp
	Groups    []string
	Transform func(string) string
}

// PatternSet is the ordered extraction rule for one page shape. Several
// scalar patterns may target the same field; the first that yields a value
// wins.
type PatternSet struct {
	Name     string
	Items    *Pattern
	Fields   []Pattern
	Key      []string
	Required []string
}

// ParseError describes an item dropped because required markup was absent.
type ParseError struct {
	Set    string
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: field %q %s", e.Set, e.Field, e.Reason)
}

// Result holds the surviving tuples and one diagnostic per dropped item.
type Result struct {
	Tuples      []Tuple
	Diagnostics []error
}

// Extract normalizes page and applies set.
func Extract(page []byte, set PatternSet) Result {
	return ExtractText(Normalize(page), set)
}

// ExtractText applies set to already normalized text.
func ExtractText(text string, set PatternSet) Result {
	var res Result
	scalars := scalarFields(text, set.Fields)

	var candidates []Tuple
	if set.Items == nil {
		candidates = []Tuple{scalars}
	} else {
		for _, m := range set.Items.Regex.FindAllStringSubmatch(text, -1) {
			t := make(Tuple, len(scalars)+len(set.Items.Groups))
			for k, v := range scalars {
				t[k] = v
			}
			for i, name := range set.Items.Groups {
				if name == "" || i+1 >= len(m) {
					continue
				}
				v := strings.TrimSpace(m[i+1])
				if set.Items.Transform != nil {
					v = set.Items.Transform(v)
				}
				t[name] = v
			}
			candidates = append(candidates, t)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, t := range candidates {
		if missing := firstMissing(t, set.Required, set.Key); missing != "" {
			res.Diagnostics = append(res.Diagnostics, &ParseError{Set: set.Name, Field: missing, Reason: "not found"})
			continue
		}
		if len(set.Key) > 0 {
			k := t.Key(set.Key)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		res.Tuples = append(res.Tuples, t)
	}
	return res
}

func firstMissing(t Tuple, groups ...[]string) string {
	for _, fields := range groups {
		for _, f := range fields {
			if t[f] == "" {
				return f
			}
		}
	}
	return ""
}

func scalarFields(text string, patterns []Pattern) Tuple {
	out := make(Tuple, len(patterns))
	var doc *goquery.Document
	for _, p := range patterns {
		if out[p.Field] != "" {
			continue
		}
		var v string
		switch {
		case p.Selector != "":
			if doc == nil {
				var err error
				doc, err = goquery.NewDocumentFromReader(strings.NewReader(text))
				if err != nil {
					continue
				}
			}
			v = doc.Find(p.Selector).First().Text()
		case p.Regex != nil:
			if m := p.Regex.FindStringSubmatch(text); len(m) > 1 {
				v = m[1]
			}
		}
		v = strings.TrimSpace(v)
		if v != "" && p.Transform != nil {
			v = p.Transform(v)
		}
		if v != "" {
			out[p.Field] = v
		}
	}
	return out
}

// Text returns the text content of an HTML fragment with tags removed.
func Text(fragment string) string {
	if !strings.Contains(fragment, "<") && !strings.Contains(fragment, "&") {
		return fragment
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return doc.Text()
}

// StripCommas removes thousands separators, e.g. "1,234" becomes "1234".
func StripCommas(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
