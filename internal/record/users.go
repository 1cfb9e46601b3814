package record

import (
	"errors"
	"io"
	"sort"
)

// UserTally aggregates one reviewer's activity across the ratings stream.
type UserTally struct {
	UserName   string
	UserID     string
	NbrRatings int
	NbrReviews int
}

// TallyUsers reads an all-ratings stream and counts ratings and reviews per
// user name. The first user id seen for a name is kept. Results are sorted by
// user name.
func TallyUsers(r io.Reader) ([]UserTally, error) {
	rd, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rd.Close() }()

	byName := make(map[string]*UserTally)
	for {
		block, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		name := block["user_name"]
		u, ok := byName[name]
		if !ok {
			u = &UserTally{UserName: name, UserID: block["user_id"]}
			byName[name] = u
		}
		u.NbrRatings++
		if block["review"] == "True" {
			u.NbrReviews++
		}
	}

	out := make([]UserTally, 0, len(byName))
	for _, u := range byName {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserName < out[j].UserName })
	return out, nil
}
