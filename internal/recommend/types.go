package recommend

import (
	"errors"
	"fmt"
	"strings"

	"journez/backend/internal/parse"
)

const (
	// DefaultCount is used when a request leaves the count unset.
	DefaultCount = 5
	// MaxCount bounds how many places are requested per category.
	MaxCount = 20
)

// ErrInvalidRequest reports a request that cannot be answered.
var ErrInvalidRequest = errors.New("invalid recommendation request")

// Recommendation is one place in a category group. Nullable fields stay nil
// when the directory could not resolve the place.
type Recommendation struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Photos           []string `json:"photos"`
	Hours            []string `json:"hours"`
	DirectorySummary string   `json:"directory_summary"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	Address          *string  `json:"address"`
	Phone            *string  `json:"phone"`
	Website          *string  `json:"website"`
}

// CategoryRecommendations is the ordered output of one classified block.
type CategoryRecommendations struct {
	Category        parse.Category   `json:"category"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Request describes what to recommend.
type Request struct {
	Location   string   `json:"location"`
	Categories []string `json:"categories"`
	Count      int      `json:"count"`
}

// Query is a validated Request.
type Query struct {
	Location   string
	Categories []parse.Category
	Count      int
}

// Validate normalizes the request. Unknown categories are ignored and
// duplicates collapse; a zero count means DefaultCount.
func (r Request) Validate() (Query, error) {
	query := Query{
		Location: strings.TrimSpace(r.Location),
		Count:    r.Count,
	}
	if query.Location == "" {
		return Query{}, fmt.Errorf("%w: location is required", ErrInvalidRequest)
	}
	if query.Count == 0 {
		query.Count = DefaultCount
	}
	if query.Count < 1 || query.Count > MaxCount {
		return Query{}, fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidRequest, MaxCount)
	}

	seen := make(map[parse.Category]struct{}, len(r.Categories))
	for _, raw := range r.Categories {
		category, ok := parse.ParseCategory(raw)
		if !ok {
			continue
		}
		if _, dup := seen[category]; dup {
			continue
		}
		seen[category] = struct{}{}
		query.Categories = append(query.Categories, category)
	}
	if len(query.Categories) == 0 {
		return Query{}, fmt.Errorf("%w: at least one of do, eat, stay, shop is required", ErrInvalidRequest)
	}
	return query, nil
}

// Labels returns the query categories as strings.
func (q Query) Labels() []string {
	out := make([]string, 0, len(q.Categories))
	for _, category := range q.Categories {
		out = append(out, string(category))
	}
	return out
}

// parseOptions enables the single-category fallback for header-less answers.
func (q Query) parseOptions() parse.Options {
	if len(q.Categories) == 1 {
		return parse.Options{Fallback: q.Categories[0]}
	}
	return parse.Options{}
}
