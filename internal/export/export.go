package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"journez/backend/internal/parse"
	"journez/backend/internal/recommend"
)

const (
	// Filename is the base name of downloaded exports.
	Filename = "journez-ai-place-recommendations"
	// DefaultTitle heads a titled CSV export.
	DefaultTitle = "Place Recommendations"

	listSeparator = "; "
	utf8BOM       = "\ufeff"
)

// Headers are the CSV columns in order.
var Headers = []string{
	"Category", "Name", "Description", "DirectorySummary", "Address",
	"Latitude", "Longitude", "Photos", "Hours", "Phone", "Website",
}

// Row is one recommendation tagged with its category. Group is the index of
// the originating group and only serves Regroup.
type Row struct {
	Group    int            `json:"group"`
	Category parse.Category `json:"category"`
	recommend.Recommendation
}

// CSVOptions controls CSV framing.
type CSVOptions struct {
	BOM   bool
	Title string
}

// Flatten lists every recommendation in group order, then in-group order.
func Flatten(groups []recommend.CategoryRecommendations) []Row {
	rows := make([]Row, 0)
	for i, group := range groups {
		for _, rec := range group.Recommendations {
			rows = append(rows, Row{Group: i, Category: group.Category, Recommendation: rec})
		}
	}
	return rows
}

// Regroup rebuilds grouped results from rows. A new group starts whenever the
// group index or the category changes, so adjacent duplicate categories keep
// their boundaries.
func Regroup(rows []Row) []recommend.CategoryRecommendations {
	groups := make([]recommend.CategoryRecommendations, 0)
	for i, row := range rows {
		if i == 0 || row.Group != rows[i-1].Group || row.Category != rows[i-1].Category {
			groups = append(groups, recommend.CategoryRecommendations{
				Category:        row.Category,
				Recommendations: []recommend.Recommendation{},
			})
		}
		last := &groups[len(groups)-1]
		last.Recommendations = append(last.Recommendations, row.Recommendation)
	}
	return groups
}

// Record renders the row as CSV cells matching Headers. Nil values become
// empty cells.
func (r Row) Record() []string {
	return []string{
		string(r.Category),
		r.Name,
		r.Description,
		r.DirectorySummary,
		optionalString(r.Address),
		optionalFloat(r.Latitude),
		optionalFloat(r.Longitude),
		strings.Join(r.Photos, listSeparator),
		strings.Join(r.Hours, listSeparator),
		optionalString(r.Phone),
		optionalString(r.Website),
	}
}

// WriteCSV writes a header row followed by one row per recommendation.
func WriteCSV(w io.Writer, rows []Row, opts CSVOptions) error {
	if opts.BOM {
		if _, err := io.WriteString(w, utf8BOM); err != nil {
			return fmt.Errorf("write bom: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if title := strings.TrimSpace(opts.Title); title != "" {
		if err := writer.Write([]string{title}); err != nil {
			return fmt.Errorf("write title: %w", err)
		}
	}
	if err := writer.Write(Headers); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row.Record()); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON writes rows as an indented JSON array.
func WriteJSON(w io.Writer, rows []Row) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rows); err != nil {
		return fmt.Errorf("encode rows: %w", err)
	}
	return nil
}

func optionalString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optionalFloat(value *float64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}
