package parse

import (
	"regexp"
	"strings"
)

var (
	boldNameColonInside  = regexp.MustCompile(`(?s)^\d+\.\s+\*\*([^*\n]+?)\s*:\s*\*\*(.*)$`)
	boldNameColonOutside = regexp.MustCompile(`(?s)^\d+\.\s+\*\*([^*\n]+?)\*\*\s*:(.*)$`)
	plainNameColon       = regexp.MustCompile(`(?s)^\d+\.\s+([^:\n]+?):(.*)$`)
	ordinalPrefix        = regexp.MustCompile(`^\d+[.)]\s*`)

	nameEmphasis = strings.NewReplacer("**", "", "__", "", "*", "", "`", "")
)

// Item is a candidate place pulled out of one numbered list unit.
type Item struct {
	Ordinal     int
	Name        string
	Description string
}

// Extract turns the body of a block into items. Units that match neither the
// bold-name nor the plain-name pattern are skipped and do not consume an ordinal.
func Extract(lines []string) []Item {
	var items []Item
	for _, unit := range splitUnits(lines) {
		name, description, ok := parseUnit(unit)
		if !ok {
			continue
		}
		items = append(items, Item{
			Ordinal:     len(items) + 1,
			Name:        name,
			Description: description,
		})
	}
	return items
}

// Unlabeled extracts items from text that has no header at all. Units that do
// not carry a "name: description" shape still become items, named by their text.
func Unlabeled(raw string) []Item {
	var items []Item
	for _, unit := range splitUnits(splitLines(raw)) {
		name, description, ok := parseUnit(unit)
		if !ok {
			first, rest, _ := strings.Cut(unit, "\n")
			name = cleanName(first)
			description = cleanDescription(rest)
		}
		if name == "" {
			continue
		}
		items = append(items, Item{
			Ordinal:     len(items) + 1,
			Name:        name,
			Description: description,
		})
	}
	return items
}

// splitUnits groups lines into numbered list units. Lines before the first
// marker belong to no unit.
func splitUnits(lines []string) []string {
	var (
		units   []string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			units = append(units, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if marker := strings.TrimLeft(trimmed, emphasisChars); isListItem(marker) {
			flush()
			current = append(current, marker)
			continue
		}
		if len(current) > 0 {
			current = append(current, trimmed)
		}
	}
	flush()
	return units
}

func parseUnit(unit string) (string, string, bool) {
	for _, pattern := range []*regexp.Regexp{boldNameColonInside, boldNameColonOutside, plainNameColon} {
		match := pattern.FindStringSubmatch(unit)
		if match == nil {
			continue
		}
		name := cleanName(match[1])
		if name == "" {
			return "", "", false
		}
		return name, cleanDescription(match[2]), true
	}
	return "", "", false
}

func cleanName(value string) string {
	value = ordinalPrefix.ReplaceAllString(strings.TrimSpace(value), "")
	value = nameEmphasis.Replace(value)
	value = ordinalPrefix.ReplaceAllString(strings.TrimSpace(value), "")
	return strings.Trim(value, emphasisChars)
}

// cleanDescription folds continuation lines into one line.
func cleanDescription(value string) string {
	var parts []string
	for _, line := range strings.Split(value, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	joined := strings.Join(parts, " ")
	return strings.TrimSpace(strings.TrimLeft(joined, "*_ "))
}
