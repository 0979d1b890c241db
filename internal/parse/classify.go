package parse

import "strings"

// Category is one of the fixed recommendation classes.
type Category string

const (
	CategoryDo   Category = "do"
	CategoryEat  Category = "eat"
	CategoryStay Category = "stay"
	CategoryShop Category = "shop"
)

// categoryKeywords is checked in order; the first category with a keyword
// contained in the header wins.
var categoryKeywords = []struct {
	category Category
	keywords []string
}{
	{CategoryDo, []string{"do", "activities", "things to do"}},
	{CategoryEat, []string{"eat", "food"}},
	{CategoryStay, []string{"stay"}},
	{CategoryShop, []string{"shop", "shopping"}},
}

// Categories lists the supported categories in priority order.
func Categories() []Category {
	out := make([]Category, 0, len(categoryKeywords))
	for _, entry := range categoryKeywords {
		out = append(out, entry.category)
	}
	return out
}

// Classify maps free-form header text to a category.
func Classify(header string) (Category, bool) {
	lower := strings.ToLower(header)
	if strings.TrimSpace(lower) == "" {
		return "", false
	}
	for _, entry := range categoryKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(lower, keyword) {
				return entry.category, true
			}
		}
	}
	return "", false
}

// ParseCategory accepts a category name as supplied by a caller ("Eat", " shop ").
func ParseCategory(value string) (Category, bool) {
	candidate := Category(strings.ToLower(strings.TrimSpace(value)))
	for _, entry := range categoryKeywords {
		if entry.category == candidate {
			return candidate, true
		}
	}
	return "", false
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := ParseCategory(string(c))
	return ok
}
