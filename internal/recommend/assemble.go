package recommend

import (
	"strings"

	"journez/backend/internal/parse"
	"journez/backend/internal/places"
)

// Assemble zips extracted sections with their lookups. details[i][j] belongs
// to sections[i].Items[j]; a missing or nil entry means the place was not resolved.
func Assemble(sections []parse.Section, details [][]*places.Detail) []CategoryRecommendations {
	groups := make([]CategoryRecommendations, 0, len(sections))
	for i, section := range sections {
		group := CategoryRecommendations{
			Category:        section.Category,
			Recommendations: make([]Recommendation, 0, len(section.Items)),
		}
		for j, item := range section.Items {
			var detail *places.Detail
			if i < len(details) && j < len(details[i]) {
				detail = details[i][j]
			}
			group.Recommendations = append(group.Recommendations, buildRecommendation(item, detail))
		}
		groups = append(groups, group)
	}
	return groups
}

func buildRecommendation(item parse.Item, detail *places.Detail) Recommendation {
	rec := Recommendation{
		Name:        item.Name,
		Description: item.Description,
		Photos:      []string{},
		Hours:       []string{},
	}
	if detail == nil {
		return rec
	}

	if name := strings.TrimSpace(detail.Name); name != "" {
		rec.Name = name
	}
	if detail.PhotoURLs != nil {
		rec.Photos = detail.PhotoURLs
	}
	if detail.Hours != nil {
		rec.Hours = detail.Hours
	}
	rec.DirectorySummary = detail.Summary

	lat, lng := detail.Latitude, detail.Longitude
	address, phone, website := detail.Address, detail.Phone, detail.Website
	rec.Latitude = &lat
	rec.Longitude = &lng
	rec.Address = &address
	rec.Phone = &phone
	rec.Website = &website
	return rec
}
