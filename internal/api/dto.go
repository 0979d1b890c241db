package api

import (
	"journez/backend/internal/parse"
	"journez/backend/internal/recommend"
	"journez/backend/internal/store"
)

// RecommendRequest is the body of the recommendation endpoints and of every
// stream message. RawText replays a saved model answer instead of generating one.
type RecommendRequest struct {
	Location   string   `json:"location"`
	Categories []string `json:"categories"`
	Count      int      `json:"count"`
	RawText    string   `json:"raw_text,omitempty"`
}

func (r RecommendRequest) pipelineRequest() recommend.Request {
	return recommend.Request{
		Location:   r.Location,
		Categories: r.Categories,
		Count:      r.Count,
	}
}

// ExportRequest carries grouped results back for download.
type ExportRequest struct {
	Results []recommend.CategoryRecommendations `json:"results"`
}

// ConfigResponse describes what the server can do.
type ConfigResponse struct {
	Categories       []parse.Category `json:"categories"`
	DefaultCount     int              `json:"default_count"`
	MaxCount         int              `json:"max_count"`
	GeneratorEnabled bool             `json:"generator_enabled"`
	DirectoryEnabled bool             `json:"directory_enabled"`
	CacheBackend     string           `json:"cache_backend"`
	CacheStats       *store.Stats     `json:"cache_stats,omitempty"`
}
