package places

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"googlemaps.github.io/maps"
)

// detailFields is the field mask requested from the details endpoint.
var detailFields = []maps.PlaceDetailsFieldMask{
	maps.PlaceDetailsFieldMaskName,
	maps.PlaceDetailsFieldMaskPhotos,
	maps.PlaceDetailsFieldMaskOpeningHours,
	maps.PlaceDetailsFieldMaskEditorialSummary,
	maps.PlaceDetailsFieldMaskFormattedPhoneNumber,
	maps.PlaceDetailsFieldMaskWebsite,
}

// Config drives directory client behaviour.
type Config struct {
	APIKey        string
	BaseURL       string
	Timeout       time.Duration
	PhotoMaxWidth int
	Cache         Cache
	CacheTTL      time.Duration
}

// Place is a text search hit.
type Place struct {
	PlaceID   string
	Name      string
	Address   string
	Latitude  float64
	Longitude float64
}

// Detail is everything the directory knows about a matched place. Missing
// sub-fields come back as empty strings and slices.
type Detail struct {
	Name      string   `json:"name"`
	PhotoURLs []string `json:"photo_urls"`
	Hours     []string `json:"hours"`
	Summary   string   `json:"summary"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Address   string   `json:"address"`
	Phone     string   `json:"phone"`
	Website   string   `json:"website"`
}

// Client performs place directory lookups with optional caching.
type Client struct {
	maps          *maps.Client
	baseURL       string
	apiKey        string
	photoMaxWidth int
	cache         Cache
	cacheTTL      time.Duration
}

// ErrMissingCredential is returned when no directory api key is configured.
var ErrMissingCredential = errors.New("places client missing api key")

// NewClient constructs a directory client if configuration is valid.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingCredential
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://maps.googleapis.com"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	width := cfg.PhotoMaxWidth
	if width <= 0 {
		width = 400
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	// Rate limiting belongs to the resolver, so the library's own limiter is off.
	mapsClient, err := maps.NewClient(
		maps.WithAPIKey(apiKey),
		maps.WithBaseURL(baseURL),
		maps.WithRateLimit(0),
		maps.WithHTTPClient(&http.Client{
			Timeout:   timeout,
			Transport: statusTransport{next: http.DefaultTransport},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}

	return &Client{
		maps:          mapsClient,
		baseURL:       baseURL,
		apiKey:        apiKey,
		photoMaxWidth: width,
		cache:         cfg.Cache,
		cacheTTL:      ttl,
	}, nil
}

// Lookup resolves a place name within a location to its directory detail.
// A nil detail with a nil error means the directory had no match.
func (c *Client) Lookup(ctx context.Context, name, location string) (*Detail, error) {
	if c == nil {
		return nil, ErrMissingCredential
	}

	key := cacheKey(name, location)
	if record, ok := c.cached(ctx, key); ok {
		return c.detailFrom(record), nil
	}

	record, err := c.resolve(ctx, name, location)
	if err != nil {
		return nil, err
	}

	c.store(ctx, key, record)
	return c.detailFrom(record), nil
}

func (c *Client) resolve(ctx context.Context, name, location string) (*lookupRecord, error) {
	hits, err := c.Search(ctx, fmt.Sprintf("%s in %s", name, location))
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	first := hits[0]
	result, err := c.details(ctx, first.PlaceID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	record := &lookupRecord{
		Name:      strings.TrimSpace(result.Name),
		Latitude:  first.Latitude,
		Longitude: first.Longitude,
		Address:   first.Address,
		Phone:     strings.TrimSpace(result.FormattedPhoneNumber),
		Website:   strings.TrimSpace(result.Website),
	}
	if result.OpeningHours != nil {
		record.Hours = result.OpeningHours.WeekdayText
	}
	if result.EditorialSummary != nil {
		record.Summary = strings.TrimSpace(result.EditorialSummary.Overview)
	}
	for _, photo := range result.Photos {
		if ref := strings.TrimSpace(photo.PhotoReference); ref != "" {
			record.PhotoRefs = append(record.PhotoRefs, ref)
		}
	}
	return record, nil
}

// Search runs a free-text place search and returns hits in directory order.
func (c *Client) Search(ctx context.Context, query string) ([]Place, error) {
	resp, err := c.maps.TextSearch(ctx, &maps.TextSearchRequest{Query: query})
	if err != nil {
		return nil, apiError(opTextSearch, err)
	}

	places := make([]Place, 0, len(resp.Results))
	for _, result := range resp.Results {
		places = append(places, Place{
			PlaceID:   result.PlaceID,
			Name:      strings.TrimSpace(result.Name),
			Address:   strings.TrimSpace(result.FormattedAddress),
			Latitude:  result.Geometry.Location.Lat,
			Longitude: result.Geometry.Location.Lng,
		})
	}
	return places, nil
}

// details fetches the masked detail record for a place id. A nil result
// means the directory no longer knows the place.
func (c *Client) details(ctx context.Context, placeID string) (*maps.PlaceDetailsResult, error) {
	if strings.TrimSpace(placeID) == "" {
		return nil, nil
	}
	result, err := c.maps.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
		PlaceID: placeID,
		Fields:  detailFields,
	})
	if err != nil {
		err = apiError(opDetails, err)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == statusNotFound {
			return nil, nil
		}
		return nil, err
	}
	// ZERO_RESULTS is not an error to the library and arrives as an empty result.
	if isEmptyDetails(result) {
		return nil, nil
	}
	return &result, nil
}

func isEmptyDetails(result maps.PlaceDetailsResult) bool {
	return result.Name == "" &&
		len(result.Photos) == 0 &&
		result.OpeningHours == nil &&
		result.EditorialSummary == nil &&
		result.FormattedPhoneNumber == "" &&
		result.Website == ""
}

// PhotoURL builds the fetchable image url for a photo reference.
func (c *Client) PhotoURL(ref string) string {
	return fmt.Sprintf("%s/maps/api/place/photo?maxwidth=%d&photoreference=%s&key=%s",
		c.baseURL, c.photoMaxWidth, url.QueryEscape(ref), url.QueryEscape(c.apiKey))
}

func (c *Client) cached(ctx context.Context, key string) (*lookupRecord, bool) {
	if c.cache == nil {
		return nil, false
	}
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("places cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var record *lookupRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("discarding undecodable places cache entry")
		return nil, false
	}
	return record, true
}

func (c *Client) store(ctx context.Context, key string, record *lookupRecord) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.cacheTTL); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("places cache write failed")
	}
}

// detailFrom expands a cached record. Photo urls are rebuilt on every read so
// the api key never reaches the cache.
func (c *Client) detailFrom(record *lookupRecord) *Detail {
	if record == nil {
		return nil
	}
	detail := &Detail{
		Name:      record.Name,
		PhotoURLs: make([]string, 0, len(record.PhotoRefs)),
		Hours:     nonNil(record.Hours),
		Summary:   record.Summary,
		Latitude:  record.Latitude,
		Longitude: record.Longitude,
		Address:   record.Address,
		Phone:     record.Phone,
		Website:   record.Website,
	}
	for _, ref := range record.PhotoRefs {
		detail.PhotoURLs = append(detail.PhotoURLs, c.PhotoURL(ref))
	}
	return detail
}

// lookupRecord is the cacheable form of a lookup. A JSON null marks a known miss.
type lookupRecord struct {
	Name      string   `json:"name"`
	PhotoRefs []string `json:"photo_refs,omitempty"`
	Hours     []string `json:"hours,omitempty"`
	Summary   string   `json:"summary,omitempty"`
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lng"`
	Address   string   `json:"address,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Website   string   `json:"website,omitempty"`
}

func cacheKey(name, location string) string {
	return "places:" + strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(location))
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
