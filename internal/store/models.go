package store

import "time"

// PlaceLookup caches one encoded directory lookup keyed by place name and location.
type PlaceLookup struct {
	LookupKey string    `gorm:"primaryKey;size:512"`
	Payload   []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	Hits      int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Stats summarises the lookup cache table.
type Stats struct {
	Entries int64 `json:"entries"`
	Expired int64 `json:"expired"`
	Hits    int64 `json:"hits"`
}
