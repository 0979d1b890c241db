package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle and serves as a durable lookup cache.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
	now  func() time.Time
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&PlaceLookup{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	return &Database{gorm: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get returns the payload stored under key unless it has expired.
func (d *Database) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row PlaceLookup
	err := d.gorm.WithContext(ctx).
		Where("lookup_key = ? AND expires_at > ?", key, d.now()).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load place lookup: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.gorm.WithContext(ctx).Model(&PlaceLookup{}).
		Where("lookup_key = ?", key).
		UpdateColumn("hits", gorm.Expr("hits + 1")).Error; err != nil {
		logrus.WithError(err).WithField("key", key).Debug("bump place lookup hits")
	}
	return row.Payload, true, nil
}

// Set upserts the payload for key. A non-positive ttl keeps the row for a year.
func (d *Database) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	now := d.now()
	row := PlaceLookup{
		LookupKey: key,
		Payload:   value,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lookup_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "expires_at", "updated_at"}),
	}).Create(&row).Error
}

// PurgeExpired deletes expired rows and reports how many were removed.
func (d *Database) PurgeExpired(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := d.gorm.WithContext(ctx).Where("expires_at <= ?", d.now()).Delete(&PlaceLookup{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge place lookups: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Stats reports the size of the cache table.
func (d *Database) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	db := d.gorm.WithContext(ctx).Model(&PlaceLookup{})
	if err := db.Count(&stats.Entries).Error; err != nil {
		return Stats{}, fmt.Errorf("count place lookups: %w", err)
	}
	if err := d.gorm.WithContext(ctx).Model(&PlaceLookup{}).
		Where("expires_at <= ?", d.now()).Count(&stats.Expired).Error; err != nil {
		return Stats{}, fmt.Errorf("count expired place lookups: %w", err)
	}
	if err := d.gorm.WithContext(ctx).Model(&PlaceLookup{}).
		Select("COALESCE(SUM(hits), 0)").Scan(&stats.Hits).Error; err != nil {
		return Stats{}, fmt.Errorf("sum place lookup hits: %w", err)
	}
	return stats, nil
}
