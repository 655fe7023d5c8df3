package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// kvRecord is the GORM model backing the MySQL store. Keys are short
// ("audio:{uuid}"), so a 255-byte primary key column is plenty.
type kvRecord struct {
	K         string `gorm:"column:k;primaryKey;size:255"`
	V         []byte `gorm:"column:v"`
	UpdatedAt time.Time
}

func (kvRecord) TableName() string {
	return "kv_entries"
}

// MySQLStore persists records in a single MySQL table through GORM.
// It exists for deployments without Redis; behavior matches RedisStore.
type MySQLStore struct {
	db *gorm.DB
}

// NewMySQLStore migrates the backing table and returns the store.
func NewMySQLStore(db *gorm.DB) (*MySQLStore, error) {
	if err := db.AutoMigrate(&kvRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv table: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

// Get returns the value for key, or (nil, nil) if the key does not exist.
func (s *MySQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "mysql.get",
		trace.WithAttributes(attribute.String("key", key)),
	)
	defer span.End()

	var rec kvRecord
	err := s.db.WithContext(ctx).First(&rec, "k = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return rec.V, nil
}

// Put stores value under key, overwriting any previous value.
func (s *MySQLStore) Put(ctx context.Context, key string, value []byte) error {
	ctx, span := tracer.Start(ctx, "mysql.put",
		trace.WithAttributes(
			attribute.String("key", key),
			attribute.Int("size_bytes", len(value)),
		),
	)
	defer span.End()

	rec := kvRecord{K: key, V: value}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *MySQLStore) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "mysql.delete",
		trace.WithAttributes(attribute.String("key", key)),
	)
	defer span.End()

	if err := s.db.WithContext(ctx).Delete(&kvRecord{}, "k = ?", key).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

// List returns all entries whose key starts with prefix, ordered by key.
func (s *MySQLStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	ctx, span := tracer.Start(ctx, "mysql.list",
		trace.WithAttributes(attribute.String("prefix", prefix)),
	)
	defer span.End()

	var recs []kvRecord
	err := s.db.WithContext(ctx).
		Where("k LIKE ?", prefix+"%").
		Order("k").
		Find(&recs).Error
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list prefix %s: %w", prefix, err)
	}

	entries := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, Entry{Key: rec.K, Value: rec.V})
	}

	span.SetAttributes(attribute.Int("count", len(entries)))
	return entries, nil
}
