package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"soundvault/kv"
	"soundvault/logger"
	"soundvault/model"
)

// audioKeyPrefix namespaces audio records in the KV store.
const audioKeyPrefix = "audio:"

func audioKey(id string) string {
	return audioKeyPrefix + id
}

// AudioRepository defines persistence operations for audio records.
type AudioRepository interface {
	// Create stores a new record and stamps its timestamps.
	Create(ctx context.Context, record *model.AudioRecord) error

	// GetByID returns the record, or nil when it does not exist.
	GetByID(ctx context.Context, id string) (*model.AudioRecord, error)

	// GetAll returns every decodable record, ordered by key.
	GetAll(ctx context.Context) ([]*model.AudioRecord, error)

	// Update rewrites an existing record and bumps UpdatedAt.
	Update(ctx context.Context, record *model.AudioRecord) error

	// Delete removes the record.
	Delete(ctx context.Context, id string) error

	// FindByHash returns the first stored record with the given file hash,
	// or nil when no upload with identical bytes exists.
	FindByHash(ctx context.Context, hash string) (*model.AudioRecord, error)
}

// KVAudioRepository implements AudioRepository over a kv.Store.
type KVAudioRepository struct {
	store kv.Store
}

// NewKVAudioRepository creates a new KV-backed audio repository.
func NewKVAudioRepository(store kv.Store) *KVAudioRepository {
	return &KVAudioRepository{store: store}
}

// Create stores a new record and stamps its timestamps.
func (r *KVAudioRepository) Create(ctx context.Context, record *model.AudioRecord) error {
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audio record %s: %w", record.ID, err)
	}

	return r.store.Put(ctx, audioKey(record.ID), data)
}

// GetByID returns the record, or nil when it does not exist.
func (r *KVAudioRepository) GetByID(ctx context.Context, id string) (*model.AudioRecord, error) {
	data, err := r.store.Get(ctx, audioKey(id))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var record model.AudioRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audio record %s: %w", id, err)
	}
	return &record, nil
}

// GetAll returns every decodable record, ordered by key. Entries that fail
// to decode are skipped.
func (r *KVAudioRepository) GetAll(ctx context.Context) ([]*model.AudioRecord, error) {
	entries, err := r.store.List(ctx, audioKeyPrefix)
	if err != nil {
		return nil, err
	}

	records := make([]*model.AudioRecord, 0, len(entries))
	for _, entry := range entries {
		var record model.AudioRecord
		if err := json.Unmarshal(entry.Value, &record); err != nil {
			logger.Warn("Skipping undecodable audio record",
				logger.String("key", entry.Key),
				logger.ErrorField(err),
			)
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

// Update rewrites an existing record and bumps UpdatedAt.
func (r *KVAudioRepository) Update(ctx context.Context, record *model.AudioRecord) error {
	record.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal audio record %s: %w", record.ID, err)
	}

	return r.store.Put(ctx, audioKey(record.ID), data)
}

// Delete removes the record.
func (r *KVAudioRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, audioKey(id))
}

// FindByHash scans every audio record and returns the first whose FileHash
// matches, in listing order. The scan is linear over all uploads; with no
// secondary index this is the cost of dedup at upload time, acceptable at
// small catalog sizes. Records that fail to decode are skipped so one bad
// entry cannot block uploads.
func (r *KVAudioRepository) FindByHash(ctx context.Context, hash string) (*model.AudioRecord, error) {
	entries, err := r.store.List(ctx, audioKeyPrefix)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		var record model.AudioRecord
		if err := json.Unmarshal(entry.Value, &record); err != nil {
			logger.Warn("Skipping undecodable audio record during hash scan",
				logger.String("key", entry.Key),
				logger.ErrorField(err),
			)
			continue
		}
		if record.FileHash == hash {
			return &record, nil
		}
	}
	return nil, nil
}
