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

// projectKeyPrefix namespaces project records in the KV store.
const projectKeyPrefix = "project:"

func projectKey(id string) string {
	return projectKeyPrefix + id
}

// ProjectRepository defines persistence operations for project records.
type ProjectRepository interface {
	// Create stores a new project and stamps its timestamps.
	Create(ctx context.Context, project *model.ProjectRecord) error

	// GetByID returns the project, or nil when it does not exist.
	GetByID(ctx context.Context, id string) (*model.ProjectRecord, error)

	// GetAll returns every decodable project, ordered by key.
	GetAll(ctx context.Context) ([]*model.ProjectRecord, error)

	// Update rewrites an existing project and bumps UpdatedAt.
	Update(ctx context.Context, project *model.ProjectRecord) error

	// Delete removes the project.
	Delete(ctx context.Context, id string) error
}

// KVProjectRepository implements ProjectRepository over a kv.Store.
type KVProjectRepository struct {
	store kv.Store
}

// NewKVProjectRepository creates a new KV-backed project repository.
func NewKVProjectRepository(store kv.Store) *KVProjectRepository {
	return &KVProjectRepository{store: store}
}

// Create stores a new project and stamps its timestamps.
func (r *KVProjectRepository) Create(ctx context.Context, project *model.ProjectRecord) error {
	now := time.Now().UTC()
	project.CreatedAt = now
	project.UpdatedAt = now

	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project record %s: %w", project.ID, err)
	}

	return r.store.Put(ctx, projectKey(project.ID), data)
}

// GetByID returns the project, or nil when it does not exist.
func (r *KVProjectRepository) GetByID(ctx context.Context, id string) (*model.ProjectRecord, error) {
	data, err := r.store.Get(ctx, projectKey(id))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var project model.ProjectRecord
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project record %s: %w", id, err)
	}
	return &project, nil
}

// GetAll returns every decodable project, ordered by key. Entries that
// fail to decode are skipped.
func (r *KVProjectRepository) GetAll(ctx context.Context) ([]*model.ProjectRecord, error) {
	entries, err := r.store.List(ctx, projectKeyPrefix)
	if err != nil {
		return nil, err
	}

	projects := make([]*model.ProjectRecord, 0, len(entries))
	for _, entry := range entries {
		var project model.ProjectRecord
		if err := json.Unmarshal(entry.Value, &project); err != nil {
			logger.Warn("Skipping undecodable project record",
				logger.String("key", entry.Key),
				logger.ErrorField(err),
			)
			continue
		}
		projects = append(projects, &project)
	}
	return projects, nil
}

// Update rewrites an existing project and bumps UpdatedAt.
func (r *KVProjectRepository) Update(ctx context.Context, project *model.ProjectRecord) error {
	project.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project record %s: %w", project.ID, err)
	}

	return r.store.Put(ctx, projectKey(project.ID), data)
}

// Delete removes the project.
func (r *KVProjectRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, projectKey(id))
}
