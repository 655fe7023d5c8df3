package repository

import (
	"context"
	"testing"

	"soundvault/kv"
	"soundvault/model"
)

func TestProjectCreateAndGet(t *testing.T) {
	t.Parallel()
	repo := NewKVProjectRepository(kv.NewMemoryStore())
	ctx := context.Background()

	project := &model.ProjectRecord{ID: "p1", Name: "Night Drive", AudioID: "a1"}
	if err := repo.Create(ctx, project); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if project.CreatedAt.IsZero() {
		t.Error("Create left CreatedAt unset")
	}

	got, err := repo.GetByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Name != "Night Drive" || got.AudioID != "a1" {
		t.Errorf("GetByID: got %+v", got)
	}
}

func TestProjectGetByIDMissing(t *testing.T) {
	t.Parallel()
	repo := NewKVProjectRepository(kv.NewMemoryStore())

	got, err := repo.GetByID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Errorf("missing project: got %+v, want nil", got)
	}
}

func TestProjectUpdatePersistsChanges(t *testing.T) {
	t.Parallel()
	repo := NewKVProjectRepository(kv.NewMemoryStore())
	ctx := context.Background()

	project := &model.ProjectRecord{ID: "p1", Name: "Untitled Project", AudioID: "a1"}
	if err := repo.Create(ctx, project); err != nil {
		t.Fatalf("Create: %v", err)
	}

	project.Name = "Renamed"
	project.LyricsID = "l1"
	if err := repo.Update(ctx, project); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := repo.GetByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Renamed" || got.LyricsID != "l1" {
		t.Errorf("after update: got %+v", got)
	}
}

func TestProjectGetAllSkipsCorruptEntries(t *testing.T) {
	t.Parallel()
	store := kv.NewMemoryStore()
	repo := NewKVProjectRepository(store)
	ctx := context.Background()

	store.Put(ctx, "project:0-corrupt", []byte("{not json"))
	repo.Create(ctx, &model.ProjectRecord{ID: "p1", Name: "Good", AudioID: "a1"})
	repo.Create(ctx, &model.ProjectRecord{ID: "p2", Name: "Also Good", AudioID: "a2"})

	projects, err := repo.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(projects) != 2 {
		t.Errorf("GetAll: got %d projects, want 2", len(projects))
	}
}

func TestProjectDelete(t *testing.T) {
	t.Parallel()
	repo := NewKVProjectRepository(kv.NewMemoryStore())
	ctx := context.Background()

	repo.Create(ctx, &model.ProjectRecord{ID: "p1", AudioID: "a1"})
	if err := repo.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err := repo.GetByID(ctx, "p1")
	if err != nil {
		t.Fatalf("GetByID after delete: %v", err)
	}
	if got != nil {
		t.Errorf("deleted project still present: %+v", got)
	}
}
