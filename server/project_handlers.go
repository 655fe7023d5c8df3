package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"soundvault/logger"
	"soundvault/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// GetProjectsHandler returns every stored project.
func (h *APIHandler) GetProjectsHandler(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projectRepo.GetAll(r.Context())
	if err != nil {
		logger.Error("Failed to list projects", logger.ErrorField(err))
		http.Error(w, "Failed to list projects", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(projects)
}

// GetProjectHandler returns one project by ID.
func (h *APIHandler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	project, err := h.projectRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("Failed to get project",
			logger.String("projectId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to get project", http.StatusInternalServerError)
		return
	}
	if project == nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(project)
}

// UpdateProjectHandler overwrites a project's editable fields. The audio
// link and timestamps are server-owned and ignored if sent.
func (h *APIHandler) UpdateProjectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Only PUT method is allowed", http.StatusMethodNotAllowed)
		return
	}

	vars := mux.Vars(r)
	id := vars["id"]

	project, err := h.projectRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("Failed to get project",
			logger.String("projectId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to get project", http.StatusInternalServerError)
		return
	}
	if project == nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	var req struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		LyricsID    string   `json:"lyricsId"`
		AssetIDs    []string `json:"assetIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Name != "" {
		project.Name = req.Name
	}
	project.Description = req.Description
	if req.LyricsID != "" {
		project.LyricsID = req.LyricsID
	}
	project.AssetIDs = req.AssetIDs

	if err := h.projectRepo.Update(r.Context(), project); err != nil {
		logger.Error("Failed to update project",
			logger.String("projectId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to update project", http.StatusInternalServerError)
		return
	}

	logger.Info("Project updated",
		logger.String("projectId", id),
		logger.String("name", project.Name),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(project)
}

// DeleteProjectHandler removes a project and its lyrics blob if present.
func (h *APIHandler) DeleteProjectHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Only DELETE method is allowed", http.StatusMethodNotAllowed)
		return
	}

	vars := mux.Vars(r)
	id := vars["id"]

	project, err := h.projectRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("Failed to get project",
			logger.String("projectId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to get project", http.StatusInternalServerError)
		return
	}
	if project == nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	var deleteErr error
	if project.LyricsID != "" {
		if err := h.blobs.Delete(r.Context(), lyricsBlobKey(project.LyricsID)); err != nil {
			deleteErr = err
		}
	}
	if err := h.projectRepo.Delete(r.Context(), id); err != nil && deleteErr == nil {
		deleteErr = err
	}

	if deleteErr != nil {
		logger.Error("Failed to delete project",
			logger.String("projectId", id),
			logger.ErrorField(deleteErr),
		)
		http.Error(w, "Failed to delete project", http.StatusInternalServerError)
		return
	}

	logger.Info("Project deleted", logger.String("projectId", id))
	w.WriteHeader(http.StatusNoContent)
}

// UploadLyricsHandler stores the raw request body as the project's lyrics.
// A project keeps one lyrics blob; re-uploading overwrites it in place.
func (h *APIHandler) UploadLyricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Only PUT method is allowed", http.StatusMethodNotAllowed)
		return
	}

	vars := mux.Vars(r)
	id := vars["id"]

	project, err := h.projectRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("Failed to get project",
			logger.String("projectId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to get project", http.StatusInternalServerError)
		return
	}
	if project == nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	lyricsID := project.LyricsID
	if lyricsID == "" {
		lyricsID = uuid.New().String()
	}

	if err := h.blobs.Put(r.Context(), lyricsBlobKey(lyricsID), body, "text/plain; charset=utf-8"); err != nil {
		logger.Error("Failed to store lyrics",
			logger.String("projectId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to store lyrics", http.StatusInternalServerError)
		return
	}

	project.LyricsID = lyricsID
	if err := h.projectRepo.Update(r.Context(), project); err != nil {
		logger.Error("Failed to update project with lyrics",
			logger.String("projectId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to update project", http.StatusInternalServerError)
		return
	}

	logger.Info("Lyrics stored",
		logger.String("projectId", id),
		logger.String("lyricsId", lyricsID),
		logger.Int("size", len(body)),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"lyricsId": lyricsID})
}

// GetLyricsHandler streams the project's lyrics blob.
func (h *APIHandler) GetLyricsHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	project, err := h.projectRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("Failed to get project",
			logger.String("projectId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to get project", http.StatusInternalServerError)
		return
	}
	if project == nil {
		http.Error(w, "Project not found", http.StatusNotFound)
		return
	}
	if project.LyricsID == "" {
		http.Error(w, "No lyrics", http.StatusNotFound)
		return
	}

	object, err := h.blobs.Get(r.Context(), lyricsBlobKey(project.LyricsID))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Lyrics not found", http.StatusNotFound)
		return
	} else if err != nil {
		logger.Error("Failed to open lyrics blob",
			logger.String("projectId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to read lyrics", http.StatusInternalServerError)
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("Error streaming lyrics",
			logger.String("projectId", id),
			logger.ErrorField(err),
		)
	}
}

// HealthzHandler reports process liveness.
func (h *APIHandler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
