package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"soundvault/config"
	"soundvault/core/dedup"
	"soundvault/core/media"
	"soundvault/core/stream"
	"soundvault/logger"
	"soundvault/model"
	"soundvault/repository"
	"soundvault/storage"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// APIHandler serves all API requests.
type APIHandler struct {
	audioRepo   repository.AudioRepository
	projectRepo repository.ProjectRepository
	blobs       storage.BlobStore
	extractor   media.Extractor
	cfg         *config.Config
}

// NewAPIHandler creates the API handler with its collaborators.
func NewAPIHandler(
	audioRepo repository.AudioRepository,
	projectRepo repository.ProjectRepository,
	blobs storage.BlobStore,
	extractor media.Extractor,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		audioRepo:   audioRepo,
		projectRepo: projectRepo,
		blobs:       blobs,
		extractor:   extractor,
		cfg:         cfg,
	}
}

// RegisterRoutes attaches all API endpoints to the router.
func (h *APIHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audio", h.UploadAudioHandler).Methods(http.MethodPost)
	router.HandleFunc("/audios", h.GetAudiosHandler).Methods(http.MethodGet)
	router.HandleFunc("/audio/{id}/meta", h.GetAudioMetaHandler).Methods(http.MethodGet)
	router.HandleFunc("/audio/{id}/cover", h.GetAudioCoverHandler).Methods(http.MethodGet)
	router.HandleFunc("/audio/{id}", h.StreamAudioHandler).Methods(http.MethodGet)
	router.HandleFunc("/audio/{id}", h.UpdateAudioHandler).Methods(http.MethodPut)
	router.HandleFunc("/audio/{id}", h.DeleteAudioHandler).Methods(http.MethodDelete)

	router.HandleFunc("/projects", h.GetProjectsHandler).Methods(http.MethodGet)
	router.HandleFunc("/project/{id}", h.GetProjectHandler).Methods(http.MethodGet)
	router.HandleFunc("/project/{id}", h.UpdateProjectHandler).Methods(http.MethodPut)
	router.HandleFunc("/project/{id}", h.DeleteProjectHandler).Methods(http.MethodDelete)
	router.HandleFunc("/project/{id}/lyrics", h.UploadLyricsHandler).Methods(http.MethodPut)
	router.HandleFunc("/project/{id}/lyrics", h.GetLyricsHandler).Methods(http.MethodGet)

	router.HandleFunc("/healthz", h.HealthzHandler).Methods(http.MethodGet)
}

var allowedMIMEs = map[string]bool{
	"audio/mpeg":               true, // mp3
	"audio/mp3":                true, // nonstandard but common
	"application/octet-stream": true, // some browsers/OSes do this
}

func audioBlobKey(id string) string {
	return "audio/" + id
}

func coverBlobKey(id string) string {
	return "covers/" + id
}

func lyricsBlobKey(id string) string {
	return "lyrics/" + id
}

// projectName derives the auto-created project's name: tag title first,
// then the bare filename, then a fixed fallback.
func projectName(record *model.AudioRecord) string {
	if record.Metadata != nil && strings.TrimSpace(record.Metadata.Title) != "" {
		return strings.TrimSpace(record.Metadata.Title)
	}
	stem := strings.TrimSuffix(record.Filename, filepath.Ext(record.Filename))
	if strings.TrimSpace(stem) != "" {
		return stem
	}
	return "Untitled Project"
}

// UploadAudioHandler handles audio file uploads.
// Expected multipart form field:
// - file: the MP3 file
//
// The file hash is computed before anything is written; a duplicate upload
// stores nothing and reports the existing record instead.
func (h *APIHandler) UploadAudioHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Only POST method is allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing 'file' in form", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if !allowedMIMEs[contentType] {
		http.Error(w, "unsupported file type", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()

	// Dedup check runs before any write so a duplicate leaves no trace.
	hash := dedup.Hash(data)
	existing, err := h.audioRepo.FindByHash(ctx, hash)
	if err != nil {
		logger.Error("Failed to scan for duplicate upload",
			logger.String("hash", hash),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to check for duplicates", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		logger.Info("Rejected duplicate upload",
			logger.String("existingId", existing.ID),
			logger.String("filename", header.Filename),
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":    "duplicate file",
			"id":       existing.ID,
			"filename": existing.Filename,
			"metadata": existing.Metadata,
		})
		return
	}

	// An extraction failure aborts the whole upload; nothing is persisted
	// from a file whose tags cannot be parsed.
	extraction, err := h.extractor.Extract(data)
	if err != nil {
		logger.Error("Failed to extract metadata",
			logger.String("filename", header.Filename),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to extract metadata", http.StatusInternalServerError)
		return
	}

	record := &model.AudioRecord{
		ID:          uuid.New().String(),
		Filename:    header.Filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		FileHash:    hash,
		Metadata:    extraction.Meta,
	}

	if extraction.Cover != nil {
		coverID := uuid.New().String()
		if err := h.blobs.Put(ctx, coverBlobKey(coverID), extraction.Cover.Data, extraction.Cover.MIME); err != nil {
			logger.Error("Failed to store cover art",
				logger.String("audioId", record.ID),
				logger.ErrorField(err),
			)
			http.Error(w, "Failed to store cover art", http.StatusInternalServerError)
			return
		}
		record.CoverArt = &model.CoverArt{
			ID:     coverID,
			Format: extraction.Cover.MIME,
			Size:   int64(len(extraction.Cover.Data)),
		}
	}

	if err := h.blobs.Put(ctx, audioBlobKey(record.ID), data, contentType); err != nil {
		logger.Error("Failed to store audio blob",
			logger.String("audioId", record.ID),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to store audio file", http.StatusInternalServerError)
		return
	}

	if err := h.audioRepo.Create(ctx, record); err != nil {
		logger.Error("Failed to store audio record",
			logger.String("audioId", record.ID),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to store audio record", http.StatusInternalServerError)
		return
	}

	// Every upload gets a workspace project pointing back at it.
	project := &model.ProjectRecord{
		ID:      uuid.New().String(),
		Name:    projectName(record),
		AudioID: record.ID,
	}
	if err := h.projectRepo.Create(ctx, project); err != nil {
		logger.Error("Failed to create project for upload",
			logger.String("audioId", record.ID),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to create project", http.StatusInternalServerError)
		return
	}

	logger.Info("Audio uploaded",
		logger.String("audioId", record.ID),
		logger.String("projectId", project.ID),
		logger.String("filename", record.Filename),
		logger.Int64("size", record.Size),
		logger.Bool("hasCover", record.CoverArt != nil),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"audio":   record,
		"project": project,
	})
}

// GetAudiosHandler returns every stored audio record.
func (h *APIHandler) GetAudiosHandler(w http.ResponseWriter, r *http.Request) {
	records, err := h.audioRepo.GetAll(r.Context())
	if err != nil {
		logger.Error("Failed to list audio records", logger.ErrorField(err))
		http.Error(w, "Failed to list audio records", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// GetAudioMetaHandler returns one record by ID.
func (h *APIHandler) GetAudioMetaHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	record, err := h.audioRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("Failed to get audio record",
			logger.String("audioId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to get audio record", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Audio not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// StreamAudioHandler serves the audio bytes, honoring the Range header.
//
// Outcomes: 200 with the full body when no range was asked for, 206 with
// the requested slice, 416 header-only when the range is malformed or out
// of bounds, and 416 with a text body when the bounds were fine but the
// backend could not produce the slice.
func (h *APIHandler) StreamAudioHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	record, err := h.audioRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("Failed to get audio record",
			logger.String("audioId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to get audio record", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Audio not found", http.StatusNotFound)
		return
	}

	res := stream.Resolve(r.Header.Get("Range"), record.Size)

	switch res.Outcome {
	case stream.Unsatisfiable:
		w.Header().Set("Content-Range", res.ContentRange())
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)

	case stream.FullBody:
		object, err := h.blobs.Get(r.Context(), audioBlobKey(id))
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Audio file not found", http.StatusNotFound)
			return
		} else if err != nil {
			logger.Error("Failed to open audio blob",
				logger.String("audioId", id),
				logger.ErrorField(err),
			)
			http.Error(w, "Failed to read audio file", http.StatusInternalServerError)
			return
		}
		defer object.Close()

		w.Header().Set("Content-Type", record.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(record.Size, 10))
		w.Header().Set("Accept-Ranges", "bytes")
		if _, err := io.Copy(w, object); err != nil {
			logger.Warn("Error streaming audio",
				logger.String("audioId", id),
				logger.ErrorField(err),
			)
		}

	case stream.PartialContent:
		chunk, err := h.blobs.GetRange(r.Context(), audioBlobKey(id), res.Start, res.Length)
		if err != nil {
			// The bounds check passed against the record's size, but the
			// backend could not produce the slice (object gone or shrunk
			// since). Unlike the malformed-range reply this one carries a
			// text body.
			logger.Warn("Range accepted but fetch failed",
				logger.String("audioId", id),
				logger.Int64("start", res.Start),
				logger.Int64("length", res.Length),
				logger.ErrorField(err),
			)
			http.Error(w, "requested range not available", http.StatusRequestedRangeNotSatisfiable)
			return
		}

		w.Header().Set("Content-Type", record.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(res.Length, 10))
		w.Header().Set("Content-Range", res.ContentRange())
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusPartialContent)
		if _, err := w.Write(chunk); err != nil {
			logger.Warn("Error writing range response",
				logger.String("audioId", id),
				logger.ErrorField(err),
			)
		}
	}
}

// UpdateAudioHandler replaces the stored bytes of an existing record.
// Expected multipart form field:
// - file: the replacement file
//
// Only the blob and the basic fields (filename, content type, size) are
// refreshed. The file hash and cover art keep their original values, so
// dedup keeps matching against the bytes from the first upload.
func (h *APIHandler) UpdateAudioHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Only PUT method is allowed", http.StatusMethodNotAllowed)
		return
	}

	vars := mux.Vars(r)
	id := vars["id"]

	record, err := h.audioRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("Failed to get audio record",
			logger.String("audioId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to get audio record", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Audio not found", http.StatusNotFound)
		return
	}

	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing 'file' in form", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read uploaded file", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.blobs.Put(r.Context(), audioBlobKey(id), data, contentType); err != nil {
		logger.Error("Failed to replace audio blob",
			logger.String("audioId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to store audio file", http.StatusInternalServerError)
		return
	}

	record.Filename = header.Filename
	record.ContentType = contentType
	record.Size = int64(len(data))

	if err := h.audioRepo.Update(r.Context(), record); err != nil {
		logger.Error("Failed to update audio record",
			logger.String("audioId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to update audio record", http.StatusInternalServerError)
		return
	}

	logger.Info("Audio replaced",
		logger.String("audioId", id),
		logger.String("filename", record.Filename),
		logger.Int64("size", record.Size),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// DeleteAudioHandler removes the blob, any cover blob, and the record.
// All deletes are attempted; the stores are independent, so there is no
// transaction and no partial-success reporting. Any failure is a general
// server error.
func (h *APIHandler) DeleteAudioHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Only DELETE method is allowed", http.StatusMethodNotAllowed)
		return
	}

	vars := mux.Vars(r)
	id := vars["id"]

	record, err := h.audioRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("Failed to get audio record",
			logger.String("audioId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to get audio record", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Audio not found", http.StatusNotFound)
		return
	}

	var deleteErr error
	if err := h.blobs.Delete(r.Context(), audioBlobKey(id)); err != nil {
		deleteErr = err
	}
	if record.CoverArt != nil {
		if err := h.blobs.Delete(r.Context(), coverBlobKey(record.CoverArt.ID)); err != nil && deleteErr == nil {
			deleteErr = err
		}
	}
	if err := h.audioRepo.Delete(r.Context(), id); err != nil && deleteErr == nil {
		deleteErr = err
	}

	if deleteErr != nil {
		logger.Error("Failed to delete audio",
			logger.String("audioId", id),
			logger.ErrorField(deleteErr),
		)
		http.Error(w, "Failed to delete audio", http.StatusInternalServerError)
		return
	}

	logger.Info("Audio deleted", logger.String("audioId", id))
	w.WriteHeader(http.StatusNoContent)
}

// GetAudioCoverHandler streams the extracted cover image for a record.
func (h *APIHandler) GetAudioCoverHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	record, err := h.audioRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("Failed to get audio record",
			logger.String("audioId", id),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to get audio record", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Audio not found", http.StatusNotFound)
		return
	}
	if record.CoverArt == nil {
		http.Error(w, "No cover art", http.StatusNotFound)
		return
	}

	object, err := h.blobs.Get(r.Context(), coverBlobKey(record.CoverArt.ID))
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Cover art not found", http.StatusNotFound)
		return
	} else if err != nil {
		logger.Error("Failed to open cover blob",
			logger.String("audioId", id),
			logger.String("coverId", record.CoverArt.ID),
			logger.ErrorField(err),
		)
		http.Error(w, "Failed to read cover art", http.StatusInternalServerError)
		return
	}
	defer object.Close()

	w.Header().Set("Content-Type", record.CoverArt.Format)
	w.Header().Set("Content-Length", strconv.FormatInt(record.CoverArt.Size, 10))
	if _, err := io.Copy(w, object); err != nil {
		logger.Warn("Error streaming cover art",
			logger.String("audioId", id),
			logger.ErrorField(err),
		)
	}
}
