package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"soundvault/config"
	"soundvault/core/dedup"
	"soundvault/core/media"
	"soundvault/kv"
	"soundvault/model"
	"soundvault/repository"
	"soundvault/storage"
)

// stubExtractor returns canned results so handler tests do not depend on
// real tag parsing.
type stubExtractor struct {
	extraction *media.Extraction
	err        error
}

func (s *stubExtractor) Extract(data []byte) (*media.Extraction, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.extraction != nil {
		return s.extraction, nil
	}
	return &media.Extraction{}, nil
}

type testAPI struct {
	router    *mux.Router
	audioRepo repository.AudioRepository
	projects  repository.ProjectRepository
	blobs     *storage.MemoryStore
	extractor *stubExtractor
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := kv.NewMemoryStore()
	api := &testAPI{
		router:    mux.NewRouter(),
		audioRepo: repository.NewKVAudioRepository(store),
		projects:  repository.NewKVProjectRepository(store),
		blobs:     storage.NewMemoryStore(),
		extractor: &stubExtractor{},
	}

	handler := NewAPIHandler(api.audioRepo, api.projects, api.blobs, api.extractor, &config.Config{
		MaxUploadSize: 32 << 20,
	})
	handler.RegisterRoutes(api.router)
	return api
}

// multipartBody builds a single-file multipart form with an explicit part
// content type, which CreateFormFile cannot set.
func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	partHeader := textproto.MIMEHeader{}
	partHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	partHeader.Set("Content-Type", contentType)
	part, err := writer.CreatePart(partHeader)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func (api *testAPI) upload(t *testing.T, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, formType := multipartBody(t, "file", filename, contentType, data)
	request := httptest.NewRequest(http.MethodPost, "/audio", body)
	request.Header.Set("Content-Type", formType)
	recorder := httptest.NewRecorder()
	api.router.ServeHTTP(recorder, request)
	return recorder
}

func (api *testAPI) mustUpload(t *testing.T, filename, contentType string, data []byte) (model.AudioRecord, model.ProjectRecord) {
	t.Helper()

	recorder := api.upload(t, filename, contentType, data)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("upload status: got %d, want %d (body %q)", recorder.Code, http.StatusCreated, recorder.Body.String())
	}

	var resp struct {
		Audio   model.AudioRecord   `json:"audio"`
		Project model.ProjectRecord `json:"project"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	return resp.Audio, resp.Project
}

func (api *testAPI) get(t *testing.T, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	request := httptest.NewRequest(http.MethodGet, path, nil)
	for key, value := range headers {
		request.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	api.router.ServeHTTP(recorder, request)
	return recorder
}

// --- Upload ---

func TestUploadCreatesRecordAndProject(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.extractor.extraction = &media.Extraction{
		Meta: &model.AudioMetadata{Title: "Night Drive", Artist: "The Valves", Duration: 212.5},
	}

	data := []byte("mp3 payload bytes")
	audio, project := api.mustUpload(t, "song.mp3", "audio/mpeg", data)

	if audio.ID == "" {
		t.Fatal("upload returned an empty audio ID")
	}
	if audio.Filename != "song.mp3" {
		t.Errorf("filename: got %q, want %q", audio.Filename, "song.mp3")
	}
	if audio.Size != int64(len(data)) {
		t.Errorf("size: got %d, want %d", audio.Size, len(data))
	}
	if want := dedup.Hash(data); audio.FileHash != want {
		t.Errorf("fileHash: got %q, want %q", audio.FileHash, want)
	}
	if audio.Metadata == nil || audio.Metadata.Title != "Night Drive" {
		t.Errorf("metadata: got %+v", audio.Metadata)
	}

	if project.AudioID != audio.ID {
		t.Errorf("project audioId: got %q, want %q", project.AudioID, audio.ID)
	}
	if project.Name != "Night Drive" {
		t.Errorf("project name: got %q, want the tag title", project.Name)
	}

	// The raw bytes must be retrievable from the blob store.
	stream := api.get(t, "/audio/"+audio.ID, nil)
	if stream.Code != http.StatusOK {
		t.Fatalf("stream status: got %d, want %d", stream.Code, http.StatusOK)
	}
	if !bytes.Equal(stream.Body.Bytes(), data) {
		t.Errorf("streamed bytes differ from the upload")
	}
}

func TestUploadProjectNameFallsBackToFilename(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	// No tags extracted at all.
	_, project := api.mustUpload(t, "demo.mp3", "audio/mpeg", []byte("untagged bytes"))

	if project.Name != "demo" {
		t.Errorf("project name: got %q, want the filename stem %q", project.Name, "demo")
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	recorder := api.upload(t, "notes.txt", "text/plain", []byte("not audio"))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", recorder.Code, http.StatusBadRequest)
	}
	if !strings.Contains(recorder.Body.String(), "unsupported file type") {
		t.Errorf("body: got %q, want mention of unsupported file type", recorder.Body.String())
	}

	records, err := api.audioRepo.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("rejected upload left %d records behind", len(records))
	}
}

func TestUploadMissingFileField(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	body, formType := multipartBody(t, "attachment", "song.mp3", "audio/mpeg", []byte("x"))
	request := httptest.NewRequest(http.MethodPost, "/audio", body)
	request.Header.Set("Content-Type", formType)
	recorder := httptest.NewRecorder()
	api.router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", recorder.Code, http.StatusBadRequest)
	}
}

func TestUploadDuplicateReportsExistingRecord(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	data := []byte("identical bytes either way")
	first, _ := api.mustUpload(t, "original.mp3", "audio/mpeg", data)

	// Same bytes under a different name must be refused.
	recorder := api.upload(t, "renamed.mp3", "audio/mpeg", data)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("duplicate status: got %d, want %d", recorder.Code, http.StatusBadRequest)
	}

	var resp struct {
		Error    string `json:"error"`
		ID       string `json:"id"`
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(recorder.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding duplicate response: %v", err)
	}
	if resp.Error != "duplicate file" {
		t.Errorf("error: got %q, want %q", resp.Error, "duplicate file")
	}
	if resp.ID != first.ID {
		t.Errorf("id: got %q, want the first upload %q", resp.ID, first.ID)
	}
	if resp.Filename != "original.mp3" {
		t.Errorf("filename: got %q, want the first upload's name", resp.Filename)
	}

	records, err := api.audioRepo.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("records after duplicate: got %d, want 1", len(records))
	}
	projects, err := api.projects.GetAll(context.Background())
	if err != nil {
		t.Fatalf("projects GetAll: %v", err)
	}
	if len(projects) != 1 {
		t.Errorf("projects after duplicate: got %d, want 1", len(projects))
	}
}

func TestUploadExtractionFailureAbortsEverything(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.extractor.err = errors.New("corrupt frame header")

	recorder := api.upload(t, "broken.mp3", "audio/mpeg", []byte("garbage"))
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", recorder.Code, http.StatusInternalServerError)
	}

	records, err := api.audioRepo.GetAll(context.Background())
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("failed upload left %d records behind", len(records))
	}
}

// --- Streaming ---

func TestStreamRangeScenarios(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	audio, _ := api.mustUpload(t, "clip.mp3", "audio/mpeg", []byte("0123456789"))

	tests := []struct {
		name             string
		rangeHeader      string
		wantStatus       int
		wantBody         string
		wantContentRange string
	}{
		{
			name:       "no range serves everything",
			wantStatus: http.StatusOK,
			wantBody:   "0123456789",
		},
		{
			name:             "interior range",
			rangeHeader:      "bytes=2-5",
			wantStatus:       http.StatusPartialContent,
			wantBody:         "2345",
			wantContentRange: "bytes 2-5/10",
		},
		{
			name:             "open-ended range",
			rangeHeader:      "bytes=7-",
			wantStatus:       http.StatusPartialContent,
			wantBody:         "789",
			wantContentRange: "bytes 7-9/10",
		},
		{
			name:             "range past the end",
			rangeHeader:      "bytes=8-200",
			wantStatus:       http.StatusRequestedRangeNotSatisfiable,
			wantBody:         "",
			wantContentRange: "bytes */10",
		},
		{
			name:             "malformed range",
			rangeHeader:      "bytes=abc",
			wantStatus:       http.StatusRequestedRangeNotSatisfiable,
			wantBody:         "",
			wantContentRange: "bytes */10",
		},
		{
			name:             "start after end",
			rangeHeader:      "bytes=5-2",
			wantStatus:       http.StatusRequestedRangeNotSatisfiable,
			wantBody:         "",
			wantContentRange: "bytes */10",
		},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			headers := map[string]string{}
			if test.rangeHeader != "" {
				headers["Range"] = test.rangeHeader
			}
			recorder := api.get(t, "/audio/"+audio.ID, headers)

			if recorder.Code != test.wantStatus {
				t.Fatalf("status: got %d, want %d", recorder.Code, test.wantStatus)
			}
			if got := recorder.Body.String(); got != test.wantBody {
				t.Errorf("body: got %q, want %q", got, test.wantBody)
			}
			if got := recorder.Header().Get("Content-Range"); got != test.wantContentRange {
				t.Errorf("Content-Range: got %q, want %q", got, test.wantContentRange)
			}
		})
	}
}

func TestStreamSetsContentHeaders(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	audio, _ := api.mustUpload(t, "clip.mp3", "audio/mpeg", []byte("0123456789"))

	full := api.get(t, "/audio/"+audio.ID, nil)
	if got := full.Header().Get("Content-Type"); got != "audio/mpeg" {
		t.Errorf("full Content-Type: got %q, want %q", got, "audio/mpeg")
	}
	if got := full.Header().Get("Content-Length"); got != "10" {
		t.Errorf("full Content-Length: got %q, want %q", got, "10")
	}
	if got := full.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("full Accept-Ranges: got %q, want %q", got, "bytes")
	}

	partial := api.get(t, "/audio/"+audio.ID, map[string]string{"Range": "bytes=0-3"})
	if got := partial.Header().Get("Content-Length"); got != "4" {
		t.Errorf("partial Content-Length: got %q, want %q", got, "4")
	}
	if got := partial.Header().Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("partial Accept-Ranges: got %q, want %q", got, "bytes")
	}
}

func TestStreamUnknownRecord(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	recorder := api.get(t, "/audio/no-such-id", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", recorder.Code, http.StatusNotFound)
	}
}

func TestStreamRecordWithoutBlob(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	audio, _ := api.mustUpload(t, "clip.mp3", "audio/mpeg", []byte("0123456789"))

	// The record survives but the object is gone.
	if err := api.blobs.Delete(context.Background(), "audio/"+audio.ID); err != nil {
		t.Fatalf("Delete blob: %v", err)
	}

	recorder := api.get(t, "/audio/"+audio.ID, nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("full-body status: got %d, want %d", recorder.Code, http.StatusNotFound)
	}
}

func TestStreamValidRangeWithFailingBackend(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	audio, _ := api.mustUpload(t, "clip.mp3", "audio/mpeg", []byte("0123456789"))

	if err := api.blobs.Delete(context.Background(), "audio/"+audio.ID); err != nil {
		t.Fatalf("Delete blob: %v", err)
	}

	// The bounds pass against the record, so this failure mode answers 416
	// with an explanatory body instead of the bare header.
	recorder := api.get(t, "/audio/"+audio.ID, map[string]string{"Range": "bytes=0-4"})
	if recorder.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status: got %d, want %d", recorder.Code, http.StatusRequestedRangeNotSatisfiable)
	}
	if strings.TrimSpace(recorder.Body.String()) == "" {
		t.Error("backend failure must carry a text body")
	}
}

// --- Listing and metadata ---

func TestGetAudiosListsUploads(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.mustUpload(t, "one.mp3", "audio/mpeg", []byte("first bytes"))
	api.mustUpload(t, "two.mp3", "audio/mpeg", []byte("second bytes"))

	recorder := api.get(t, "/audios", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", recorder.Code, http.StatusOK)
	}

	var records []model.AudioRecord
	if err := json.NewDecoder(recorder.Body).Decode(&records); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("records: got %d, want 2", len(records))
	}
}

func TestGetAudioMeta(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.extractor.extraction = &media.Extraction{
		Meta: &model.AudioMetadata{Title: "Night Drive", Year: 2019},
	}
	audio, _ := api.mustUpload(t, "song.mp3", "audio/mpeg", []byte("bytes"))

	recorder := api.get(t, "/audio/"+audio.ID+"/meta", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", recorder.Code, http.StatusOK)
	}

	var got model.AudioRecord
	if err := json.NewDecoder(recorder.Body).Decode(&got); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if got.ID != audio.ID || got.Metadata == nil || got.Metadata.Year != 2019 {
		t.Errorf("record: got %+v", got)
	}

	missing := api.get(t, "/audio/no-such-id/meta", nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing record status: got %d, want %d", missing.Code, http.StatusNotFound)
	}
}

// --- Replace ---

func TestUpdateAudioKeepsHashAndCover(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.extractor.extraction = &media.Extraction{
		Meta:  &model.AudioMetadata{Title: "Night Drive"},
		Cover: &media.Cover{Data: []byte{0xff, 0xd8, 0xff}, MIME: "image/jpeg"},
	}

	original := []byte("original bytes")
	audio, _ := api.mustUpload(t, "v1.mp3", "audio/mpeg", original)

	replacement := []byte("replacement bytes, longer than before")
	body, formType := multipartBody(t, "file", "v2.mp3", "audio/mpeg", replacement)
	request := httptest.NewRequest(http.MethodPut, "/audio/"+audio.ID, body)
	request.Header.Set("Content-Type", formType)
	recorder := httptest.NewRecorder()
	api.router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d (body %q)", recorder.Code, http.StatusOK, recorder.Body.String())
	}

	var got model.AudioRecord
	if err := json.NewDecoder(recorder.Body).Decode(&got); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if got.Filename != "v2.mp3" {
		t.Errorf("filename: got %q, want %q", got.Filename, "v2.mp3")
	}
	if got.Size != int64(len(replacement)) {
		t.Errorf("size: got %d, want %d", got.Size, len(replacement))
	}
	if got.FileHash != audio.FileHash {
		t.Errorf("fileHash changed on replace: got %q, want %q", got.FileHash, audio.FileHash)
	}
	if got.CoverArt == nil {
		t.Error("cover art reference lost on replace")
	}

	// The stored bytes really did change.
	stream := api.get(t, "/audio/"+audio.ID, nil)
	if !bytes.Equal(stream.Body.Bytes(), replacement) {
		t.Errorf("streamed bytes: got %q, want the replacement", stream.Body.Bytes())
	}
}

func TestUpdateAudioMissing(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	body, formType := multipartBody(t, "file", "v2.mp3", "audio/mpeg", []byte("x"))
	request := httptest.NewRequest(http.MethodPut, "/audio/no-such-id", body)
	request.Header.Set("Content-Type", formType)
	recorder := httptest.NewRecorder()
	api.router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", recorder.Code, http.StatusNotFound)
	}
}

// --- Delete ---

func TestDeleteAudioRemovesRecordAndBlobs(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.extractor.extraction = &media.Extraction{
		Cover: &media.Cover{Data: []byte{0x89, 'P', 'N', 'G'}, MIME: "image/png"},
	}
	audio, _ := api.mustUpload(t, "song.mp3", "audio/mpeg", []byte("bytes to delete"))

	request := httptest.NewRequest(http.MethodDelete, "/audio/"+audio.ID, nil)
	recorder := httptest.NewRecorder()
	api.router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", recorder.Code, http.StatusNoContent)
	}

	if meta := api.get(t, "/audio/"+audio.ID+"/meta", nil); meta.Code != http.StatusNotFound {
		t.Errorf("record after delete: got status %d, want %d", meta.Code, http.StatusNotFound)
	}

	ctx := context.Background()
	if _, err := api.blobs.Get(ctx, "audio/"+audio.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("audio blob after delete: got %v, want ErrNotFound", err)
	}
	if audio.CoverArt == nil {
		t.Fatal("upload response lost the cover reference")
	}
	if _, err := api.blobs.Get(ctx, "covers/"+audio.CoverArt.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("cover blob after delete: got %v, want ErrNotFound", err)
	}
}

func TestDeleteAudioMissing(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	request := httptest.NewRequest(http.MethodDelete, "/audio/no-such-id", nil)
	recorder := httptest.NewRecorder()
	api.router.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", recorder.Code, http.StatusNotFound)
	}
}

// --- Cover art ---

func TestGetAudioCover(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	coverBytes := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02}
	api.extractor.extraction = &media.Extraction{
		Meta:  &model.AudioMetadata{Title: "Night Drive"},
		Cover: &media.Cover{Data: coverBytes, MIME: "image/jpeg"},
	}
	audio, _ := api.mustUpload(t, "song.mp3", "audio/mpeg", []byte("bytes"))

	recorder := api.get(t, "/audio/"+audio.ID+"/cover", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", recorder.Code, http.StatusOK)
	}
	if got := recorder.Header().Get("Content-Type"); got != "image/jpeg" {
		t.Errorf("Content-Type: got %q, want %q", got, "image/jpeg")
	}
	if !bytes.Equal(recorder.Body.Bytes(), coverBytes) {
		t.Errorf("cover bytes differ from the embedded picture")
	}
}

func TestGetAudioCoverWhenNoneEmbedded(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	audio, _ := api.mustUpload(t, "plain.mp3", "audio/mpeg", []byte("untagged"))

	recorder := api.get(t, "/audio/"+audio.ID+"/cover", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", recorder.Code, http.StatusNotFound)
	}
}
