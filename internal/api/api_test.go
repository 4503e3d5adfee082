package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bee-cms/bee/internal/api"
	"github.com/bee-cms/bee/internal/config"
	"github.com/bee-cms/bee/internal/mocks/servicemocks"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type testServices struct {
	imports *servicemocks.MockImportService
	exports *servicemocks.MockExportService
	links   *servicemocks.MockLinkService
}

func setupTestRouter(t *testing.T) (*gin.Engine, *testServices, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServices{
		imports: servicemocks.NewMockImportService(),
		exports: servicemocks.NewMockExportService(),
		links:   servicemocks.NewMockLinkService(),
	}
	services := &service.Services{
		Import: ts.imports,
		Export: ts.exports,
		Links:  ts.links,
	}

	mediaRoot := t.TempDir()
	cfg := &config.Config{
		Server:  config.ServerConfig{Port: "8080"},
		Storage: config.StorageConfig{MediaRoot: mediaRoot, MediaURL: "/media"},
	}

	router := api.NewRouter(services, cfg, zerolog.Nop())
	return router, ts, mediaRoot
}

func serve(router *gin.Engine, method, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := serve(router, "GET", "/health")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", response["status"])
	}
	if response["service"] != "bee" {
		t.Errorf("Expected service name, got %v", response["service"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router, ts, _ := setupTestRouter(t)
	ts.exports.Counts["users"] = 12
	ts.exports.Counts["posts"] = 500
	ts.exports.Counts["comments"] = 2000
	ts.exports.Counts["assets"] = 40

	w := serve(router, "GET", "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	db := response["database"].(map[string]interface{})
	if db["posts"].(float64) != 500 {
		t.Errorf("Expected 500 posts, got %v", db["posts"])
	}
	if db["assets"].(float64) != 40 {
		t.Errorf("Expected 40 assets, got %v", db["assets"])
	}
}

func TestGetImportRun(t *testing.T) {
	router, ts, _ := setupTestRouter(t)

	now := time.Now()
	ts.imports.Runs["run-123"] = &models.ImportRun{
		ID:           "run-123",
		Source:       models.SourceLiveJournal,
		Path:         "/exports/alice.xml",
		Status:       models.ImportRunCompleted,
		PostsCreated: 120,
		PostsUpdated: 3,
		DurationMs:   5000,
		StartedAt:    now.Add(-5 * time.Second),
		CompletedAt:  &now,
	}

	w := serve(router, "GET", "/v1/imports/run-123")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)

	if response["run_id"] != "run-123" {
		t.Errorf("Expected run_id run-123, got %v", response["run_id"])
	}
	if response["source"] != "livejournal" {
		t.Errorf("Expected source livejournal, got %v", response["source"])
	}
	if response["posts_created"].(float64) != 120 {
		t.Errorf("Expected 120 posts created, got %v", response["posts_created"])
	}
	if response["status"] != "completed" {
		t.Errorf("Expected status completed, got %v", response["status"])
	}
}

func TestGetImportRun_NotFound(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := serve(router, "GET", "/v1/imports/nonexistent")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestListImportRuns(t *testing.T) {
	router, ts, _ := setupTestRouter(t)
	ts.imports.Runs["a"] = &models.ImportRun{ID: "a", Source: models.SourceVox, Status: models.ImportRunFailed, Error: "unknown format"}
	ts.imports.Runs["b"] = &models.ImportRun{ID: "b", Source: models.SourceTumblr, Status: models.ImportRunCompleted}

	w := serve(router, "GET", "/v1/imports")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Runs  []models.ImportRun `json:"runs"`
		Count int                `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Count != 2 || len(response.Runs) != 2 {
		t.Errorf("Expected 2 runs, got %d", response.Count)
	}

	w = serve(router, "GET", "/v1/imports?limit=1")
	json.Unmarshal(w.Body.Bytes(), &response)
	if response.Count != 1 {
		t.Errorf("Expected 1 run with limit, got %d", response.Count)
	}

	for _, limit := range []string{"0", "-3", "ten"} {
		w = serve(router, "GET", "/v1/imports?limit="+limit)
		if w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected status 400, got %d", limit, w.Code)
		}
	}
}

func TestExportStream(t *testing.T) {
	router, ts, _ := setupTestRouter(t)

	var gotFormat string
	ts.exports.StreamPostsFunc = func(ctx context.Context, w http.ResponseWriter, format string) error {
		gotFormat = format
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"id":"p1"}` + "\n"))
		return nil
	}

	w := serve(router, "GET", "/v1/exports?resource=posts")
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if gotFormat != "ndjson" {
		t.Errorf("Expected default format ndjson, got %q", gotFormat)
	}
	if w.Body.String() != "{\"id\":\"p1\"}\n" {
		t.Errorf("Unexpected body: %s", w.Body.String())
	}
}

func TestExportStream_FailureBeforeWrite(t *testing.T) {
	router, ts, _ := setupTestRouter(t)
	ts.exports.StreamCommentsFunc = func(ctx context.Context, w http.ResponseWriter, format string) error {
		return errors.New("database gone")
	}

	w := serve(router, "GET", "/v1/exports?resource=comments&format=json")
	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", w.Code)
	}
}

func TestExportStream_ValidationErrors(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	tests := []struct {
		name           string
		url            string
		expectedStatus int
		expectedError  string
	}{
		{
			name:           "missing resource",
			url:            "/v1/exports",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "resource parameter is required",
		},
		{
			name:           "invalid resource",
			url:            "/v1/exports?resource=users",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "resource must be one of",
		},
		{
			name:           "invalid format",
			url:            "/v1/exports?resource=posts&format=xml",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "format must be one of",
		},
		{
			name:           "csv not supported for comments",
			url:            "/v1/exports?resource=comments&format=csv",
			expectedStatus: http.StatusBadRequest,
			expectedError:  "CSV format only supported for posts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, "GET", tt.url)

			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}

			if tt.expectedError != "" && !bytes.Contains(w.Body.Bytes(), []byte(tt.expectedError)) {
				t.Errorf("Expected error '%s' in response, got: %s", tt.expectedError, w.Body.String())
			}
		})
	}
}

func TestLegacyRedirect(t *testing.T) {
	router, ts, _ := setupTestRouter(t)
	ts.links.Targets["alice.livejournal.com/1.html"] = "http://alice.example.com/first"

	w := serve(router, "GET", "/legacy?url=http%3A%2F%2Falice.livejournal.com%2F1.html%3Fthread%3D5%23t5")
	if w.Code != http.StatusMovedPermanently {
		t.Fatalf("Expected status 301, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "http://alice.example.com/first?thread=5#t5" {
		t.Errorf("Unexpected Location %q", loc)
	}

	w = serve(router, "GET", "/v1/legacy-urls?url=http://alice.livejournal.com/1.html")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var response map[string]string
	json.Unmarshal(w.Body.Bytes(), &response)
	if response["permalink"] != "http://alice.example.com/first" {
		t.Errorf("Unexpected permalink %q", response["permalink"])
	}
}

func TestLegacyRedirect_Errors(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	tests := []struct {
		name           string
		url            string
		expectedStatus int
		expectedError  string
	}{
		{"missing url", "/legacy", http.StatusBadRequest, "url: is required"},
		{"relative url", "/legacy?url=1.html", http.StatusBadRequest, "must be an absolute URL"},
		{"unknown post", "/legacy?url=http://alice.livejournal.com/9.html", http.StatusNotFound, "no imported post"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, "GET", tt.url)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if !bytes.Contains(w.Body.Bytes(), []byte(tt.expectedError)) {
				t.Errorf("Expected error '%s' in response, got: %s", tt.expectedError, w.Body.String())
			}
		})
	}
}

func TestMediaFiles(t *testing.T) {
	router, _, mediaRoot := setupTestRouter(t)

	dir := filepath.Join(mediaRoot, "2009", "01")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cat.txt"), []byte("meow"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := serve(router, "GET", "/media/2009/01/cat.txt")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "meow" {
		t.Errorf("Unexpected body %q", w.Body.String())
	}

	w = serve(router, "GET", "/media/2009/01/dog.txt")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := serve(router, "OPTIONS", "/v1/imports")
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204 for OPTIONS, got %d", w.Code)
	}

	if allowOrigin := w.Header().Get("Access-Control-Allow-Origin"); allowOrigin != "*" {
		t.Errorf("Expected Access-Control-Allow-Origin '*', got '%s'", allowOrigin)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Expected Access-Control-Allow-Methods header")
	}
}
