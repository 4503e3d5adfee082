// Package servicemocks holds in-memory service implementations for handler tests.
package servicemocks

import (
	"context"
	"net/http"

	"github.com/bee-cms/bee/internal/importer"
	"github.com/bee-cms/bee/internal/linkfix"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/service"
)

// MockImportService is a mock implementation of ImportService
type MockImportService struct {
	Runs    map[string]*models.ImportRun
	Authors map[string]*models.User
	RunFunc func(ctx context.Context, src importer.Source, path string, author *models.User) (*models.ImportRun, error)
}

// Verify interface compliance
var _ service.ImportService = (*MockImportService)(nil)

func NewMockImportService() *MockImportService {
	return &MockImportService{
		Runs:    make(map[string]*models.ImportRun),
		Authors: make(map[string]*models.User),
	}
}

func (m *MockImportService) EnsureAuthor(ctx context.Context, username, siteDomain string) (*models.User, error) {
	if u, ok := m.Authors[username]; ok {
		return u, nil
	}
	u := &models.User{ID: "user-" + username, Username: username, SiteDomain: siteDomain}
	m.Authors[username] = u
	return u, nil
}

func (m *MockImportService) Run(ctx context.Context, src importer.Source, path string, author *models.User) (*models.ImportRun, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, src, path, author)
	}
	run := &models.ImportRun{
		ID:       "test-run-id",
		Source:   src.Name(),
		Path:     path,
		AuthorID: author.ID,
		Status:   models.ImportRunCompleted,
	}
	m.Runs[run.ID] = run
	return run, nil
}

func (m *MockImportService) GetRun(ctx context.Context, id string) (*models.ImportRun, error) {
	return m.Runs[id], nil
}

func (m *MockImportService) ListRuns(ctx context.Context, limit int) ([]*models.ImportRun, error) {
	runs := make([]*models.ImportRun, 0, len(m.Runs))
	for _, r := range m.Runs {
		runs = append(runs, r)
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// MockExportService is a mock implementation of ExportService
type MockExportService struct {
	StreamPostsFunc    func(ctx context.Context, w http.ResponseWriter, format string) error
	StreamCommentsFunc func(ctx context.Context, w http.ResponseWriter, format string) error
	Counts             map[string]int
}

// Verify interface compliance
var _ service.ExportService = (*MockExportService)(nil)

func NewMockExportService() *MockExportService {
	return &MockExportService{
		Counts: map[string]int{
			"users":    0,
			"posts":    0,
			"comments": 0,
			"assets":   0,
		},
	}
}

func (m *MockExportService) StreamPosts(ctx context.Context, w http.ResponseWriter, format string) error {
	if m.StreamPostsFunc != nil {
		return m.StreamPostsFunc(ctx, w, format)
	}
	return nil
}

func (m *MockExportService) StreamComments(ctx context.Context, w http.ResponseWriter, format string) error {
	if m.StreamCommentsFunc != nil {
		return m.StreamCommentsFunc(ctx, w, format)
	}
	return nil
}

func (m *MockExportService) GetCount(ctx context.Context, resource string) (int, error) {
	return m.Counts[resource], nil
}

// MockLinkService is a mock implementation of LinkService. Targets maps
// netloc+path to a permalink.
type MockLinkService struct {
	Targets  map[string]string
	Rewrites []string
}

// Verify interface compliance
var _ service.LinkService = (*MockLinkService)(nil)

func NewMockLinkService() *MockLinkService {
	return &MockLinkService{Targets: make(map[string]string)}
}

func (m *MockLinkService) Resolve(ctx context.Context, netloc, path string) (string, error) {
	return m.Targets[netloc+path], nil
}

func (m *MockLinkService) RewriteLinks(ctx context.Context, authorID string) (*linkfix.Stats, error) {
	m.Rewrites = append(m.Rewrites, authorID)
	return &linkfix.Stats{}, nil
}
