package service

import (
	"context"
	"net/http"

	"github.com/bee-cms/bee/internal/config"
	"github.com/bee-cms/bee/internal/importer"
	"github.com/bee-cms/bee/internal/linkfix"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/rs/zerolog"
)

// ImportService defines the interface for running importers
type ImportService interface {
	// EnsureAuthor returns the user imports are attributed to, creating it
	// when missing. A non-empty siteDomain replaces the stored one.
	EnsureAuthor(ctx context.Context, username, siteDomain string) (*models.User, error)
	Run(ctx context.Context, src importer.Source, path string, author *models.User) (*models.ImportRun, error)
	GetRun(ctx context.Context, id string) (*models.ImportRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.ImportRun, error)
}

// ExportService defines the interface for export operations
type ExportService interface {
	StreamPosts(ctx context.Context, w http.ResponseWriter, format string) error
	StreamComments(ctx context.Context, w http.ResponseWriter, format string) error
	GetCount(ctx context.Context, resource string) (int, error)
}

// LinkService defines the interface for legacy permalink operations
type LinkService interface {
	// Resolve returns the new permalink of the post that used to live at
	// netloc+path, or "" when there is none.
	Resolve(ctx context.Context, netloc, path string) (string, error)
	RewriteLinks(ctx context.Context, authorID string) (*linkfix.Stats, error)
}

// Services holds all service interfaces
type Services struct {
	Import ImportService
	Export ExportService
	Links  LinkService
	// Rewriter is registered as a post observer on importer runs.
	Rewriter *linkfix.Rewriter
}

// NewServices creates all services
func NewServices(repos *repository.Repositories, cfg *config.Config, log zerolog.Logger) *Services {
	rewriter := linkfix.New(repos, log)

	return &Services{
		Import:   newImportService(repos, rewriter, cfg, log),
		Export:   newExportService(repos, log),
		Links:    newLinkService(repos, rewriter, log),
		Rewriter: rewriter,
	}
}
