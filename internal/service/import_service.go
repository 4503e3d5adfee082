package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bee-cms/bee/internal/config"
	"github.com/bee-cms/bee/internal/importer"
	"github.com/bee-cms/bee/internal/linkfix"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 100
)

// importService is the concrete implementation of ImportService
type importService struct {
	repos *repository.Repositories
	links *linkfix.Rewriter
	cfg   *config.Config
	log   zerolog.Logger
}

// newImportService creates a new ImportService
func newImportService(repos *repository.Repositories, links *linkfix.Rewriter, cfg *config.Config, log zerolog.Logger) *importService {
	return &importService{
		repos: repos,
		links: links,
		cfg:   cfg,
		log:   log.With().Str("service", "import").Logger(),
	}
}

// EnsureAuthor finds or creates the acting user. Empty arguments fall back
// to the configured defaults.
func (s *importService) EnsureAuthor(ctx context.Context, username, siteDomain string) (*models.User, error) {
	if username == "" {
		username = s.cfg.Import.DefaultUser
	}
	if siteDomain == "" {
		siteDomain = s.cfg.Import.SiteDomain
	}

	user, err := s.repos.User.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", username, err)
	}

	now := time.Now()
	if user == nil {
		user = &models.User{
			ID:          uuid.New().String(),
			Username:    username,
			DisplayName: username,
			SiteDomain:  siteDomain,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repos.User.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user %s: %w", username, err)
		}
		s.log.Info().Str("user_id", user.ID).Str("username", username).Msg("Created import author")
		return user, nil
	}

	if siteDomain != "" && user.SiteDomain != siteDomain {
		user.SiteDomain = siteDomain
		user.UpdatedAt = now
		if err := s.repos.User.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to update user %s: %w", username, err)
		}
	}
	return user, nil
}

// Run executes src for author and records the run. Links to legacy
// permalinks in the author's posts are rewritten once the import succeeds.
// The returned run is set even when the import fails.
func (s *importService) Run(ctx context.Context, src importer.Source, path string, author *models.User) (*models.ImportRun, error) {
	startTime := time.Now()
	run := &models.ImportRun{
		ID:        uuid.New().String(),
		Source:    src.Name(),
		Path:      path,
		AuthorID:  author.ID,
		Status:    models.ImportRunRunning,
		StartedAt: startTime,
	}
	if err := s.repos.ImportRun.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to record import run: %w", err)
	}

	s.log.Info().
		Str("run_id", run.ID).
		Str("source", run.Source).
		Str("path", path).
		Str("author", author.Username).
		Msg("Starting import")

	res, err := src.Import(ctx, author)
	if res != nil {
		applyResult(run, res)
	}
	if err == nil {
		var stats *linkfix.Stats
		if stats, err = s.links.RewriteAuthor(ctx, author.ID); err == nil {
			s.log.Info().Str("run_id", run.ID).Int("links", stats.Links).Msg("Rewrote legacy links")
		}
	}

	run.DurationMs = time.Since(startTime).Milliseconds()
	completedAt := time.Now()
	run.CompletedAt = &completedAt

	if err != nil {
		run.Status = models.ImportRunFailed
		run.Error = err.Error()
		s.log.Error().Err(err).Str("run_id", run.ID).Msg("Import failed")
	} else {
		run.Status = models.ImportRunCompleted
		s.log.Info().
			Str("run_id", run.ID).
			Int("posts_created", run.PostsCreated).
			Int("posts_updated", run.PostsUpdated).
			Int("comments_created", run.CommentsCreated).
			Int("comments_updated", run.CommentsUpdated).
			Int("assets_created", run.AssetsCreated).
			Int("skipped", run.Skipped).
			Int64("duration_ms", run.DurationMs).
			Msg("Import completed")
	}

	if uerr := s.repos.ImportRun.Update(ctx, run); uerr != nil {
		if err == nil {
			return run, fmt.Errorf("failed to record import run: %w", uerr)
		}
		s.log.Error().Err(uerr).Str("run_id", run.ID).Msg("Failed to record failed run")
	}
	return run, err
}

func applyResult(run *models.ImportRun, res *importer.Result) {
	run.PostsCreated = res.PostsCreated
	run.PostsUpdated = res.PostsUpdated
	run.CommentsCreated = res.CommentsCreated
	run.CommentsUpdated = res.CommentsUpdated
	run.AssetsCreated = res.AssetsCreated
	run.AssetsReused = res.AssetsReused
	run.GroupsCreated = res.GroupsCreated
	run.Skipped = res.Skipped
}

// GetRun retrieves a run by ID
func (s *importService) GetRun(ctx context.Context, id string) (*models.ImportRun, error) {
	return s.repos.ImportRun.GetByID(ctx, id)
}

// ListRuns returns the most recent runs first
func (s *importService) ListRuns(ctx context.Context, limit int) ([]*models.ImportRun, error) {
	if limit <= 0 {
		limit = defaultRunLimit
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}
	return s.repos.ImportRun.ListRecent(ctx, limit)
}
