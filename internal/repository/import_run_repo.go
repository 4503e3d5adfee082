package repository

import (
	"context"
	"database/sql"

	"github.com/bee-cms/bee/internal/database"
	"github.com/bee-cms/bee/internal/models"
)

// importRunRepo is the concrete implementation of ImportRunRepository
type importRunRepo struct {
	db *database.DB
}

// NewImportRunRepo creates a new import run repository
func NewImportRunRepo(db *database.DB) ImportRunRepository {
	return &importRunRepo{db: db}
}

const importRunColumns = `id, source, path, author_id, status, posts_created, posts_updated,
	comments_created, comments_updated, assets_created, assets_reused, groups_created, skipped,
	duration_ms, error, started_at, completed_at`

// Create inserts a new run
func (r *importRunRepo) Create(ctx context.Context, run *models.ImportRun) error {
	query := `
		INSERT INTO import_runs (id, source, path, author_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Source, run.Path, nullString(run.AuthorID), run.Status, run.StartedAt,
	)
	return err
}

// Update updates run status and counters
func (r *importRunRepo) Update(ctx context.Context, run *models.ImportRun) error {
	query := `
		UPDATE import_runs SET
			status = $1, posts_created = $2, posts_updated = $3, comments_created = $4,
			comments_updated = $5, assets_created = $6, assets_reused = $7, groups_created = $8,
			skipped = $9, duration_ms = $10, error = $11, completed_at = $12
		WHERE id = $13
	`
	_, err := r.db.ExecContext(ctx, query,
		run.Status, run.PostsCreated, run.PostsUpdated, run.CommentsCreated,
		run.CommentsUpdated, run.AssetsCreated, run.AssetsReused, run.GroupsCreated,
		run.Skipped, run.DurationMs, nullString(run.Error), nullTime(run.CompletedAt), run.ID,
	)
	return err
}

// GetByID retrieves a run by ID
func (r *importRunRepo) GetByID(ctx context.Context, id string) (*models.ImportRun, error) {
	run, err := scanImportRun(r.db.QueryRowContext(ctx,
		`SELECT `+importRunColumns+` FROM import_runs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRecent returns the most recently started runs
func (r *importRunRepo) ListRecent(ctx context.Context, limit int) ([]*models.ImportRun, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+importRunColumns+` FROM import_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.ImportRun
	for rows.Next() {
		run, err := scanImportRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanImportRun(row rowScanner) (*models.ImportRun, error) {
	var run models.ImportRun
	var authorID, errText sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&run.ID, &run.Source, &run.Path, &authorID, &run.Status, &run.PostsCreated, &run.PostsUpdated,
		&run.CommentsCreated, &run.CommentsUpdated, &run.AssetsCreated, &run.AssetsReused,
		&run.GroupsCreated, &run.Skipped, &run.DurationMs, &errText, &run.StartedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.AuthorID = authorID.String
	run.Error = errText.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}
