package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bee-cms/bee/internal/database"
	"github.com/bee-cms/bee/internal/models"
	"github.com/lib/pq"
)

// postRepo is the concrete implementation of PostRepository
type postRepo struct {
	db *database.DB
}

// NewPostRepo creates a new post repository
func NewPostRepo(db *database.DB) PostRepository {
	return &postRepo{db: db}
}

const postSelect = `
	SELECT p.id, p.author_id, p.avatar_id, p.title, p.html, p.slug, p.atom_id, p.tags,
		p.private, p.comments_enabled, p.published, p.created_at, p.modified_at,
		ARRAY(SELECT g.group_id::text FROM post_private_to g WHERE g.post_id = p.id ORDER BY g.group_id)
	FROM posts p
`

// Create inserts a post and its private_to grants in one transaction
func (r *postRepo) Create(ctx context.Context, post *models.Post) error {
	now := time.Now()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.ModifiedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (id, author_id, avatar_id, title, html, slug, atom_id, tags,
			private, comments_enabled, published, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		post.ID, post.AuthorID, nullString(post.AvatarID), post.Title, post.HTML, post.Slug,
		post.AtomID, pq.Array(nonNilStrings(post.Tags)), post.Private, post.CommentsEnabled,
		post.Published, post.CreatedAt, post.ModifiedAt,
	)
	if err != nil {
		return mapError(err)
	}

	if err := replacePrivateTo(ctx, tx, post); err != nil {
		return err
	}
	return tx.Commit()
}

// Update rewrites the imported fields of a post and its private_to grants
func (r *postRepo) Update(ctx context.Context, post *models.Post) error {
	post.ModifiedAt = time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE posts SET
			author_id = $1, avatar_id = $2, title = $3, html = $4, slug = $5, tags = $6,
			private = $7, comments_enabled = $8, published = $9, modified_at = $10
		WHERE id = $11
	`,
		post.AuthorID, nullString(post.AvatarID), post.Title, post.HTML, post.Slug,
		pq.Array(nonNilStrings(post.Tags)), post.Private, post.CommentsEnabled,
		post.Published, post.ModifiedAt, post.ID,
	)
	if err != nil {
		return mapError(err)
	}

	if err := replacePrivateTo(ctx, tx, post); err != nil {
		return err
	}
	return tx.Commit()
}

func replacePrivateTo(ctx context.Context, tx *sql.Tx, post *models.Post) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM post_private_to WHERE post_id = $1`, post.ID); err != nil {
		return err
	}
	if len(post.PrivateTo) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO post_private_to (post_id, group_id)
		SELECT DISTINCT $1::uuid, unnest($2::uuid[])
	`, post.ID, pq.Array(post.PrivateTo))
	return err
}

// GetByID retrieves a post by ID
func (r *postRepo) GetByID(ctx context.Context, id string) (*models.Post, error) {
	return r.getOne(ctx, postSelect+` WHERE p.id = $1`, id)
}

// GetByAtomID retrieves a post by its import key
func (r *postRepo) GetByAtomID(ctx context.Context, atomID string) (*models.Post, error) {
	return r.getOne(ctx, postSelect+` WHERE p.atom_id = $1`, atomID)
}

func (r *postRepo) getOne(ctx context.Context, query string, arg string) (*models.Post, error) {
	post, err := scanPost(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return post, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var avatarID sql.NullString
	err := row.Scan(
		&post.ID, &post.AuthorID, &avatarID, &post.Title, &post.HTML, &post.Slug, &post.AtomID,
		pq.Array(&post.Tags), &post.Private, &post.CommentsEnabled, &post.Published,
		&post.CreatedAt, &post.ModifiedAt, pq.Array(&post.PrivateTo),
	)
	if err != nil {
		return nil, err
	}
	post.AvatarID = avatarID.String
	return &post, nil
}

// SlugExists checks the author's namespace for slug, ignoring excludeID
func (r *postRepo) SlugExists(ctx context.Context, authorID, slug, excludeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM posts
			WHERE author_id = $1 AND slug = $2 AND ($3 = '' OR id::text <> $3)
		)
	`, authorID, slug, excludeID).Scan(&exists)
	return exists, err
}

// Count returns the total number of posts
func (r *postRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&count)
	return count, err
}

// StreamByAuthor streams one author's posts in publication order
func (r *postRepo) StreamByAuthor(ctx context.Context, authorID string, callback func(*models.Post) error) error {
	return r.stream(ctx, callback, postSelect+` WHERE p.author_id = $1 ORDER BY p.published`, authorID)
}

// StreamAll streams all posts for export (memory efficient)
func (r *postRepo) StreamAll(ctx context.Context, callback func(*models.Post) error) error {
	return r.stream(ctx, callback, postSelect+` ORDER BY p.published`)
}

func (r *postRepo) stream(ctx context.Context, callback func(*models.Post) error, query string, args ...interface{}) error {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return err
		}
		if err := callback(post); err != nil {
			return err
		}
	}

	return rows.Err()
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
