package repository

import (
	"context"
	"database/sql"

	"github.com/bee-cms/bee/internal/database"
	"github.com/bee-cms/bee/internal/models"
)

// commentRepo is the concrete implementation of CommentRepository
type commentRepo struct {
	db *database.DB
}

// NewCommentRepo creates a new comment repository
func NewCommentRepo(db *database.DB) CommentRepository {
	return &commentRepo{db: db}
}

const commentColumns = `id, post_id, in_reply_to_id, atom_id, avatar_id, title, body, user_id,
	user_name, user_url, user_email, is_public, is_removed, submitted_at`

// Create inserts a new comment
func (r *commentRepo) Create(ctx context.Context, c *models.PostComment) error {
	query := `
		INSERT INTO post_comments (` + commentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.PostID, nullString(c.InReplyToID), nullString(c.AtomID), nullString(c.AvatarID),
		c.Title, c.Body, nullString(c.UserID), c.UserName, c.UserURL, c.UserEmail,
		c.IsPublic, c.IsRemoved, c.SubmittedAt,
	)
	return mapError(err)
}

// Update rewrites an imported comment in place. is_removed is left alone
// so local moderation survives a re-import.
func (r *commentRepo) Update(ctx context.Context, c *models.PostComment) error {
	query := `
		UPDATE post_comments SET
			post_id = $1, in_reply_to_id = $2, avatar_id = $3, title = $4, body = $5, user_id = $6,
			user_name = $7, user_url = $8, user_email = $9, is_public = $10, submitted_at = $11
		WHERE id = $12
	`
	_, err := r.db.ExecContext(ctx, query,
		c.PostID, nullString(c.InReplyToID), nullString(c.AvatarID), c.Title, c.Body,
		nullString(c.UserID), c.UserName, c.UserURL, c.UserEmail, c.IsPublic, c.SubmittedAt, c.ID,
	)
	return mapError(err)
}

// GetByAtomID retrieves a comment by its import key
func (r *commentRepo) GetByAtomID(ctx context.Context, atomID string) (*models.PostComment, error) {
	c, err := scanComment(r.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM post_comments WHERE atom_id = $1`, atomID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanComment(row rowScanner) (*models.PostComment, error) {
	var c models.PostComment
	var inReplyTo, atomID, avatarID, userID sql.NullString
	err := row.Scan(
		&c.ID, &c.PostID, &inReplyTo, &atomID, &avatarID, &c.Title, &c.Body, &userID,
		&c.UserName, &c.UserURL, &c.UserEmail, &c.IsPublic, &c.IsRemoved, &c.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	c.InReplyToID = inReplyTo.String
	c.AtomID = atomID.String
	c.AvatarID = avatarID.String
	c.UserID = userID.String
	return &c, nil
}

// Count returns the total number of comments
func (r *commentRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM post_comments").Scan(&count)
	return count, err
}

// StreamAll streams all comments for export (memory efficient)
func (r *commentRepo) StreamAll(ctx context.Context, callback func(*models.PostComment) error) error {
	rows, err := r.db.QueryContext(ctx, `SELECT `+commentColumns+` FROM post_comments ORDER BY submitted_at`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return err
		}
		if err := callback(c); err != nil {
			return err
		}
	}

	return rows.Err()
}
