package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bee-cms/bee/internal/database"
	"github.com/bee-cms/bee/internal/models"
	"github.com/lib/pq"
)

// ErrDuplicate is returned when a write hits a unique constraint. Importers
// look records up before writing, so seeing this means two writers raced.
var ErrDuplicate = errors.New("duplicate record")

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Count(ctx context.Context) (int, error)
}

// IdentityRepository defines the interface for external identity operations
type IdentityRepository interface {
	Create(ctx context.Context, identity *models.Identity) error
	BindUser(ctx context.Context, identityID, userID string) error
	GetByIdentifier(ctx context.Context, identifier string) (*models.Identity, error)
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	GetByAtomID(ctx context.Context, atomID string) (*models.Post, error)
	// SlugExists reports whether another post by the author uses slug.
	// The post with excludeID is ignored; pass "" to check all posts.
	SlugExists(ctx context.Context, authorID, slug, excludeID string) (bool, error)
	Count(ctx context.Context) (int, error)
	StreamByAuthor(ctx context.Context, authorID string, callback func(*models.Post) error) error
	StreamAll(ctx context.Context, callback func(*models.Post) error) error
}

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.PostComment) error
	Update(ctx context.Context, comment *models.PostComment) error
	GetByAtomID(ctx context.Context, atomID string) (*models.PostComment, error)
	Count(ctx context.Context) (int, error)
	StreamAll(ctx context.Context, callback func(*models.PostComment) error) error
}

// AssetRepository defines the interface for stored file records
type AssetRepository interface {
	Create(ctx context.Context, asset *models.Asset) error
	GetByOriginalURL(ctx context.Context, authorID, originalURL string) (*models.Asset, error)
	AttachToPost(ctx context.Context, assetID, postID string) error
	ListForPost(ctx context.Context, postID string) ([]*models.Asset, error)
	Count(ctx context.Context) (int, error)
}

// TrustGroupRepository defines the interface for sharing circle operations
type TrustGroupRepository interface {
	Create(ctx context.Context, group *models.TrustGroup) error
	GetByTag(ctx context.Context, userID, tag string) (*models.TrustGroup, error)
	// SetMemberships replaces the identity's membership in the owner's
	// groups with exactly groupIDs.
	SetMemberships(ctx context.Context, ownerID, identityID string, groupIDs []string) error
	ListMembers(ctx context.Context, groupID string) ([]string, error)
}

// AvatarRepository defines the interface for avatar operations
type AvatarRepository interface {
	Create(ctx context.Context, avatar *models.Avatar) error
	GetByName(ctx context.Context, userID, name string) (*models.Avatar, error)
}

// LegacyURLRepository defines the interface for old-permalink mappings
type LegacyURLRepository interface {
	Create(ctx context.Context, legacy *models.PostLegacyURL) error
	GetByPostID(ctx context.Context, postID string) (*models.PostLegacyURL, error)
	GetByLocation(ctx context.Context, netloc, path string) (*models.PostLegacyURL, error)
}

// ImportRunRepository defines the interface for the import run ledger
type ImportRunRepository interface {
	Create(ctx context.Context, run *models.ImportRun) error
	Update(ctx context.Context, run *models.ImportRun) error
	GetByID(ctx context.Context, id string) (*models.ImportRun, error)
	ListRecent(ctx context.Context, limit int) ([]*models.ImportRun, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	User       UserRepository
	Identity   IdentityRepository
	Post       PostRepository
	Comment    CommentRepository
	Asset      AssetRepository
	TrustGroup TrustGroupRepository
	Avatar     AvatarRepository
	LegacyURL  LegacyURLRepository
	ImportRun  ImportRunRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		User:       NewUserRepo(db),
		Identity:   NewIdentityRepo(db),
		Post:       NewPostRepo(db),
		Comment:    NewCommentRepo(db),
		Asset:      NewAssetRepo(db),
		TrustGroup: NewTrustGroupRepo(db),
		Avatar:     NewAvatarRepo(db),
		LegacyURL:  NewLegacyURLRepo(db),
		ImportRun:  NewImportRunRepo(db),
	}
}

const uniqueViolation = "23505"

// mapError turns Postgres unique violations into ErrDuplicate.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	return err
}

// helper to convert empty string to NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
