package models

import (
	"time"
)

// MaxSlugLength matches the posts.slug column.
const MaxSlugLength = 80

// Post is a blog entry. AtomID is the upsert key for imports and
// (AuthorID, Slug) is unique.
type Post struct {
	ID              string    `json:"id" db:"id"`
	AuthorID        string    `json:"author_id" db:"author_id"`
	AvatarID        string    `json:"avatar_id,omitempty" db:"avatar_id"`
	Title           string    `json:"title" db:"title"`
	HTML            string    `json:"html" db:"html"`
	Slug            string    `json:"slug" db:"slug"`
	AtomID          string    `json:"atom_id" db:"atom_id"`
	Tags            []string  `json:"tags,omitempty" db:"tags"`
	Private         bool      `json:"private" db:"private"`
	PrivateTo       []string  `json:"private_to,omitempty" db:"-"`
	CommentsEnabled bool      `json:"comments_enabled" db:"comments_enabled"`
	Published       time.Time `json:"published" db:"published"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	ModifiedAt      time.Time `json:"modified_at" db:"modified_at"`
}

// NewPost returns a post with the column defaults applied.
func NewPost(atomID string) *Post {
	return &Post{
		AtomID:          atomID,
		Private:         true,
		CommentsEnabled: true,
	}
}

// Permalink is the post's address on its author's site.
func (p *Post) Permalink(siteDomain string) string {
	return "http://" + siteDomain + "/" + p.Slug
}

// PostComment is a comment on a post, optionally a reply to another comment.
type PostComment struct {
	ID          string    `json:"id" db:"id"`
	PostID      string    `json:"post_id" db:"post_id"`
	InReplyToID string    `json:"in_reply_to,omitempty" db:"in_reply_to_id"`
	AtomID      string    `json:"atom_id,omitempty" db:"atom_id"`
	AvatarID    string    `json:"avatar_id,omitempty" db:"avatar_id"`
	Title       string    `json:"title" db:"title"`
	Body        string    `json:"body" db:"body"`
	UserID      string    `json:"user_id,omitempty" db:"user_id"`
	UserName    string    `json:"user_name" db:"user_name"`
	UserURL     string    `json:"user_url,omitempty" db:"user_url"`
	UserEmail   string    `json:"user_email,omitempty" db:"user_email"`
	IsPublic    bool      `json:"is_public" db:"is_public"`
	IsRemoved   bool      `json:"is_removed" db:"is_removed"`
	SubmittedAt time.Time `json:"submitted_at" db:"submitted_at"`
}

// PostLegacyURL maps an address on the old platform to an imported post.
// (Netloc, Path) is unique.
type PostLegacyURL struct {
	ID     string `json:"id" db:"id"`
	PostID string `json:"post_id" db:"post_id"`
	Netloc string `json:"netloc" db:"netloc"`
	Path   string `json:"path" db:"path"`
}
