// Package importer migrates exports of legacy blogging platforms into bee.
//
// Every importer is safe to rerun: posts and comments are looked up by their
// atom id, assets by their original URL, groups by tag and identities by
// identifier before anything is created, so a second run updates records in
// place instead of duplicating them.
package importer

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bee-cms/bee/internal/assets"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/bee-cms/bee/internal/slug"
	"github.com/bee-cms/bee/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

var (
	// ErrUnknownFormat is returned for text or privacy formats an importer
	// does not know how to interpret.
	ErrUnknownFormat = errors.New("unknown format")
	// ErrMalformedRecord is returned when an export record lacks a required
	// field or has one that cannot be parsed.
	ErrMalformedRecord = errors.New("malformed export record")
)

// PostObserver is told about every post an importer saved, after all of the
// post's own records are written.
type PostObserver interface {
	PostSaved(ctx context.Context, post *models.Post, created bool) error
}

// Source is a configured importer.
type Source interface {
	Name() string
	Import(ctx context.Context, author *models.User) (*Result, error)
}

// Result counts what an import run did.
type Result struct {
	PostsCreated    int `json:"posts_created"`
	PostsUpdated    int `json:"posts_updated"`
	CommentsCreated int `json:"comments_created"`
	CommentsUpdated int `json:"comments_updated"`
	AssetsCreated   int `json:"assets_created"`
	AssetsReused    int `json:"assets_reused"`
	GroupsCreated   int `json:"groups_created"`
	Skipped         int `json:"skipped"`
}

// Deps are the collaborators shared by all importers.
type Deps struct {
	Repos     *repository.Repositories
	Store     storage.Store
	Slugs     *slug.Allocator
	Observers []PostObserver
	Log       zerolog.Logger
}

// base holds the find-or-create helpers every importer builds on.
type base struct {
	repos     *repository.Repositories
	store     storage.Store
	slugs     *slug.Allocator
	observers []PostObserver
	resolver  *assets.Resolver
	log       zerolog.Logger
	result    *Result
}

func newBase(name string, deps Deps, paths assets.PathResolver) base {
	log := deps.Log.With().Str("importer", name).Logger()
	slugs := deps.Slugs
	if slugs == nil {
		slugs = slug.New()
	}
	return base{
		repos:     deps.Repos,
		store:     deps.Store,
		slugs:     slugs,
		observers: deps.Observers,
		resolver:  assets.NewResolver(deps.Repos.Asset, deps.Store, paths, log),
		log:       log,
		result:    &Result{},
	}
}

// findPost returns the post stored under atomID, or a new unsaved post.
func (b *base) findPost(ctx context.Context, atomID string) (*models.Post, bool, error) {
	post, err := b.repos.Post.GetByAtomID(ctx, atomID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up post %s: %w", atomID, err)
	}
	if post != nil {
		return post, false, nil
	}
	post = models.NewPost(atomID)
	post.ID = uuid.New().String()
	return post, true, nil
}

// allocateSlug sets post.Slug to the first unused slug from candidates.
func (b *base) allocateSlug(ctx context.Context, post *models.Post, candidates ...string) error {
	s, err := b.slugs.Allocate(ctx, candidates, func(ctx context.Context, s string) (bool, error) {
		return b.repos.Post.SlugExists(ctx, post.AuthorID, s, post.ID)
	})
	if err != nil {
		return fmt.Errorf("failed to allocate slug for %s: %w", post.AtomID, err)
	}
	post.Slug = s
	return nil
}

// resolveAssets imports files the post references and rewrites its HTML.
func (b *base) resolveAssets(ctx context.Context, post *models.Post) ([]*models.Asset, error) {
	res, err := b.resolver.Resolve(ctx, post.HTML, post.AuthorID, post.Published)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve assets for %s: %w", post.AtomID, err)
	}
	post.HTML = res.HTML
	b.result.AssetsCreated += res.Created
	b.result.AssetsReused += res.Reused
	return res.Assets, nil
}

// savePost writes the post and links it to its assets.
func (b *base) savePost(ctx context.Context, post *models.Post, isNew bool, linked []*models.Asset) error {
	if isNew {
		if err := b.repos.Post.Create(ctx, post); err != nil {
			return fmt.Errorf("failed to create post %s: %w", post.AtomID, err)
		}
		b.result.PostsCreated++
	} else {
		if err := b.repos.Post.Update(ctx, post); err != nil {
			return fmt.Errorf("failed to update post %s: %w", post.AtomID, err)
		}
		b.result.PostsUpdated++
	}

	for _, asset := range linked {
		if err := b.repos.Asset.AttachToPost(ctx, asset.ID, post.ID); err != nil {
			return fmt.Errorf("failed to link asset %s to post %s: %w", asset.ID, post.AtomID, err)
		}
	}
	return nil
}

// notify tells the observers about a saved post.
func (b *base) notify(ctx context.Context, post *models.Post, created bool) error {
	for _, o := range b.observers {
		if err := o.PostSaved(ctx, post, created); err != nil {
			return fmt.Errorf("post observer failed for %s: %w", post.AtomID, err)
		}
	}
	return nil
}

// ensureLegacyURL records rawURL as the post's old address unless the post
// already has one.
func (b *base) ensureLegacyURL(ctx context.Context, post *models.Post, rawURL string) error {
	existing, err := b.repos.LegacyURL.GetByPostID(ctx, post.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: bad legacy url %q: %v", ErrMalformedRecord, rawURL, err)
	}
	return b.repos.LegacyURL.Create(ctx, &models.PostLegacyURL{
		ID:     uuid.New().String(),
		PostID: post.ID,
		Netloc: u.Host,
		Path:   u.Path,
	})
}

// findComment returns the comment stored under atomID, or a new one.
func (b *base) findComment(ctx context.Context, atomID string) (*models.PostComment, bool, error) {
	c, err := b.repos.Comment.GetByAtomID(ctx, atomID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up comment %s: %w", atomID, err)
	}
	if c != nil {
		return c, false, nil
	}
	return &models.PostComment{ID: uuid.New().String(), AtomID: atomID}, true, nil
}

func (b *base) saveComment(ctx context.Context, c *models.PostComment, isNew bool) error {
	if isNew {
		if err := b.repos.Comment.Create(ctx, c); err != nil {
			return fmt.Errorf("failed to create comment %s: %w", c.AtomID, err)
		}
		b.result.CommentsCreated++
		return nil
	}
	if err := b.repos.Comment.Update(ctx, c); err != nil {
		return fmt.Errorf("failed to update comment %s: %w", c.AtomID, err)
	}
	b.result.CommentsUpdated++
	return nil
}

// personFor returns the identity for identifier and the user it belongs to,
// creating a placeholder user the first time the identity is seen.
func (b *base) personFor(ctx context.Context, identifier, username, displayName string) (*models.Identity, *models.User, error) {
	ident, err := b.repos.Identity.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up identity %s: %w", identifier, err)
	}
	if ident != nil && ident.UserID != "" {
		user, err := b.repos.User.GetByID(ctx, ident.UserID)
		if err != nil {
			return nil, nil, err
		}
		if user != nil {
			return ident, user, nil
		}
	}

	user, err := b.createUser(ctx, username, displayName)
	if err != nil {
		return nil, nil, err
	}

	if ident == nil {
		ident = &models.Identity{
			ID:         uuid.New().String(),
			Identifier: identifier,
			UserID:     user.ID,
			CreatedAt:  time.Now(),
		}
		if err := b.repos.Identity.Create(ctx, ident); err != nil {
			return nil, nil, fmt.Errorf("failed to create identity %s: %w", identifier, err)
		}
	} else {
		if err := b.repos.Identity.BindUser(ctx, ident.ID, user.ID); err != nil {
			return nil, nil, err
		}
		ident.UserID = user.ID
	}

	b.log.Debug().Str("identity", identifier).Str("username", user.Username).Msg("Created user for identity")
	return ident, user, nil
}

// userFor returns the user behind identifier, if any, without creating one.
func (b *base) userFor(ctx context.Context, identifier string) (*models.User, error) {
	ident, err := b.repos.Identity.GetByIdentifier(ctx, identifier)
	if err != nil || ident == nil || ident.UserID == "" {
		return nil, err
	}
	return b.repos.User.GetByID(ctx, ident.UserID)
}

// claimIdentity binds identifier to user. An identity already bound to
// somebody else is only rebound when force is set.
func (b *base) claimIdentity(ctx context.Context, identifier string, user *models.User, force bool) (*models.Identity, error) {
	ident, err := b.repos.Identity.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if ident == nil {
		ident = &models.Identity{
			ID:         uuid.New().String(),
			Identifier: identifier,
			UserID:     user.ID,
			CreatedAt:  time.Now(),
		}
		if err := b.repos.Identity.Create(ctx, ident); err != nil {
			return nil, fmt.Errorf("failed to create identity %s: %w", identifier, err)
		}
		return ident, nil
	}
	if ident.UserID == "" || (force && ident.UserID != user.ID) {
		if err := b.repos.Identity.BindUser(ctx, ident.ID, user.ID); err != nil {
			return nil, err
		}
		ident.UserID = user.ID
	}
	return ident, nil
}

// groupFor returns the owner's trust group with tag, creating it if needed.
func (b *base) groupFor(ctx context.Context, ownerID, tag, displayName string) (*models.TrustGroup, error) {
	group, err := b.repos.TrustGroup.GetByTag(ctx, ownerID, tag)
	if err != nil {
		return nil, fmt.Errorf("failed to look up group %s: %w", tag, err)
	}
	if group != nil {
		return group, nil
	}
	group = &models.TrustGroup{
		ID:          uuid.New().String(),
		UserID:      ownerID,
		Tag:         tag,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
	}
	if err := b.repos.TrustGroup.Create(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group %s: %w", tag, err)
	}
	b.result.GroupsCreated++
	return group, nil
}

func (b *base) createUser(ctx context.Context, username, displayName string) (*models.User, error) {
	name, err := b.unusedUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	user := &models.User{
		ID:          uuid.New().String(),
		Username:    name,
		DisplayName: strings.ToValidUTF8(displayName, ""),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.repos.User.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", name, err)
	}
	return user, nil
}

const maxUsernameAttempts = 10

func (b *base) unusedUsername(ctx context.Context, want string) (string, error) {
	name := cleanUsername(want)
	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		candidate := name
		if attempt > 0 {
			suffix := uuid.New().String()[:8]
			candidate = truncate(name, models.MaxUsernameLength-len(suffix)-1) + "-" + suffix
		}
		taken, err := b.repos.User.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no unused username for %q after %d attempts", want, maxUsernameAttempts)
}

// cleanUsername keeps the characters allowed in usernames.
func cleanUsername(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '-', r == '.', r == '@', r == '+':
			b.WriteRune(r)
		}
	}
	name := truncate(b.String(), models.MaxUsernameLength)
	if name == "" {
		name = "user"
	}
	return name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// parseTime parses a required date field.
func parseTime(layout, value, what string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: %s has no date", ErrMalformedRecord, what)
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s has unparseable date %q", ErrMalformedRecord, what, value)
	}
	return t, nil
}

// decodeXMLFile decodes the XML document at path into v. A path of "-"
// reads standard input.
func decodeXMLFile(path string, v any) error {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	return decodeXML(r, v, path)
}

func decodeXML(r io.Reader, v any, name string) error {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(v); err != nil {
		return fmt.Errorf("%w: %s is not valid XML: %v", ErrMalformedRecord, name, err)
	}
	return nil
}
