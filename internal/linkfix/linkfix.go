// Package linkfix points links between imported posts at their new homes.
//
// An imported post keeps the HTML it had on the old platform, so links to
// sibling posts still go to the old permalinks. Every imported post has a
// legacy URL, which is enough to find the post a link was meant for.
package linkfix

import (
	"context"
	"fmt"
	"net/url"

	"github.com/bee-cms/bee/internal/markup"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// Stats counts what a bulk rewrite did.
type Stats struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Links   int `json:"links"`
}

// Rewriter rewrites links to legacy permalinks. It can be registered as an
// importer post observer.
type Rewriter struct {
	repos  *repository.Repositories
	log    zerolog.Logger
	owners map[string]*models.User
}

// New creates a Rewriter.
func New(repos *repository.Repositories, log zerolog.Logger) *Rewriter {
	return &Rewriter{
		repos:  repos,
		log:    log.With().Str("component", "linkfix").Logger(),
		owners: make(map[string]*models.User),
	}
}

// PostSaved rewrites the links of a post an importer just saved.
func (r *Rewriter) PostSaved(ctx context.Context, post *models.Post, created bool) error {
	_, err := r.RewritePost(ctx, post)
	return err
}

// RewritePost rewrites links in post that resolve, against the post's own
// legacy URL, to another imported post's legacy URL. The post is saved when a
// link changed. It returns how many links were rewritten.
func (r *Rewriter) RewritePost(ctx context.Context, post *models.Post) (int, error) {
	legacy, err := r.repos.LegacyURL.GetByPostID(ctx, post.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up legacy url of post %s: %w", post.ID, err)
	}
	if legacy == nil {
		return 0, nil
	}
	oldPermalink := &url.URL{Scheme: "http", Host: legacy.Netloc, Path: legacy.Path}

	root, err := markup.ParseFragment(post.HTML)
	if err != nil {
		return 0, err
	}

	rewritten := 0
	var walkErr error
	markup.Walk(root, func(n *html.Node) {
		if walkErr != nil || n.Type != html.ElementNode || n.Data != "a" {
			return
		}
		href, _ := markup.Attr(n, "href")
		if href == "" {
			r.log.Warn().Str("post_id", post.ID).Msg("Skipping empty link")
			return
		}
		link, err := oldPermalink.Parse(href)
		if err != nil {
			r.log.Debug().Str("post_id", post.ID).Str("href", href).Err(err).Msg("Skipping unparseable link")
			return
		}

		var target string
		target, walkErr = r.newURLFor(ctx, link)
		if walkErr != nil || target == "" {
			return
		}
		r.log.Info().Str("post_id", post.ID).Str("from", link.String()).Str("to", target).Msg("Changing link")
		markup.SetAttr(n, "href", target)
		rewritten++
	})
	if walkErr != nil {
		return 0, walkErr
	}
	if rewritten == 0 {
		return 0, nil
	}

	if post.HTML, err = markup.Render(root); err != nil {
		return 0, err
	}
	if err := r.repos.Post.Update(ctx, post); err != nil {
		return 0, fmt.Errorf("failed to save post %s: %w", post.ID, err)
	}
	return rewritten, nil
}

// newURLFor returns the new address for link, or "" when link is not the
// legacy URL of an imported post.
func (r *Rewriter) newURLFor(ctx context.Context, link *url.URL) (string, error) {
	legacy, err := r.repos.LegacyURL.GetByLocation(ctx, link.Host, link.Path)
	if err != nil || legacy == nil {
		return "", err
	}
	target, err := r.repos.Post.GetByID(ctx, legacy.PostID)
	if err != nil || target == nil {
		return "", err
	}
	owner, err := r.owner(ctx, target.AuthorID)
	if err != nil {
		return "", err
	}
	if owner == nil || owner.SiteDomain == "" {
		r.log.Warn().Str("post_id", target.ID).Msg("Linked post's author has no site domain")
		return "", nil
	}

	permalink, err := url.Parse(target.Permalink(owner.SiteDomain))
	if err != nil {
		return "", err
	}
	u := url.URL{
		Scheme:   link.Scheme,
		Host:     permalink.Host,
		Path:     permalink.Path,
		RawQuery: link.RawQuery,
		Fragment: link.Fragment,
	}
	return u.String(), nil
}

func (r *Rewriter) owner(ctx context.Context, userID string) (*models.User, error) {
	if u, ok := r.owners[userID]; ok {
		return u, nil
	}
	u, err := r.repos.User.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	r.owners[userID] = u
	return u, nil
}

// RewriteAuthor rewrites the links of every post by authorID, or of every
// post when authorID is empty. Run it after an import so links to posts that
// were imported later are fixed too.
func (r *Rewriter) RewriteAuthor(ctx context.Context, authorID string) (*Stats, error) {
	var posts []*models.Post
	collect := func(p *models.Post) error {
		posts = append(posts, p)
		return nil
	}
	var err error
	if authorID == "" {
		err = r.repos.Post.StreamAll(ctx, collect)
	} else {
		err = r.repos.Post.StreamByAuthor(ctx, authorID, collect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	stats := &Stats{}
	for _, p := range posts {
		n, err := r.RewritePost(ctx, p)
		if err != nil {
			return stats, err
		}
		stats.Checked++
		stats.Links += n
		if n > 0 {
			stats.Updated++
		}
	}
	r.log.Info().Int("checked", stats.Checked).Int("updated", stats.Updated).Int("links", stats.Links).Msg("Rewrote legacy links")
	return stats, nil
}
