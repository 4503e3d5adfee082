package linkfix

import (
	"context"
	"testing"
	"time"

	"github.com/bee-cms/bee/internal/mocks"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type linkFixture struct {
	repos  *repository.Repositories
	posts  *mocks.MockPostRepository
	author *models.User
}

func newLinkFixture(t *testing.T) *linkFixture {
	t.Helper()
	repos := mocks.NewRepositories()
	f := &linkFixture{
		repos:  repos,
		posts:  repos.Post.(*mocks.MockPostRepository),
		author: &models.User{ID: "u1", Username: "alice", SiteDomain: "alice.example.com"},
	}
	require.NoError(t, repos.User.Create(context.Background(), f.author))
	return f
}

func (f *linkFixture) addPost(t *testing.T, id, slug, html, legacyPath string) *models.Post {
	t.Helper()
	ctx := context.Background()
	p := &models.Post{
		ID:        id,
		AuthorID:  f.author.ID,
		AtomID:    "atom:" + id,
		Slug:      slug,
		HTML:      html,
		Published: time.Date(2008, 1, len(f.posts.Posts)+1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.repos.Post.Create(ctx, p))
	if legacyPath != "" {
		require.NoError(t, f.repos.LegacyURL.Create(ctx, &models.PostLegacyURL{
			ID:     "legacy-" + id,
			PostID: id,
			Netloc: "alice.livejournal.com",
			Path:   legacyPath,
		}))
	}
	return p
}

const linkingHTML = `<p><a href="1.html?thread=5#t5">relative</a> ` +
	`<a href="https://alice.livejournal.com/1.html">secure</a> ` +
	`<a href="">empty</a> <a href="http://elsewhere.example.net/">external</a></p>`

func TestRewritePost(t *testing.T) {
	f := newLinkFixture(t)
	ctx := context.Background()
	f.addPost(t, "p1", "first", "<p>one</p>", "/1.html")
	linking := f.addPost(t, "p2", "second", linkingHTML, "/2.html")

	r := New(f.repos, zerolog.Nop())
	n, err := r.RewritePost(ctx, linking)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	stored, err := f.repos.Post.GetByID(ctx, "p2")
	require.NoError(t, err)
	assert.Contains(t, stored.HTML, `href="http://alice.example.com/first?thread=5#t5"`)
	assert.Contains(t, stored.HTML, `href="https://alice.example.com/first"`)
	assert.Contains(t, stored.HTML, `href=""`)
	assert.Contains(t, stored.HTML, `href="http://elsewhere.example.net/"`)
	assert.Equal(t, stored.HTML, linking.HTML)

	// Already rewritten links no longer match a legacy URL.
	calls := f.posts.UpdateCalls
	n, err = r.RewritePost(ctx, stored)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, calls, f.posts.UpdateCalls)
}

func TestRewritePostIgnoresPostsWithoutLegacyURL(t *testing.T) {
	f := newLinkFixture(t)
	f.addPost(t, "p1", "first", "<p>one</p>", "/1.html")
	native := f.addPost(t, "p2", "native", `<a href="http://alice.livejournal.com/1.html">x</a>`, "")

	n, err := New(f.repos, zerolog.Nop()).RewritePost(context.Background(), native)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.posts.UpdateCalls)
}

func TestRewritePostSkipsAuthorsWithoutSite(t *testing.T) {
	f := newLinkFixture(t)
	ctx := context.Background()
	f.author.SiteDomain = ""
	require.NoError(t, f.repos.User.Update(ctx, f.author))
	f.addPost(t, "p1", "first", "<p>one</p>", "/1.html")
	linking := f.addPost(t, "p2", "second", linkingHTML, "/2.html")

	n, err := New(f.repos, zerolog.Nop()).RewritePost(ctx, linking)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRewriteAuthor(t *testing.T) {
	f := newLinkFixture(t)
	f.addPost(t, "p1", "first", `<p><a href="2.html">next</a></p>`, "/1.html")
	f.addPost(t, "p2", "second", `<p><a href="1.html">previous</a></p>`, "/2.html")
	f.addPost(t, "p3", "third", `<p>no links</p>`, "/3.html")

	stats, err := New(f.repos, zerolog.Nop()).RewriteAuthor(context.Background(), f.author.ID)
	require.NoError(t, err)
	assert.Equal(t, &Stats{Checked: 3, Updated: 2, Links: 2}, stats)
	assert.Contains(t, f.posts.Posts["p1"].HTML, `href="http://alice.example.com/second"`)
	assert.Contains(t, f.posts.Posts["p2"].HTML, `href="http://alice.example.com/first"`)
}

func TestPostSavedRewritesAsObserver(t *testing.T) {
	f := newLinkFixture(t)
	f.addPost(t, "p1", "first", "<p>one</p>", "/1.html")
	linking := f.addPost(t, "p2", "second", `<a href="/1.html">one</a>`, "/2.html")

	require.NoError(t, New(f.repos, zerolog.Nop()).PostSaved(context.Background(), linking, true))
	assert.Contains(t, f.posts.Posts["p2"].HTML, `href="http://alice.example.com/first"`)
}
