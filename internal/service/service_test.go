package service_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bee-cms/bee/internal/config"
	"github.com/bee-cms/bee/internal/importer"
	"github.com/bee-cms/bee/internal/mocks"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/bee-cms/bee/internal/service"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServices(t *testing.T) (*service.Services, *repository.Repositories) {
	t.Helper()
	repos := mocks.NewRepositories()
	cfg := &config.Config{
		Import: config.ImportConfig{DefaultUser: "admin", SiteDomain: "blog.example.com", HTTPTimeout: time.Second},
	}
	return service.NewServices(repos, cfg, zerolog.Nop()), repos
}

type fakeSource struct {
	result *importer.Result
	err    error
	run    func(ctx context.Context, author *models.User) error
}

func (f *fakeSource) Name() string { return models.SourceTumblr }

func (f *fakeSource) Import(ctx context.Context, author *models.User) (*importer.Result, error) {
	if f.run != nil {
		if err := f.run(ctx, author); err != nil {
			return nil, err
		}
	}
	return f.result, f.err
}

func addPost(t *testing.T, repos *repository.Repositories, p *models.Post, legacyPath string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repos.Post.Create(ctx, p))
	if legacyPath != "" {
		require.NoError(t, repos.LegacyURL.Create(ctx, &models.PostLegacyURL{
			ID:     "legacy-" + p.ID,
			PostID: p.ID,
			Netloc: "alice.tumblr.com",
			Path:   legacyPath,
		}))
	}
}

func TestEnsureAuthor(t *testing.T) {
	svcs, repos := newTestServices(t)
	ctx := context.Background()

	admin, err := svcs.Import.EnsureAuthor(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Username)
	assert.Equal(t, "blog.example.com", admin.SiteDomain)
	assert.NotEmpty(t, admin.ID)

	again, err := svcs.Import.EnsureAuthor(ctx, "admin", "")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)

	moved, err := svcs.Import.EnsureAuthor(ctx, "admin", "new.example.com")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, moved.ID)

	stored, err := repos.User.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", stored.SiteDomain)

	count, err := repos.User.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunRecordsCompletedImport(t *testing.T) {
	svcs, repos := newTestServices(t)
	ctx := context.Background()
	author, err := svcs.Import.EnsureAuthor(ctx, "alice", "alice.example.com")
	require.NoError(t, err)

	src := &fakeSource{
		result: &importer.Result{PostsCreated: 2, CommentsCreated: 3, AssetsReused: 1, Skipped: 4},
		run: func(ctx context.Context, author *models.User) error {
			addPost(t, repos, &models.Post{ID: "p1", AuthorID: author.ID, AtomID: "a1", Slug: "first",
				HTML: `<a href="/post/2">next</a>`, Published: time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)}, "/post/1")
			addPost(t, repos, &models.Post{ID: "p2", AuthorID: author.ID, AtomID: "a2", Slug: "second",
				HTML: "<p>two</p>", Published: time.Date(2009, 1, 2, 0, 0, 0, 0, time.UTC)}, "/post/2")
			return nil
		},
	}

	run, err := svcs.Import.Run(ctx, src, "/tmp/export", author)
	require.NoError(t, err)
	assert.Equal(t, models.ImportRunCompleted, run.Status)
	assert.Equal(t, models.SourceTumblr, run.Source)
	assert.Equal(t, "/tmp/export", run.Path)
	assert.Equal(t, author.ID, run.AuthorID)
	assert.Equal(t, 2, run.PostsCreated)
	assert.Equal(t, 3, run.CommentsCreated)
	assert.Equal(t, 1, run.AssetsReused)
	assert.Equal(t, 4, run.Skipped)
	assert.Empty(t, run.Error)
	require.NotNil(t, run.CompletedAt)

	stored, err := svcs.Import.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportRunCompleted, stored.Status)

	// Links to siblings are rewritten once the whole import is in.
	first, err := repos.Post.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Contains(t, first.HTML, `href="http://alice.example.com/second"`)
}

func TestRunRecordsFailedImport(t *testing.T) {
	svcs, _ := newTestServices(t)
	ctx := context.Background()
	author, err := svcs.Import.EnsureAuthor(ctx, "alice", "")
	require.NoError(t, err)

	src := &fakeSource{err: importer.ErrMalformedRecord}
	run, err := svcs.Import.Run(ctx, src, "export.xml", author)
	assert.ErrorIs(t, err, importer.ErrMalformedRecord)
	require.NotNil(t, run)
	assert.Equal(t, models.ImportRunFailed, run.Status)
	assert.Equal(t, importer.ErrMalformedRecord.Error(), run.Error)

	stored, err := svcs.Import.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImportRunFailed, stored.Status)
	assert.NotEmpty(t, stored.Error)
}

func TestRunPropagatesRecordFailure(t *testing.T) {
	svcs, repos := newTestServices(t)
	ctx := context.Background()
	author, err := svcs.Import.EnsureAuthor(ctx, "alice", "")
	require.NoError(t, err)

	boom := errors.New("disk full")
	repos.ImportRun = &failingRunRepo{ImportRunRepository: repos.ImportRun, err: boom}
	svcs = service.NewServices(repos, &config.Config{Import: config.ImportConfig{DefaultUser: "admin"}}, zerolog.Nop())

	_, err = svcs.Import.Run(ctx, &fakeSource{result: &importer.Result{}}, "x", author)
	assert.ErrorIs(t, err, boom)
}

type failingRunRepo struct {
	repository.ImportRunRepository
	err error
}

func (r *failingRunRepo) Update(ctx context.Context, run *models.ImportRun) error { return r.err }

func TestListRuns(t *testing.T) {
	svcs, repos := newTestServices(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, repos.ImportRun.Create(ctx, &models.ImportRun{
			ID:        id,
			Source:    models.SourceVox,
			Status:    models.ImportRunCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	runs, err := svcs.Import.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)

	runs, err = svcs.Import.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func seedExport(t *testing.T, repos *repository.Repositories) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repos.User.Create(ctx, &models.User{ID: "u1", Username: "alice", SiteDomain: "alice.example.com"}))
	addPost(t, repos, &models.Post{ID: "p1", AuthorID: "u1", AtomID: "a1", Slug: "first", Title: "First, really",
		Tags: []string{"a", "b"}, Published: time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)}, "/post/1")
	addPost(t, repos, &models.Post{ID: "p2", AuthorID: "u1", AtomID: "a2", Slug: "second", Private: true,
		Published: time.Date(2009, 1, 2, 0, 0, 0, 0, time.UTC)}, "/post/2")
	require.NoError(t, repos.Comment.Create(ctx, &models.PostComment{ID: "c1", PostID: "p1", AtomID: "ca1",
		Body: "hi", UserName: "bob", IsPublic: true, SubmittedAt: time.Date(2009, 1, 3, 0, 0, 0, 0, time.UTC)}))
}

func TestStreamPostsNDJSON(t *testing.T) {
	svcs, repos := newTestServices(t)
	seedExport(t, repos)

	w := httptest.NewRecorder()
	require.NoError(t, svcs.Export.StreamPosts(context.Background(), w, "ndjson"))
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=posts.ndjson", w.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 2)
	var first models.Post
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "p1", first.ID)
	assert.Equal(t, []string{"a", "b"}, first.Tags)
}

func TestStreamPostsJSON(t *testing.T) {
	svcs, repos := newTestServices(t)
	seedExport(t, repos)

	w := httptest.NewRecorder()
	require.NoError(t, svcs.Export.StreamPosts(context.Background(), w, "json"))

	var posts []models.Post
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &posts))
	require.Len(t, posts, 2)
	assert.Equal(t, "second", posts[1].Slug)
	assert.True(t, posts[1].Private)
}

func TestStreamPostsCSV(t *testing.T) {
	svcs, repos := newTestServices(t)
	seedExport(t, repos)

	w := httptest.NewRecorder()
	require.NoError(t, svcs.Export.StreamPosts(context.Background(), w, "csv"))
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))

	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "slug", records[0][2])
	assert.Equal(t, []string{"p1", "u1", "first", "First, really", "a1", "false", "false", "a,b", "2009-01-01T00:00:00Z"}, records[1])
}

func TestStreamComments(t *testing.T) {
	svcs, repos := newTestServices(t)
	seedExport(t, repos)

	w := httptest.NewRecorder()
	require.NoError(t, svcs.Export.StreamComments(context.Background(), w, "json"))
	var comments []models.PostComment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comments))
	require.Len(t, comments, 1)
	assert.Equal(t, "bob", comments[0].UserName)

	// An empty store is still a valid document.
	svcs, _ = newTestServices(t)
	w = httptest.NewRecorder()
	require.NoError(t, svcs.Export.StreamComments(context.Background(), w, "json"))
	assert.Equal(t, "[]", w.Body.String())
}

func TestStreamRejectsUnknownFormat(t *testing.T) {
	svcs, _ := newTestServices(t)
	assert.Error(t, svcs.Export.StreamPosts(context.Background(), httptest.NewRecorder(), "xml"))
	assert.Error(t, svcs.Export.StreamComments(context.Background(), httptest.NewRecorder(), "csv"))
}

func TestGetCount(t *testing.T) {
	svcs, repos := newTestServices(t)
	seedExport(t, repos)
	ctx := context.Background()

	for resource, want := range map[string]int{"users": 1, "posts": 2, "comments": 1, "assets": 0} {
		got, err := svcs.Export.GetCount(ctx, resource)
		require.NoError(t, err)
		assert.Equal(t, want, got, resource)
	}

	_, err := svcs.Export.GetCount(ctx, "articles")
	assert.Error(t, err)
}

func TestResolveLegacyURL(t *testing.T) {
	svcs, repos := newTestServices(t)
	seedExport(t, repos)
	ctx := context.Background()

	target, err := svcs.Links.Resolve(ctx, "alice.tumblr.com", "/post/1")
	require.NoError(t, err)
	assert.Equal(t, "http://alice.example.com/first", target)

	// Private posts are not revealed.
	target, err = svcs.Links.Resolve(ctx, "alice.tumblr.com", "/post/2")
	require.NoError(t, err)
	assert.Empty(t, target)

	target, err = svcs.Links.Resolve(ctx, "alice.tumblr.com", "/post/9")
	require.NoError(t, err)
	assert.Empty(t, target)
}

func TestRewriteLinks(t *testing.T) {
	svcs, repos := newTestServices(t)
	seedExport(t, repos)
	addPost(t, repos, &models.Post{ID: "p3", AuthorID: "u1", AtomID: "a3", Slug: "third",
		HTML: `<a href="http://alice.tumblr.com/post/1">one</a>`, Published: time.Date(2009, 1, 4, 0, 0, 0, 0, time.UTC)}, "/post/3")

	stats, err := svcs.Links.RewriteLinks(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Checked)
	assert.Equal(t, 1, stats.Updated)
}
