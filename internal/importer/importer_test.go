package importer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bee-cms/bee/internal/mocks"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/bee-cms/bee/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	deps     Deps
	repos    *repository.Repositories
	store    *storage.LocalStore
	users    *mocks.MockUserRepository
	idents   *mocks.MockIdentityRepository
	posts    *mocks.MockPostRepository
	comments *mocks.MockCommentRepository
	assets   *mocks.MockAssetRepository
	groups   *mocks.MockTrustGroupRepository
	avatars  *mocks.MockAvatarRepository
	legacy   *mocks.MockLegacyURLRepository
	observed *recordingObserver
	author   *models.User
}

type recordingObserver struct {
	created map[string]int
	updated map[string]int
}

func (o *recordingObserver) PostSaved(ctx context.Context, post *models.Post, created bool) error {
	if created {
		o.created[post.AtomID]++
	} else {
		o.updated[post.AtomID]++
	}
	return nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := mocks.NewRepositories()
	store := storage.NewLocalStore(t.TempDir(), "http://media.example.com/")
	f := &fixture{
		repos:    repos,
		store:    store,
		users:    repos.User.(*mocks.MockUserRepository),
		idents:   repos.Identity.(*mocks.MockIdentityRepository),
		posts:    repos.Post.(*mocks.MockPostRepository),
		comments: repos.Comment.(*mocks.MockCommentRepository),
		assets:   repos.Asset.(*mocks.MockAssetRepository),
		groups:   repos.TrustGroup.(*mocks.MockTrustGroupRepository),
		avatars:  repos.Avatar.(*mocks.MockAvatarRepository),
		legacy:   repos.LegacyURL.(*mocks.MockLegacyURLRepository),
		observed: &recordingObserver{created: map[string]int{}, updated: map[string]int{}},
		author: &models.User{
			ID:          "author-1",
			Username:    "alice",
			DisplayName: "Alice",
			SiteDomain:  "alice.example.com",
		},
	}
	require.NoError(t, repos.User.Create(context.Background(), f.author))
	f.deps = Deps{
		Repos:     repos,
		Store:     store,
		Observers: []PostObserver{f.observed},
		Log:       zerolog.Nop(),
	}
	return f
}

func (f *fixture) post(t *testing.T, atomID string) *models.Post {
	t.Helper()
	p, err := f.repos.Post.GetByAtomID(context.Background(), atomID)
	require.NoError(t, err)
	require.NotNil(t, p, "post %s", atomID)
	return p
}

func (f *fixture) comment(t *testing.T, atomID string) *models.PostComment {
	t.Helper()
	c, err := f.repos.Comment.GetByAtomID(context.Background(), atomID)
	require.NoError(t, err)
	require.NotNil(t, c, "comment %s", atomID)
	return c
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// pngBytes returns a w by h PNG.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeFriendMask(t *testing.T) {
	groups := map[int]string{1: "g1", 2: "g2", 29: "g29"}

	tests := []struct {
		name string
		mask uint32
		want []string
	}{
		{"no bits shares with nobody", 0, []string{}},
		{"bit zero alone means all friends", 1, []string{"all"}},
		{"single custom group", 1 << 1, []string{"g1"}},
		{"several custom groups", 1<<1 | 1<<2, []string{"g1", "g2"}},
		{"all-friends bit ignored alongside groups", 1 | 1<<2, []string{"g2"}},
		{"unknown groups dropped", 1<<3 | 1<<29, []string{"g29"}},
		{"bits past 29 ignored", 1 << 30, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeFriendMask(tt.mask, "all", groups)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnusedUsernameSuffixesTakenNames(t *testing.T) {
	f := newFixture(t)
	b := newBase("test", f.deps, nil)
	ctx := context.Background()

	name, err := b.unusedUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", name)

	name, err = b.unusedUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Regexp(t, `^alice-[0-9a-f]{8}$`, name)
	assert.LessOrEqual(t, len(name), models.MaxUsernameLength)
}

func TestCleanUsername(t *testing.T) {
	assert.Equal(t, "bob.vox.com", cleanUsername("bob.vox.com"))
	assert.Equal(t, "user", cleanUsername("!!!"))
	assert.Equal(t, "hllo", cleanUsername("héllo"))
	assert.Len(t, cleanUsername("a-very-long-username-that-goes-on-forever"), models.MaxUsernameLength)
}

func TestPersonForReusesIdentity(t *testing.T) {
	f := newFixture(t)
	b := newBase("test", f.deps, nil)
	ctx := context.Background()

	ident, user, err := b.personFor(ctx, "http://bob.example.com/", "bob", "Bob")
	require.NoError(t, err)
	assert.Equal(t, user.ID, ident.UserID)
	assert.Equal(t, "Bob", user.DisplayName)

	again, sameUser, err := b.personFor(ctx, "http://bob.example.com/", "bob", "Robert")
	require.NoError(t, err)
	assert.Equal(t, ident.ID, again.ID)
	assert.Equal(t, user.ID, sameUser.ID)
	assert.Len(t, f.users.Users, 2)
}

func TestClaimIdentityOnlyRebindsWhenForced(t *testing.T) {
	f := newFixture(t)
	b := newBase("test", f.deps, nil)
	ctx := context.Background()

	other := &models.User{ID: "other", Username: "other"}
	require.NoError(t, f.repos.User.Create(ctx, other))
	_, err := b.claimIdentity(ctx, "http://alice.example.net/", other, false)
	require.NoError(t, err)

	ident, err := b.claimIdentity(ctx, "http://alice.example.net/", f.author, false)
	require.NoError(t, err)
	assert.Equal(t, "other", ident.UserID)

	ident, err = b.claimIdentity(ctx, "http://alice.example.net/", f.author, true)
	require.NoError(t, err)
	assert.Equal(t, f.author.ID, ident.UserID)
	assert.Equal(t, f.author.ID, f.idents.Identities["http://alice.example.net/"].UserID)
}

func TestParseTime(t *testing.T) {
	got, err := parseTime(tpDateLayout, " 2009-03-04T05:06:07Z ", "x")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2009, 3, 4, 5, 6, 7, 0, time.UTC), got)

	_, err = parseTime(tpDateLayout, "", "x")
	assert.ErrorIs(t, err, ErrMalformedRecord)

	_, err = parseTime(tpDateLayout, "yesterday", "x")
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestDecodeXMLHonoursDeclaredCharset(t *testing.T) {
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<post type=\"regular\"><regular-title>Caf\xe9</regular-title></post>"
	var p tumblrPost
	require.NoError(t, decodeXML(bytes.NewReader([]byte(doc)), &p, "test.xml"))
	assert.Equal(t, "Café", p.RegularTitle)

	err := decodeXML(bytes.NewReader([]byte("<post>")), &p, "broken.xml")
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

type failingObserver struct{}

func (failingObserver) PostSaved(ctx context.Context, post *models.Post, created bool) error {
	return assert.AnError
}

func TestObserverErrorsStopTheImport(t *testing.T) {
	f := newFixture(t)
	f.deps.Observers = []PostObserver{failingObserver{}}
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "1.xml"), `<post type="regular" url="http://x.tumblr.com/post/1" unix-timestamp="1234567890" slug="one"><regular-body>hi</regular-body></post>`)

	_, err := NewTumblr(f.deps, TumblrOptions{Dir: dir}).Import(context.Background(), f.author)
	assert.ErrorIs(t, err, assert.AnError)
}
