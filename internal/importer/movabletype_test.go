package importer

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mtSchema = `
CREATE TABLE mt_blog (
	blog_id INTEGER PRIMARY KEY,
	blog_name TEXT,
	blog_site_url TEXT
);
CREATE TABLE mt_author (
	author_id INTEGER PRIMARY KEY,
	author_name TEXT,
	author_nickname TEXT
);
CREATE TABLE mt_entry (
	entry_id INTEGER PRIMARY KEY,
	entry_blog_id INTEGER,
	entry_atom_id TEXT,
	entry_basename TEXT,
	entry_title TEXT,
	entry_author_id INTEGER,
	entry_convert_breaks TEXT,
	entry_status INTEGER,
	entry_allow_comments INTEGER,
	entry_created_on DATETIME,
	entry_modified_on DATETIME,
	entry_text TEXT,
	entry_text_more TEXT
);
CREATE TABLE mt_comment (
	comment_id INTEGER PRIMARY KEY,
	comment_entry_id INTEGER,
	comment_commenter_id INTEGER,
	comment_author TEXT,
	comment_email TEXT,
	comment_url TEXT,
	comment_text TEXT,
	comment_created_on DATETIME,
	comment_visible INTEGER
);`

type mtRow struct {
	id, blog, author    int64
	atomID, basename    any
	title, format       any
	status, allow       any
	created, text, more any
}

func createMTDatabase(t *testing.T, entries []mtRow) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mt.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(mtSchema)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO mt_blog VALUES (1, 'Alice Blog', 'http://alice.example.com/blog/'), (2, 'Other', 'http://other.example.com/')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO mt_author VALUES (1, 'alice', 'Alice'), (2, 'guest', 'Guest')`)
	require.NoError(t, err)

	for _, e := range entries {
		_, err := db.Exec(`INSERT INTO mt_entry (entry_id, entry_blog_id, entry_author_id, entry_atom_id, entry_basename,
				entry_title, entry_convert_breaks, entry_status, entry_allow_comments, entry_created_on, entry_text, entry_text_more)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.id, e.blog, e.author, e.atomID, e.basename, e.title, e.format, e.status, e.allow, e.created, e.text, e.more)
		require.NoError(t, err)
	}
	_, err = db.Exec(`INSERT INTO mt_comment VALUES
		(10, 1, NULL, 'Bob', 'bob@example.com', 'http://bob.example.com/', 'Nice
post', '2009-01-03 00:00:00', 1),
		(11, 1, NULL, '', '', '', 'hidden', '2009-01-04 00:00:00', 0)`)
	require.NoError(t, err)
	return path
}

func defaultMTEntries() []mtRow {
	return []mtRow{
		{id: 1, blog: 1, author: 1, atomID: "tag:alice.example.com,2009:/blog//1.1", basename: "hello_world",
			title: "Hello World", format: "__default__", status: 2, allow: 1, created: "2009-01-02 03:04:05",
			text: "Para one\nline\n\nPara two", more: "More here"},
		{id: 2, blog: 1, author: 1, atomID: nil, basename: "markdown_post",
			title: "This is markdown", format: "markdown", status: 1, allow: 0, created: "2009-02-01 00:00:00",
			text: "# Heading\n\n*This* is markdown text here.", more: nil},
		{id: 3, blog: 1, author: 1, atomID: "", basename: "raw_entry",
			title: "Just some raw html content", format: "0", status: 2, allow: 1, created: "2009-03-01 00:00:00",
			text: "<p>Just some raw html content</p>", more: nil},
		{id: 4, blog: 2, author: 1, atomID: "tag:other,2009:4", basename: "elsewhere",
			title: "Elsewhere", format: "0", status: 2, allow: 1, created: "2009-04-01 00:00:00",
			text: "<p>other blog</p>", more: nil},
		{id: 6, blog: 1, author: 2, atomID: "tag:alice.example.com,2009:/blog//1.6", basename: "cafe",
			title: []byte{'C', 'a', 'f', 0xe9}, format: "", status: 2, allow: nil, created: "2009-06-01 00:00:00",
			text: "<p>Latte</p>", more: nil},
	}
}

func TestMovableTypeImport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := createMTDatabase(t, defaultMTEntries())

	res, err := NewMovableType(f.deps, MovableTypeOptions{DBPath: path, BlogID: 1}).Import(ctx, f.author)
	require.NoError(t, err)
	assert.Equal(t, 4, res.PostsCreated)
	assert.Equal(t, 2, res.CommentsCreated)

	hello := f.post(t, "tag:alice.example.com,2009:/blog//1.1")
	assert.Equal(t, "Hello World", hello.Title)
	assert.Equal(t, "hello-world", hello.Slug)
	assert.Equal(t, "<p>Para one<br>\nline</p>\n\n<p>Para two</p>\n\n<p>More here</p>", hello.HTML)
	assert.False(t, hello.Private)
	assert.True(t, hello.CommentsEnabled)
	assert.True(t, hello.Published.Equal(time.Date(2009, 1, 2, 3, 4, 5, 0, time.UTC)))

	md := f.post(t, "tag:alice.example.com,2009:/blog//1.2")
	assert.Contains(t, md.HTML, "<h1>Heading</h1>")
	assert.Contains(t, md.HTML, "<em>This</em>")
	assert.Equal(t, "This is markdown", md.Title)
	assert.True(t, md.Private)
	assert.False(t, md.CommentsEnabled)

	// Titles that merely repeat the opening words are dropped.
	raw := f.post(t, "tag:alice.example.com,2009:/blog//1.3")
	assert.Empty(t, raw.Title)
	assert.Equal(t, "raw-entry", raw.Slug)
	assert.Equal(t, "<p>Just some raw html content</p>", raw.HTML)

	cafe := f.post(t, "tag:alice.example.com,2009:/blog//1.6")
	assert.Equal(t, "Café", cafe.Title)
	assert.True(t, cafe.CommentsEnabled)

	other, err := f.repos.Post.GetByAtomID(ctx, "tag:other,2009:4")
	require.NoError(t, err)
	assert.Nil(t, other)
	assert.Len(t, f.posts.Posts, 4)

	bob := f.comment(t, hello.AtomID+":comment:10")
	assert.Equal(t, hello.ID, bob.PostID)
	assert.Equal(t, "Bob", bob.UserName)
	assert.Equal(t, "bob@example.com", bob.UserEmail)
	assert.Equal(t, "http://bob.example.com/", bob.UserURL)
	assert.Equal(t, "<p>Nice<br>\npost</p>", bob.Body)
	assert.True(t, bob.IsPublic)

	hidden := f.comment(t, hello.AtomID+":comment:11")
	assert.False(t, hidden.IsPublic)
	assert.Equal(t, "anonymous", hidden.UserName)
}

func TestMovableTypeAuthorFilterAndRerun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := createMTDatabase(t, defaultMTEntries())
	opts := MovableTypeOptions{DBPath: path, BlogID: 1, AuthorID: 1}

	res, err := NewMovableType(f.deps, opts).Import(ctx, f.author)
	require.NoError(t, err)
	assert.Equal(t, 3, res.PostsCreated)

	res, err = NewMovableType(f.deps, opts).Import(ctx, f.author)
	require.NoError(t, err)
	assert.Equal(t, 0, res.PostsCreated)
	assert.Equal(t, 3, res.PostsUpdated)
	assert.Equal(t, 2, res.CommentsUpdated)
	assert.Len(t, f.posts.Posts, 3)
	assert.Len(t, f.comments.Comments, 2)
	assert.Equal(t, "hello-world", f.post(t, "tag:alice.example.com,2009:/blog//1.1").Slug)
}

func TestMovableTypeUnknownTextFormat(t *testing.T) {
	for name, format := range map[string]any{"textile": "textile_2", "missing": nil} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			path := createMTDatabase(t, []mtRow{{id: 1, blog: 1, author: 1, atomID: "tag:x,2009:1", basename: "x",
				title: "x", format: format, status: 2, allow: 1, created: "2009-01-01 00:00:00", text: "x"}})
			_, err := NewMovableType(f.deps, MovableTypeOptions{DBPath: path, BlogID: 1}).Import(context.Background(), f.author)
			assert.ErrorIs(t, err, ErrUnknownFormat)
		})
	}
}

func TestMovableTypeRequiresBlog(t *testing.T) {
	f := newFixture(t)
	path := createMTDatabase(t, nil)

	_, err := NewMovableType(f.deps, MovableTypeOptions{DBPath: path}).Import(context.Background(), f.author)
	assert.Error(t, err)

	_, err = NewMovableType(f.deps, MovableTypeOptions{DBPath: path, BlogID: 99}).Import(context.Background(), f.author)
	assert.ErrorContains(t, err, "no Movable Type blog with ID 99")
}

func TestMovableTypeListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := createMTDatabase(t, defaultMTEntries())
	mt := NewMovableType(f.deps, MovableTypeOptions{DBPath: path, BlogID: 1})

	var out bytes.Buffer
	require.NoError(t, mt.ListBlogs(ctx, &out))
	assert.Contains(t, out.String(), "Site URL")
	assert.Contains(t, out.String(), "Alice Blog")
	assert.Contains(t, out.String(), "http://other.example.com/")

	out.Reset()
	require.NoError(t, mt.ListAuthors(ctx, &out))
	assert.Contains(t, out.String(), "Nickname")
	assert.Contains(t, out.String(), "guest")

	out.Reset()
	require.NoError(t, mt.ListEntries(ctx, &out))
	assert.Contains(t, out.String(), "hello_world")
	assert.Contains(t, out.String(), "Para one line Para two")
	assert.NotContains(t, out.String(), "elsewhere")

	assert.Empty(t, f.posts.Posts)
}

func TestGenerateAtomID(t *testing.T) {
	blog := &mtBlog{ID: 3, SiteURL: "http://example.com/blog/"}
	got := generateAtomID(blog, 42, time.Date(2005, 6, 7, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "tag:example.com,2005:/blog//3.42", got)
}

func TestDecodeTextFallsBackToLatin1(t *testing.T) {
	assert.Equal(t, "naïve", decodeText([]byte("naïve")))
	assert.Equal(t, "naïve", decodeText([]byte{'n', 'a', 0xef, 'v', 'e'}))
}
