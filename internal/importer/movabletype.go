package importer

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bee-cms/bee/internal/assets"
	"github.com/bee-cms/bee/internal/markup"
	"github.com/bee-cms/bee/internal/models"
	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/text/encoding/charmap"

	_ "modernc.org/sqlite"
)

// MovableTypeOptions configures a Movable Type import or listing.
type MovableTypeOptions struct {
	// DBPath is the Movable Type SQLite database.
	DBPath string `validate:"required"`
	// BlogID selects the blog to import or list entries of.
	BlogID int64 `validate:"gte=0"`
	// AuthorID optionally limits entries to one Movable Type author.
	AuthorID int64 `validate:"gte=0"`
	Paths    assets.PathResolver
}

// MovableType imports entries from a Movable Type database.
type MovableType struct {
	base
	opts     MovableTypeOptions
	markdown goldmark.Markdown
}

// NewMovableType creates a Movable Type importer.
func NewMovableType(deps Deps, opts MovableTypeOptions) *MovableType {
	return &MovableType{
		base:     newBase(models.SourceMovableType, deps, opts.Paths),
		opts:     opts,
		markdown: goldmark.New(goldmark.WithRendererOptions(gmhtml.WithUnsafe())),
	}
}

// Name implements Source.
func (mt *MovableType) Name() string { return models.SourceMovableType }

// mtStatusRelease is the entry status of published entries.
const mtStatusRelease = 2

type mtBlog struct {
	ID      int64
	Name    string
	SiteURL string
}

type mtEntry struct {
	ID            int64
	AtomID        string
	Basename      string
	Title         string
	TextFormat    sql.NullString
	Status        sql.NullInt64
	AllowComments sql.NullInt64
	CreatedOn     sql.NullString
	Text          []byte
	TextMore      []byte
}

type mtComment struct {
	ID        int64
	Author    string
	Email     string
	URL       string
	Text      string
	CreatedOn sql.NullString
	Visible   sql.NullInt64
}

func (mt *MovableType) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", mt.opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Movable Type database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open Movable Type database: %w", err)
	}
	return db, nil
}

// decodeText reads a text column. Very old entries may still be Latin-1.
func decodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(decoded)
}

var mtTimeLayouts = []string{"2006-01-02 15:04:05", time.RFC3339Nano}

func parseMTTime(v sql.NullString, what string) (time.Time, error) {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return time.Time{}, fmt.Errorf("%w: %s has no date", ErrMalformedRecord, what)
	}
	for _, layout := range mtTimeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(v.String)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s has unparseable date %q", ErrMalformedRecord, what, v.String)
}

// Import implements Source.
func (mt *MovableType) Import(ctx context.Context, author *models.User) (*Result, error) {
	if mt.opts.BlogID == 0 {
		return nil, fmt.Errorf("a blog ID is required to import Movable Type entries")
	}
	db, err := mt.open()
	if err != nil {
		return nil, err
	}
	defer db.Close()

	blog, err := mt.loadBlog(ctx, db)
	if err != nil {
		return nil, err
	}
	entries, err := mt.loadEntries(ctx, db)
	if err != nil {
		return nil, err
	}
	mt.log.Info().Int64("blog_id", blog.ID).Str("blog", blog.Name).Int("entries", len(entries)).Msg("Importing Movable Type blog")

	for _, entry := range entries {
		if err := mt.importEntry(ctx, db, author, blog, entry); err != nil {
			return nil, err
		}
	}
	return mt.result, nil
}

func (mt *MovableType) loadBlog(ctx context.Context, db *sql.DB) (*mtBlog, error) {
	var blog mtBlog
	var name, siteURL []byte
	err := db.QueryRowContext(ctx,
		`SELECT blog_id, blog_name, blog_site_url FROM mt_blog WHERE blog_id = ?`, mt.opts.BlogID,
	).Scan(&blog.ID, &name, &siteURL)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no Movable Type blog with ID %d", mt.opts.BlogID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load blog: %w", err)
	}
	blog.Name, blog.SiteURL = decodeText(name), decodeText(siteURL)
	return &blog, nil
}

func (mt *MovableType) entryFilter() (string, []any) {
	where := `entry_blog_id = ?`
	args := []any{mt.opts.BlogID}
	if mt.opts.AuthorID != 0 {
		where += ` AND entry_author_id = ?`
		args = append(args, mt.opts.AuthorID)
	}
	return where, args
}

func (mt *MovableType) loadEntries(ctx context.Context, db *sql.DB) ([]*mtEntry, error) {
	where, args := mt.entryFilter()
	rows, err := db.QueryContext(ctx, `
		SELECT entry_id, entry_atom_id, entry_basename, entry_title, entry_convert_breaks,
			entry_status, entry_allow_comments, entry_created_on, entry_text, entry_text_more
		FROM mt_entry WHERE `+where+` ORDER BY entry_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []*mtEntry
	for rows.Next() {
		var e mtEntry
		var atomID, basename, title []byte
		if err := rows.Scan(&e.ID, &atomID, &basename, &title, &e.TextFormat,
			&e.Status, &e.AllowComments, &e.CreatedOn, &e.Text, &e.TextMore); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.AtomID, e.Basename, e.Title = decodeText(atomID), decodeText(basename), decodeText(title)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// generateAtomID builds the atom id Movable Type would have assigned.
func generateAtomID(blog *mtBlog, entryID int64, created time.Time) string {
	host, path := "", ""
	if u, err := url.Parse(blog.SiteURL); err == nil {
		host, path = u.Host, u.Path
	}
	return fmt.Sprintf("tag:%s,%d:%s/%d.%d", host, created.Year(), path, blog.ID, entryID)
}

func (mt *MovableType) htmlizer(entry *mtEntry, atomID string) (func(string) (string, error), error) {
	if !entry.TextFormat.Valid {
		return nil, fmt.Errorf("%w: entry %s has no text format", ErrUnknownFormat, atomID)
	}
	switch entry.TextFormat.String {
	case "markdown":
		mt.log.Debug().Str("atom_id", atomID).Msg("Entry is in markdown")
		return func(s string) (string, error) {
			var buf bytes.Buffer
			if err := mt.markdown.Convert([]byte(s), &buf); err != nil {
				return "", err
			}
			return buf.String(), nil
		}, nil
	case "__default__":
		mt.log.Debug().Str("atom_id", atomID).Msg("Entry is in convert-breaks")
		return func(s string) (string, error) { return markup.MovableType.Transform(s), nil }, nil
	case "", "0":
		mt.log.Debug().Str("atom_id", atomID).Msg("Entry is already html")
		return func(s string) (string, error) { return s, nil }, nil
	default:
		return nil, fmt.Errorf("%w: text format %q for entry %s", ErrUnknownFormat, entry.TextFormat.String, atomID)
	}
}

func (mt *MovableType) importEntry(ctx context.Context, db *sql.DB, actor *models.User, blog *mtBlog, entry *mtEntry) error {
	what := fmt.Sprintf("entry %d", entry.ID)
	created, err := parseMTTime(entry.CreatedOn, what)
	if err != nil {
		return err
	}

	atomID := entry.AtomID
	if atomID == "" {
		atomID = generateAtomID(blog, entry.ID, created)
		mt.log.Debug().Str("atom_id", atomID).Int64("entry_id", entry.ID).Str("basename", entry.Basename).Msg("Generated atom id")
	}

	post, isNew, err := mt.findPost(ctx, atomID)
	if err != nil {
		return err
	}
	post.AuthorID = actor.ID
	post.Published = created

	htmlize, err := mt.htmlizer(entry, atomID)
	if err != nil {
		return err
	}
	post.HTML = ""
	if entry.Text != nil {
		if post.HTML, err = htmlize(decodeText(entry.Text)); err != nil {
			return fmt.Errorf("failed to convert entry %s: %w", atomID, err)
		}
	}
	if entry.TextMore != nil {
		more, err := htmlize(decodeText(entry.TextMore))
		if err != nil {
			return fmt.Errorf("failed to convert entry %s: %w", atomID, err)
		}
		post.HTML = post.HTML + "\n\n" + more
	}

	// Titles that are just the first five words were autosummarized.
	if entry.Title == "" || markup.TruncateWords(markup.StripTags(post.HTML), 5) == entry.Title {
		post.Title = ""
	} else {
		post.Title = entry.Title
	}

	linked, err := mt.resolveAssets(ctx, post)
	if err != nil {
		return err
	}

	if post.Slug == "" {
		if err := mt.allocateSlug(ctx, post, strings.ReplaceAll(entry.Basename, "_", "-"), entry.Title); err != nil {
			return err
		}
	}

	post.Private = entry.Status.Valid && entry.Status.Int64 != mtStatusRelease
	post.PrivateTo = []string{}
	post.CommentsEnabled = !entry.AllowComments.Valid || entry.AllowComments.Int64 != 0

	if err := mt.savePost(ctx, post, isNew, linked); err != nil {
		return err
	}
	if err := mt.notify(ctx, post, isNew); err != nil {
		return err
	}
	mt.log.Debug().Str("title", post.Title).Str("atom_id", atomID).Msg("Imported entry")

	return mt.importComments(ctx, db, entry, post)
}

func (mt *MovableType) importComments(ctx context.Context, db *sql.DB, entry *mtEntry, post *models.Post) error {
	rows, err := db.QueryContext(ctx, `
		SELECT comment_id, comment_author, comment_email, comment_url, comment_text,
			comment_created_on, comment_visible
		FROM mt_comment WHERE comment_entry_id = ? ORDER BY comment_id`, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to query comments: %w", err)
	}
	var comments []*mtComment
	for rows.Next() {
		var c mtComment
		var author, email, link, text []byte
		if err := rows.Scan(&c.ID, &author, &email, &link, &text, &c.CreatedOn, &c.Visible); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan comment: %w", err)
		}
		c.Author, c.Email, c.URL, c.Text = decodeText(author), decodeText(email), decodeText(link), decodeText(text)
		comments = append(comments, &c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, c := range comments {
		atomID := fmt.Sprintf("%s:comment:%d", post.AtomID, c.ID)
		comment, isNew, err := mt.findComment(ctx, atomID)
		if err != nil {
			return err
		}
		if comment.SubmittedAt, err = parseMTTime(c.CreatedOn, "comment "+atomID); err != nil {
			return err
		}
		comment.PostID = post.ID
		comment.Body = markup.MovableType.Transform(c.Text)
		comment.UserName = c.Author
		if comment.UserName == "" {
			comment.UserName = tpAnonymousAuthor
		}
		comment.UserEmail = c.Email
		comment.UserURL = c.URL
		comment.IsPublic = c.Visible.Valid && c.Visible.Int64 == 1
		if err := mt.saveComment(ctx, comment, isNew); err != nil {
			return err
		}
	}
	return nil
}

func countCell(n int64) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprint(n)
}

func clip(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

// ListBlogs writes a table of the database's blogs to w.
func (mt *MovableType) ListBlogs(ctx context.Context, w io.Writer) error {
	db, err := mt.open()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT b.blog_id, b.blog_name, b.blog_site_url,
			(SELECT COUNT(*) FROM mt_entry e WHERE e.entry_blog_id = b.blog_id)
		FROM mt_blog b ORDER BY b.blog_id`)
	if err != nil {
		return fmt.Errorf("failed to list blogs: %w", err)
	}
	defer rows.Close()

	const format = "%4v %-30s %-50s %v\n"
	fmt.Fprintf(w, format, "ID", "Name", "Site URL", "Entries")
	for rows.Next() {
		var id, entries int64
		var name, siteURL []byte
		if err := rows.Scan(&id, &name, &siteURL, &entries); err != nil {
			return err
		}
		fmt.Fprintf(w, format, id, decodeText(name), decodeText(siteURL), entries)
	}
	return rows.Err()
}

// ListAuthors writes a table of the database's authors to w.
func (mt *MovableType) ListAuthors(ctx context.Context, w io.Writer) error {
	db, err := mt.open()
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
		SELECT a.author_id, a.author_name, a.author_nickname,
			(SELECT COUNT(*) FROM mt_entry e WHERE e.entry_author_id = a.author_id),
			(SELECT COUNT(*) FROM mt_comment c WHERE c.comment_commenter_id = a.author_id)
		FROM mt_author a ORDER BY a.author_id`)
	if err != nil {
		return fmt.Errorf("failed to list authors: %w", err)
	}
	defer rows.Close()

	const format = "%4v %-30s %-50s %-4s %s\n"
	fmt.Fprintf(w, format, "ID", "Name", "Nickname", "Post", "Comm")
	for rows.Next() {
		var id, entries, comments int64
		var name, nickname []byte
		if err := rows.Scan(&id, &name, &nickname, &entries, &comments); err != nil {
			return err
		}
		fmt.Fprintf(w, format, id,
			clip(strings.ReplaceAll(decodeText(name), "\n", `\n`), 30),
			clip(decodeText(nickname), 50),
			countCell(entries), countCell(comments))
	}
	return rows.Err()
}

// ListEntries writes a table of the first 20 selected entries to w.
func (mt *MovableType) ListEntries(ctx context.Context, w io.Writer) error {
	if mt.opts.BlogID == 0 {
		return fmt.Errorf("a blog ID is required to list Movable Type entries")
	}
	db, err := mt.open()
	if err != nil {
		return err
	}
	defer db.Close()

	where, args := mt.entryFilter()
	rows, err := db.QueryContext(ctx, `
		SELECT e.entry_id, e.entry_basename, e.entry_status, e.entry_title, e.entry_text,
			(SELECT COUNT(*) FROM mt_comment c WHERE c.comment_entry_id = e.entry_id)
		FROM mt_entry e WHERE `+where+` ORDER BY e.entry_id LIMIT 20`, args...)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	const format = "%4v %-20s %-4v %-30s %-50s %-4s\n"
	fmt.Fprintf(w, format, "ID", "Basename", "St", "Title", "Text", "Comm")
	for rows.Next() {
		var id, comments int64
		var status sql.NullInt64
		var basename, title, text []byte
		if err := rows.Scan(&id, &basename, &status, &title, &text, &comments); err != nil {
			return err
		}
		st := ""
		if status.Valid {
			st = fmt.Sprint(status.Int64)
		}
		excerpt := strings.Join(strings.Fields(markup.StripTags(decodeText(text))), " ")
		fmt.Fprintf(w, format, id, clip(decodeText(basename), 20), st,
			clip(decodeText(title), 30), clip(excerpt, 50), countCell(comments))
	}
	return rows.Err()
}
