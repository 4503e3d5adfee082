package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bee-cms/bee/internal/assets"
	"github.com/bee-cms/bee/internal/markup"
	"github.com/bee-cms/bee/internal/models"
)

// TypePadOptions configures a TypePad import.
type TypePadOptions struct {
	// Dir holds one JSON file per entry plus the exported <id>-pi images.
	Dir   string `validate:"required"`
	Paths assets.PathResolver
	// Fetcher downloads the profile picture.
	Fetcher Fetcher
}

// TypePad imports a directory of TypePad API entry documents.
type TypePad struct {
	base
	opts   TypePadOptions
	avatar *models.Avatar
}

// NewTypePad creates a TypePad importer. Unless opts.Paths says otherwise,
// images are looked up in opts.Dir by their TypePad asset id.
func NewTypePad(deps Deps, opts TypePadOptions) *TypePad {
	if opts.Paths == nil {
		opts.Paths = assets.TypePadFiles(opts.Dir)
	}
	return &TypePad{base: newBase(models.SourceTypePad, deps, opts.Paths), opts: opts}
}

// Name implements Source.
func (tp *TypePad) Name() string { return models.SourceTypePad }

const (
	tpDateLayout      = "2006-01-02T15:04:05Z"
	tpAnonymousURLID  = "6p0000000000000014"
	tpCommentFormat   = "html_convert_linebreaks"
	tpAvatarName      = "TypePad"
	tpAvatarSpec      = "75si"
	tpPostObjectType  = "Post"
	tpAnonymousAuthor = "anonymous"
)

type tpAuthor struct {
	URLID          string `json:"urlId"`
	DisplayName    string `json:"displayName"`
	ProfilePageURL string `json:"profilePageUrl"`
	AvatarLink     struct {
		URLTemplate string `json:"urlTemplate"`
	} `json:"avatarLink"`
}

type tpEntry struct {
	ObjectType      string      `json:"objectType"`
	ID              string      `json:"id"`
	Published       string      `json:"published"`
	Title           string      `json:"title"`
	Filename        string      `json:"filename"`
	PermalinkURL    string      `json:"permalinkUrl"`
	RenderedContent string      `json:"renderedContent"`
	Author          tpAuthor    `json:"author"`
	Comments        []tpComment `json:"comments"`
}

type tpComment struct {
	ID                string `json:"id"`
	Content           string `json:"content"`
	TextFormat        string `json:"textFormat"`
	Published         string `json:"published"`
	PublicationStatus struct {
		Draft bool `json:"draft"`
		Spam  bool `json:"spam"`
	} `json:"publicationStatus"`
	Author    tpAuthor `json:"author"`
	Commenter struct {
		Name *string `json:"name"`
		Href string  `json:"href"`
	} `json:"commenter"`
}

// Import implements Source.
func (tp *TypePad) Import(ctx context.Context, author *models.User) (*Result, error) {
	files, err := listFiles(tp.opts.Dir, ".json")
	if err != nil {
		return nil, err
	}
	tp.log.Info().Str("dir", tp.opts.Dir).Int("entries", len(files)).Msg("Importing TypePad export")

	for i, path := range files {
		entry, err := readTypePadEntry(path)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			if err := tp.importMe(ctx, author, &entry.Author); err != nil {
				return nil, err
			}
		}
		if err := tp.importEntry(ctx, author, entry); err != nil {
			return nil, err
		}
	}
	return tp.result, nil
}

func readTypePadEntry(path string) (*tpEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry tpEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %s is not valid JSON: %v", ErrMalformedRecord, filepath.Base(path), err)
	}
	return &entry, nil
}

// importMe binds the export's author to the acting user and imports their
// profile picture.
func (tp *TypePad) importMe(ctx context.Context, user *models.User, a *tpAuthor) error {
	if a.ProfilePageURL == "" {
		return fmt.Errorf("%w: entry author has no profile page", ErrMalformedRecord)
	}
	if _, err := tp.claimIdentity(ctx, a.ProfilePageURL, user, true); err != nil {
		return err
	}

	avatar, err := tp.avatarFor(ctx, user, tpAvatarName, "typepad", func(ctx context.Context) ([]byte, error) {
		if a.AvatarLink.URLTemplate == "" {
			return nil, fmt.Errorf("%w: author has no avatar link", ErrMalformedRecord)
		}
		if tp.opts.Fetcher == nil {
			return nil, fmt.Errorf("no fetcher configured for avatar download")
		}
		return tp.opts.Fetcher.Fetch(ctx, strings.ReplaceAll(a.AvatarLink.URLTemplate, "{spec}", tpAvatarSpec))
	})
	if err != nil {
		return err
	}
	tp.avatar = avatar
	return nil
}

func (tp *TypePad) importEntry(ctx context.Context, actor *models.User, entry *tpEntry) error {
	if entry.ObjectType != tpPostObjectType {
		return fmt.Errorf("%w: %s is a %q, not a Post", ErrMalformedRecord, entry.ID, entry.ObjectType)
	}
	if entry.ID == "" {
		return fmt.Errorf("%w: entry has no id", ErrMalformedRecord)
	}

	post, isNew, err := tp.findPost(ctx, entry.ID)
	if err != nil {
		return err
	}
	if post.Published, err = parseTime(tpDateLayout, entry.Published, "entry "+entry.ID); err != nil {
		return err
	}

	post.AuthorID = actor.ID
	if entry.Author.ProfilePageURL != "" {
		user, err := tp.userFor(ctx, entry.Author.ProfilePageURL)
		if err != nil {
			return err
		}
		if user != nil {
			post.AuthorID = user.ID
		}
	}
	if tp.avatar != nil {
		post.AvatarID = tp.avatar.ID
	}

	post.Title = entry.Title
	if post.Slug == "" || entry.Filename != "" {
		if err := tp.allocateSlug(ctx, post, entry.Filename); err != nil {
			return err
		}
	}
	post.HTML = entry.RenderedContent
	linked, err := tp.resolveAssets(ctx, post)
	if err != nil {
		return err
	}
	post.Private = false
	post.PrivateTo = []string{}

	if err := tp.savePost(ctx, post, isNew, linked); err != nil {
		return err
	}
	if entry.PermalinkURL != "" {
		if err := tp.ensureLegacyURL(ctx, post, entry.PermalinkURL); err != nil {
			return err
		}
	}
	if err := tp.notify(ctx, post, isNew); err != nil {
		return err
	}
	tp.log.Info().Str("atom_id", post.AtomID).Str("title", post.Title).Str("post_id", post.ID).Msg("Saved post")

	for i := range entry.Comments {
		if err := tp.importComment(ctx, post, &entry.Comments[i]); err != nil {
			return err
		}
	}
	return nil
}

func (tp *TypePad) importComment(ctx context.Context, post *models.Post, data *tpComment) error {
	if data.ID == "" {
		return fmt.Errorf("%w: comment on %s has no id", ErrMalformedRecord, post.AtomID)
	}
	comment, isNew, err := tp.findComment(ctx, data.ID)
	if err != nil {
		return err
	}

	if data.TextFormat != tpCommentFormat {
		return fmt.Errorf("%w: comment %s has text format %q", ErrUnknownFormat, data.ID, data.TextFormat)
	}
	if comment.Body, err = markup.ConvertCommentBreaks(data.Content); err != nil {
		return err
	}
	if comment.SubmittedAt, err = parseTime(tpDateLayout, data.Published, "comment "+data.ID); err != nil {
		return err
	}

	comment.IsPublic = !(data.PublicationStatus.Draft || data.PublicationStatus.Spam)
	// TypePad blog comments are not threaded.
	comment.PostID = post.ID
	comment.InReplyToID = ""

	if data.Author.URLID == tpAnonymousURLID {
		comment.UserName = tpAnonymousAuthor
		if data.Commenter.Name != nil {
			comment.UserName = *data.Commenter.Name
		}
		comment.UserURL = data.Commenter.Href
	} else {
		comment.UserName = data.Author.DisplayName
		comment.UserURL = data.Author.ProfilePageURL
	}

	return tp.saveComment(ctx, comment, isNew)
}

// listFiles returns the files in dir with the given extension, sorted so
// runs are reproducible.
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read export directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ext) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
