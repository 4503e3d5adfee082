package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bee-cms/bee/internal/assets"
	"github.com/bee-cms/bee/internal/models"
)

// TumblrOptions configures a Tumblr import.
type TumblrOptions struct {
	// Dir holds one XML document per post.
	Dir   string `validate:"required"`
	Paths assets.PathResolver
}

// Tumblr imports a directory of Tumblr post documents.
type Tumblr struct {
	base
	opts TumblrOptions
}

// NewTumblr creates a Tumblr importer.
func NewTumblr(deps Deps, opts TumblrOptions) *Tumblr {
	return &Tumblr{base: newBase(models.SourceTumblr, deps, opts.Paths), opts: opts}
}

// Name implements Source.
func (t *Tumblr) Name() string { return models.SourceTumblr }

type tumblrPost struct {
	Type            string   `xml:"type,attr"`
	URL             string   `xml:"url,attr"`
	UnixTimestamp   string   `xml:"unix-timestamp,attr"`
	Slug            string   `xml:"slug,attr"`
	RegularTitle    string   `xml:"regular-title"`
	RegularBody     string   `xml:"regular-body"`
	LinkText        string   `xml:"link-text"`
	LinkURL         string   `xml:"link-url"`
	LinkDescription string   `xml:"link-description"`
	QuoteText       string   `xml:"quote-text"`
	QuoteSource     string   `xml:"quote-source"`
	VideoPlayer     string   `xml:"video-player"`
	VideoCaption    string   `xml:"video-caption"`
	Tags            []string `xml:"tag"`
}

// tumblrContent renders each supported post type to a title and HTML.
var tumblrContent = map[string]func(*tumblrPost) (string, string){
	"regular": func(p *tumblrPost) (string, string) {
		return p.RegularTitle, p.RegularBody
	},
	"link": func(p *tumblrPost) (string, string) {
		return p.LinkText, fmt.Sprintf("%s\n\n<p><a href=\"%s\">Link</a></p>", p.LinkDescription, p.LinkURL)
	},
	"quote": func(p *tumblrPost) (string, string) {
		return "", fmt.Sprintf("<blockquote><p>%s</p></blockquote>\n\n<p>&mdash;%s</p>", p.QuoteText, p.QuoteSource)
	},
	"video": func(p *tumblrPost) (string, string) {
		return "", fmt.Sprintf("<p>%s</p>\n\n%s", p.VideoPlayer, p.VideoCaption)
	},
}

// Import implements Source.
func (t *Tumblr) Import(ctx context.Context, author *models.User) (*Result, error) {
	files, err := listFiles(t.opts.Dir, ".xml")
	if err != nil {
		return nil, err
	}
	t.log.Info().Str("dir", t.opts.Dir).Int("posts", len(files)).Msg("Importing Tumblr export")

	for _, path := range files {
		var doc tumblrPost
		if err := decodeXMLFile(path, &doc); err != nil {
			return nil, err
		}
		if err := t.importPost(ctx, author, &doc, filepath.Base(path)); err != nil {
			return nil, err
		}
	}
	return t.result, nil
}

func (t *Tumblr) importPost(ctx context.Context, author *models.User, doc *tumblrPost, filename string) error {
	render, ok := tumblrContent[doc.Type]
	if !ok {
		t.log.Debug().Str("file", filename).Str("type", doc.Type).Msg("Skipping unsupported post type")
		t.result.Skipped++
		return nil
	}
	if doc.URL == "" {
		return fmt.Errorf("%w: %s has no url", ErrMalformedRecord, filename)
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(doc.UnixTimestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s has bad unix-timestamp %q", ErrMalformedRecord, filename, doc.UnixTimestamp)
	}

	post, isNew, err := t.findPost(ctx, doc.URL)
	if err != nil {
		return err
	}
	post.Title, post.HTML = render(doc)
	post.AuthorID = author.ID
	post.Published = time.Unix(ts, 0).UTC()
	if post.Slug == "" || doc.Slug != "" {
		if err := t.allocateSlug(ctx, post, doc.Slug); err != nil {
			return err
		}
	}
	post.Private = false
	post.PrivateTo = []string{}
	post.Tags = doc.Tags

	linked, err := t.resolveAssets(ctx, post)
	if err != nil {
		return err
	}
	if err := t.savePost(ctx, post, isNew, linked); err != nil {
		return err
	}
	if err := t.ensureLegacyURL(ctx, post, doc.URL); err != nil {
		return err
	}
	if err := t.notify(ctx, post, isNew); err != nil {
		return err
	}
	t.log.Info().Str("url", doc.URL).Str("post_id", post.ID).Msg("Saved post")
	return nil
}
