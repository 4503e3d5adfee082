package importer

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bee-cms/bee/internal/assets"
	"github.com/bee-cms/bee/internal/markup"
	"github.com/bee-cms/bee/internal/models"
)

// VoxOptions configures a Vox import.
type VoxOptions struct {
	Path string `validate:"required"`
	// OpenID is the author's Vox profile URL; their posts are attributed to
	// the acting user through it.
	OpenID    string `validate:"required,url"`
	SkipPosts bool
	Paths     assets.PathResolver
}

// Vox imports a Vox Atom export.
type Vox struct {
	base
	opts VoxOptions
}

// NewVox creates a Vox importer. Unless opts.Paths says otherwise, images
// are looked up in the assets directory next to the export.
func NewVox(deps Deps, opts VoxOptions) *Vox {
	if opts.Paths == nil && opts.Path != "-" {
		opts.Paths = assets.VoxFiles(filepath.Dir(opts.Path))
	}
	return &Vox{base: newBase(models.SourceVox, deps, opts.Paths), opts: opts}
}

// Name implements Source.
func (v *Vox) Name() string { return models.SourceVox }

const (
	voxGoneURI      = "http://www.vox.com/gone/"
	voxReadPolicy   = "http://www.sixapart.com/ns/atom/permissions#read"
	voxEveryoneRef  = "http://www.sixapart.com/ns/atom/groups#everyone"
	voxSelfRef      = "http://www.sixapart.com/ns/atom/groups#self"
	voxDateLayout   = "2006-01-02T15:04:05Z"
	voxDisplayLimit = 30
)

var (
	voxPostURL  = regexp.MustCompile(`/library/post/`)
	voxSlugPart = regexp.MustCompile(`/([^/.]+)\.html`)

	voxCommentPrivacy = map[string]bool{
		"Everyone":     true,
		"Friends":      true,
		"Family":       true,
		"Neighborhood": true,
	}
)

type voxFeed struct {
	Entries []voxEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type voxEntry struct {
	ID        string      `xml:"http://www.w3.org/2005/Atom id"`
	Title     string      `xml:"http://www.w3.org/2005/Atom title"`
	Published string      `xml:"http://www.w3.org/2005/Atom published"`
	Content   *voxContent `xml:"http://www.w3.org/2005/Atom content"`
	Author    voxAuthor   `xml:"http://www.w3.org/2005/Atom author"`
	Links     []voxLink   `xml:"http://www.w3.org/2005/Atom link"`
	InReplyTo *voxReplyTo `xml:"http://purl.org/syndication/thread/1.0 in-reply-to"`
	Allows    []voxAllow  `xml:"http://www.sixapart.com/ns/atom/privacy privacy>allow"`
}

type voxContent struct {
	Type string `xml:"type,attr"`
	Text string `xml:",chardata"`
	Div  *struct {
		Inner string `xml:",innerxml"`
	} `xml:"http://www.w3.org/1999/xhtml div"`
}

type voxAuthor struct {
	Name string `xml:"http://www.w3.org/2005/Atom name"`
	URI  string `xml:"http://www.w3.org/2005/Atom uri"`
}

type voxLink struct {
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
	Href string `xml:"href,attr"`
}

type voxReplyTo struct {
	Ref  string `xml:"ref,attr"`
	Href string `xml:"href,attr"`
}

type voxAllow struct {
	Policy string `xml:"policy,attr"`
	Ref    string `xml:"ref,attr"`
	Name   string `xml:"name,attr"`
}

func (e *voxEntry) permalink() (string, error) {
	for _, l := range e.Links {
		if l.Rel == "alternate" && l.Type == "text/html" {
			return l.Href, nil
		}
	}
	return "", fmt.Errorf("%w: could not find text/html alternate link for %s", ErrMalformedRecord, e.ID)
}

// html returns the entry content as HTML. Entries without content are
// empty.
func (e *voxEntry) html() (string, error) {
	if e.Content == nil {
		return "", nil
	}
	switch e.Content.Type {
	case "html":
		return e.Content.Text, nil
	case "xhtml":
		if e.Content.Div == nil {
			return "", nil
		}
		return e.Content.Div.Inner, nil
	default:
		return "", fmt.Errorf("%w: %s has content of type %q", ErrUnknownFormat, e.ID, e.Content.Type)
	}
}

// Import implements Source.
func (v *Vox) Import(ctx context.Context, author *models.User) (*Result, error) {
	if _, err := v.claimIdentity(ctx, v.opts.OpenID, author, false); err != nil {
		return nil, err
	}

	var feed voxFeed
	if err := decodeXMLFile(v.opts.Path, &feed); err != nil {
		return nil, err
	}
	v.log.Info().Int("entries", len(feed.Entries)).Bool("skip_posts", v.opts.SkipPosts).Msg("Importing Vox export")

	if !v.opts.SkipPosts {
		for i := range feed.Entries {
			if err := v.importPost(ctx, author, &feed.Entries[i]); err != nil {
				return nil, err
			}
		}
	}
	for i := range feed.Entries {
		if err := v.importComment(ctx, &feed.Entries[i]); err != nil {
			return nil, err
		}
	}
	return v.result, nil
}

// personForEntry resolves an entry author. Authors whose accounts are gone
// come back nil.
func (v *Vox) personForEntry(ctx context.Context, a voxAuthor) (*models.User, error) {
	if a.URI == "" || a.URI == voxGoneURI {
		return nil, nil
	}
	username := a.URI
	if u, err := url.Parse(a.URI); err == nil && u.Host != "" {
		username = u.Host
	}
	displayName := a.Name
	if r := []rune(displayName); len(r) > voxDisplayLimit {
		displayName = string(r[:voxDisplayLimit])
	}
	_, user, err := v.personFor(ctx, a.URI, username, displayName)
	return user, err
}

func (v *Vox) importPost(ctx context.Context, actor *models.User, entry *voxEntry) error {
	if entry.InReplyTo != nil {
		return nil
	}
	permalink, err := entry.permalink()
	if err != nil {
		return err
	}
	if !voxPostURL.MatchString(permalink) {
		v.log.Debug().Str("atom_id", entry.ID).Str("url", permalink).Msg("Skipping non-post entry")
		v.result.Skipped++
		return nil
	}
	if entry.ID == "" {
		return fmt.Errorf("%w: entry %s has no id", ErrMalformedRecord, permalink)
	}

	post, isNew, err := v.findPost(ctx, entry.ID)
	if err != nil {
		return err
	}
	if post.Published, err = parseTime(voxDateLayout, entry.Published, "post "+entry.ID); err != nil {
		return err
	}
	if post.HTML, err = entry.html(); err != nil {
		return err
	}
	post.Title = entry.Title

	author, err := v.personForEntry(ctx, entry.Author)
	if err != nil {
		return err
	}
	switch {
	case author != nil:
		post.AuthorID = author.ID
	case post.AuthorID == "":
		post.AuthorID = actor.ID
	}

	if post.Slug == "" {
		mo := voxSlugPart.FindStringSubmatch(permalink)
		if mo == nil {
			return fmt.Errorf("%w: could not find slug in Vox post URL %q", ErrMalformedRecord, permalink)
		}
		excerpt := markup.TruncateWords(markup.StripTags(post.HTML), 7)
		if err := v.allocateSlug(ctx, post, mo[1], post.Title, excerpt); err != nil {
			return err
		}
	}

	linked, err := v.resolveAssets(ctx, post)
	if err != nil {
		return err
	}
	if err := v.applyPrivacy(ctx, post, entry); err != nil {
		return err
	}

	v.log.Info().Str("author_id", post.AuthorID).Str("slug", post.Slug).Msg("Saving post")
	if err := v.savePost(ctx, post, isNew, linked); err != nil {
		return err
	}
	if err := v.ensureLegacyURL(ctx, post, permalink); err != nil {
		return err
	}
	if err := v.notify(ctx, post, isNew); err != nil {
		return err
	}
	v.log.Info().Str("atom_id", post.AtomID).Str("title", post.Title).Str("post_id", post.ID).Msg("Saved post")
	return nil
}

// applyPrivacy maps the entry's allow refs onto the post: everyone adds
// nothing, self makes the post private, and any other ref shares it with
// the trust group of that tag.
func (v *Vox) applyPrivacy(ctx context.Context, post *models.Post, entry *voxEntry) error {
	post.Private = false
	post.PrivateTo = []string{}
	for _, allow := range entry.Allows {
		if allow.Policy != voxReadPolicy {
			return fmt.Errorf("%w: privacy policy %q for %s is not about reading", ErrUnknownFormat, allow.Policy, entry.ID)
		}
		switch allow.Ref {
		case voxEveryoneRef:
			continue
		case voxSelfRef:
			post.Private = true
			continue
		}
		group, err := v.groupFor(ctx, post.AuthorID, allow.Ref, allow.Name)
		if err != nil {
			return err
		}
		post.Private = true
		post.PrivateTo = append(post.PrivateTo, group.ID)
	}
	v.log.Debug().Str("atom_id", entry.ID).Int("groups", len(post.PrivateTo)).Msg("Assigned post to groups")
	return nil
}

func (v *Vox) importComment(ctx context.Context, entry *voxEntry) error {
	if entry.InReplyTo == nil {
		return nil
	}

	parent, err := v.repos.Post.GetByAtomID(ctx, entry.InReplyTo.Ref)
	if err != nil {
		return err
	}
	if parent == nil {
		v.log.Warn().Str("parent", entry.InReplyTo.Href).Str("atom_id", entry.ID).Msg("Referenced parent post does not exist; skipping comment")
		v.result.Skipped++
		return nil
	}

	comment, isNew, err := v.findComment(ctx, entry.ID)
	if err != nil {
		return err
	}
	comment.PostID = parent.ID

	if entry.Content == nil {
		return fmt.Errorf("%w: comment %s has no content", ErrMalformedRecord, entry.ID)
	}
	if comment.Body, err = entry.html(); err != nil {
		return err
	}
	if comment.SubmittedAt, err = parseTime(voxDateLayout, entry.Published, "comment "+entry.ID); err != nil {
		return err
	}

	// Comments carry the privacy of their post, so they are all public here.
	if len(entry.Allows) == 0 {
		return fmt.Errorf("%w: comment %s has no privacy element", ErrMalformedRecord, entry.ID)
	}
	if name := entry.Allows[0].Name; !voxCommentPrivacy[name] {
		return fmt.Errorf("%w: comment %s has privacy %q", ErrUnknownFormat, entry.ID, name)
	}
	comment.IsPublic = true

	comment.UserName = strings.TrimSpace(entry.Author.Name)
	comment.UserURL = entry.Author.URI
	comment.UserID = ""
	user, err := v.personForEntry(ctx, entry.Author)
	if err != nil {
		return err
	}
	if user != nil {
		comment.UserID = user.ID
	}

	return v.saveComment(ctx, comment, isNew)
}
