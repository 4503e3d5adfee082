package importer

import (
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/bee-cms/bee/internal/assets"
	"github.com/bee-cms/bee/internal/markup"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/slug"
	"golang.org/x/net/html/charset"
)

// LiveJournalOptions configures a LiveJournal import.
type LiveJournalOptions struct {
	// Path is the XML export, or "-" for standard input.
	Path string `validate:"required"`
	// FOAFPath is an optional FOAF document naming the author's friends.
	FOAFPath string
	// AtomIDPrefix overrides the urn:lj:<domain>:atom1:<user>: default.
	AtomIDPrefix string
	Paths        assets.PathResolver
}

// LiveJournal imports an XML export of a LiveJournal journal.
type LiveJournal struct {
	base
	opts      LiveJournalOptions
	foafNames map[string]string
}

// NewLiveJournal creates a LiveJournal importer.
func NewLiveJournal(deps Deps, opts LiveJournalOptions) *LiveJournal {
	return &LiveJournal{
		base:      newBase(models.SourceLiveJournal, deps, opts.Paths),
		opts:      opts,
		foafNames: make(map[string]string),
	}
}

// Name implements Source.
func (lj *LiveJournal) Name() string { return models.SourceLiveJournal }

type ljProp struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type ljProps []ljProp

func (p ljProps) get(name string) string {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Value
		}
	}
	return ""
}

// flag reads an integer property as a boolean.
func (p ljProps) flag(name string) bool {
	n, _ := strconv.Atoi(strings.TrimSpace(p.get(name)))
	return n != 0
}

type ljExport struct {
	Username string      `xml:"username,attr"`
	Server   string      `xml:"server,attr"`
	Userpics []ljUserpic `xml:"userpics>user>userpic"`
	Groups   []ljGroup   `xml:"friends>group"`
	Friends  []ljFriend  `xml:"friends>friend"`
	Events   []ljEvent   `xml:"events>event"`
}

type ljUserpic struct {
	Keyword string `xml:"keyword,attr"`
	Data    string `xml:",chardata"`
}

type ljGroup struct {
	ID   int    `xml:"id"`
	Name string `xml:"name"`
}

type ljFriend struct {
	Username string `xml:"username"`
	FullName string `xml:"fullname"`
	Groups   []int  `xml:"groups>group"`
}

type ljEvent struct {
	DItemID   string      `xml:"ditemid,attr"`
	Security  string      `xml:"security,attr"`
	AllowMask string      `xml:"allowmask,attr"`
	Subject   string      `xml:"subject"`
	Date      string      `xml:"date"`
	Event     string      `xml:"event"`
	Props     ljProps     `xml:"props>prop"`
	Comments  []ljComment `xml:"comments>comment"`
}

type ljComment struct {
	JTalkID string      `xml:"jtalkid,attr"`
	Poster  string      `xml:"poster,attr"`
	Subject string      `xml:"subject"`
	Body    string      `xml:"body"`
	Date    string      `xml:"date"`
	Props   ljProps     `xml:"props>prop"`
	Replies []ljComment `xml:"comments>comment"`
}

// ljJournal is the state shared while importing one export.
type ljJournal struct {
	author       *models.User
	domain       string
	prefix       string
	authorOpenID string
	avatars      map[string]*models.Avatar
	groups       map[int]*models.TrustGroup
	allFriends   *models.TrustGroup
}

func (j *ljJournal) openIDFor(username string) string {
	return LiveJournalOpenID(j.domain, username)
}

// LiveJournalOpenID returns the OpenID LiveJournal issues to username.
func LiveJournalOpenID(domain, username string) string {
	if strings.HasPrefix(username, "_") {
		return "http://users." + domain + "/" + username + "/"
	}
	return "http://" + strings.ReplaceAll(username, "_", "-") + "." + domain + "/"
}

// serverDomain drops the host part of a server name, as in
// "www.livejournal.com" -> "livejournal.com".
func serverDomain(server string) string {
	parts := strings.Split(server, ".")
	if len(parts) > 3 {
		parts = append([]string{strings.Join(parts[:len(parts)-2], ".")}, parts[len(parts)-2:]...)
	}
	return strings.Join(parts[1:], ".")
}

// Import implements Source.
func (lj *LiveJournal) Import(ctx context.Context, author *models.User) (*Result, error) {
	var export ljExport
	if err := decodeXMLFile(lj.opts.Path, &export); err != nil {
		return nil, err
	}
	if export.Username == "" || export.Server == "" {
		return nil, fmt.Errorf("%w: export has no username or server", ErrMalformedRecord)
	}

	j := &ljJournal{
		author:  author,
		domain:  serverDomain(export.Server),
		prefix:  lj.opts.AtomIDPrefix,
		avatars: make(map[string]*models.Avatar),
		groups:  make(map[int]*models.TrustGroup),
	}
	if j.prefix == "" {
		j.prefix = fmt.Sprintf("urn:lj:%s:atom1:%s:", j.domain, export.Username)
	}
	j.authorOpenID = j.openIDFor(export.Username)
	if _, err := lj.claimIdentity(ctx, j.authorOpenID, author, false); err != nil {
		return nil, err
	}

	lj.log.Info().Str("journal", export.Username).Str("atom_prefix", j.prefix).Int("events", len(export.Events)).Msg("Importing LiveJournal export")

	if lj.opts.FOAFPath != "" {
		if err := lj.importFOAF(j); err != nil {
			return nil, err
		}
	}
	if err := lj.importUserpics(ctx, j, export.Userpics); err != nil {
		return nil, err
	}
	if err := lj.importFriends(ctx, j, export.Groups, export.Friends); err != nil {
		return nil, err
	}
	for i := range export.Events {
		if err := lj.importEvent(ctx, j, &export.Events[i]); err != nil {
			return nil, err
		}
	}
	return lj.result, nil
}

const foafNS = "http://xmlns.com/foaf/0.1/"

type foafPerson struct {
	nick       string
	memberName string
}

// importFOAF learns friends' display names from every foaf:Person in the
// document, however deeply nested.
func (lj *LiveJournal) importFOAF(j *ljJournal) error {
	f, err := os.Open(lj.opts.FOAFPath)
	if err != nil {
		return err
	}
	defer f.Close()

	d := xml.NewDecoder(f)
	d.CharsetReader = charset.NewReaderLabel
	var people []*foafPerson
	var field *string
	for {
		tok, err := d.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: FOAF document is not valid XML: %v", ErrMalformedRecord, err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			field = nil
			if el.Name.Space != foafNS {
				continue
			}
			switch el.Name.Local {
			case "Person":
				people = append(people, &foafPerson{})
			case "nick":
				if len(people) > 0 {
					field = &people[len(people)-1].nick
				}
			case "member_name":
				if len(people) > 0 {
					field = &people[len(people)-1].memberName
				}
			}
		case xml.CharData:
			if field != nil {
				*field += string(el)
			}
		case xml.EndElement:
			field = nil
			if el.Name.Space != foafNS || el.Name.Local != "Person" || len(people) == 0 {
				continue
			}
			person := people[len(people)-1]
			people = people[:len(people)-1]
			nick := strings.TrimSpace(person.nick)
			if nick == "" {
				continue
			}
			lj.log.Debug().Str("nick", nick).Msg("Processing FOAF person")
			lj.foafNames[j.openIDFor(nick)] = strings.TrimSpace(person.memberName)
		}
	}
}

func (lj *LiveJournal) importUserpics(ctx context.Context, j *ljJournal, pics []ljUserpic) error {
	for _, pic := range pics {
		lj.log.Debug().Str("keyword", pic.Keyword).Msg("Importing userpic")
		filename := slug.Slugify(pic.Keyword)
		if filename == "" {
			filename = "userpic"
		}
		avatar, err := lj.avatarFor(ctx, j.author, pic.Keyword, filename, func(context.Context) ([]byte, error) {
			data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(pic.Data), ""))
			if err != nil {
				return nil, fmt.Errorf("%w: userpic %q is not base64: %v", ErrMalformedRecord, pic.Keyword, err)
			}
			return data, nil
		})
		if err != nil {
			return err
		}
		j.avatars[pic.Keyword] = avatar
	}
	return nil
}

func (lj *LiveJournal) importFriends(ctx context.Context, j *ljJournal, groups []ljGroup, friends []ljFriend) error {
	for _, g := range groups {
		group, err := lj.groupFor(ctx, j.author.ID, fmt.Sprintf("%sgroup:%d", j.prefix, g.ID), g.Name)
		if err != nil {
			return err
		}
		j.groups[g.ID] = group
	}

	allFriends, err := lj.groupFor(ctx, j.author.ID, j.prefix+"friends", "LiveJournal friends")
	if err != nil {
		return err
	}
	j.allFriends = allFriends

	for _, friend := range friends {
		openID := j.openIDFor(friend.Username)
		displayName := friend.FullName
		if displayName == "" {
			displayName = lj.foafNames[openID]
		}
		ident, _, err := lj.personFor(ctx, openID, friend.Username, displayName)
		if err != nil {
			return err
		}

		groupIDs := []string{allFriends.ID}
		for _, id := range friend.Groups {
			group, ok := j.groups[id]
			if !ok {
				return fmt.Errorf("%w: friend %s is in unknown group %d", ErrMalformedRecord, friend.Username, id)
			}
			groupIDs = append(groupIDs, group.ID)
		}
		lj.log.Debug().Str("friend", friend.Username).Ints("groups", friend.Groups).Msg("Setting friend's groups")
		if err := lj.repos.TrustGroup.SetMemberships(ctx, j.author.ID, ident.ID, groupIDs); err != nil {
			return fmt.Errorf("failed to set groups for %s: %w", friend.Username, err)
		}
	}
	return nil
}

const ljEventDate = "2006-01-02 15:04:05"

func (lj *LiveJournal) importEvent(ctx context.Context, j *ljJournal, event *ljEvent) error {
	atomID := j.prefix + event.DItemID
	lj.log.Debug().Str("ditemid", event.DItemID).Msg("Parsing event")

	post, isNew, err := lj.findPost(ctx, atomID)
	if err != nil {
		return err
	}

	post.Title = markup.StripTags(event.Subject)
	post.AuthorID = j.author.ID
	if post.Published, err = parseTime(ljEventDate, event.Date, "event "+event.DItemID); err != nil {
		return err
	}

	if post.HTML, err = markup.RewriteLiveJournal(event.Event); err != nil {
		return err
	}
	post.HTML = markup.Generic.Normalize(post.HTML, event.Props.flag("opt_preformatted"))

	linked, err := lj.resolveAssets(ctx, post)
	if err != nil {
		return err
	}

	if avatar, ok := j.avatars[event.Props.get("picture_keyword")]; ok {
		post.AvatarID = avatar.ID
	}

	if post.Slug == "" {
		excerpt := markup.TruncateWords(markup.StripTags(post.HTML), 7)
		if err := lj.allocateSlug(ctx, post, post.Title, excerpt); err != nil {
			return err
		}
	}

	// Privacy is only decided on first import so later edits survive.
	if isNew {
		if err := j.applySecurity(post, event); err != nil {
			return err
		}
	}

	if err := lj.savePost(ctx, post, isNew, linked); err != nil {
		return err
	}

	legacy, err := url.Parse(j.authorOpenID)
	if err != nil {
		return err
	}
	legacy = legacy.ResolveReference(&url.URL{Path: event.DItemID + ".html"})
	if err := lj.ensureLegacyURL(ctx, post, legacy.String()); err != nil {
		return err
	}
	if err := lj.notify(ctx, post, isNew); err != nil {
		return err
	}
	lj.log.Info().Str("ditemid", event.DItemID).Str("title", post.Title).Str("post_id", post.ID).Msg("Saved post")

	for i := range event.Comments {
		if err := lj.importComment(ctx, j, &event.Comments[i], post, nil); err != nil {
			return err
		}
	}
	return nil
}

func (j *ljJournal) applySecurity(post *models.Post, event *ljEvent) error {
	switch event.Security {
	case "private":
		post.Private = true
	case "usemask":
		mask, err := strconv.ParseUint(strings.TrimSpace(event.AllowMask), 10, 32)
		if err != nil {
			return fmt.Errorf("%w: event %s has bad allowmask %q", ErrMalformedRecord, event.DItemID, event.AllowMask)
		}
		groupIDs := make(map[int]string, len(j.groups))
		for id, g := range j.groups {
			groupIDs[id] = g.ID
		}
		post.Private = true
		post.PrivateTo = DecodeFriendMask(uint32(mask), j.allFriends.ID, groupIDs)
	default:
		post.Private = false
		post.PrivateTo = nil
	}
	return nil
}

// DecodeFriendMask turns a LiveJournal allowmask into trust group IDs. A mask
// of exactly 1 means all friends. Otherwise bits 1 through 29 name custom
// groups; bits for groups that do not exist are dropped, and the all-friends
// bit only counts when no other bit is set.
func DecodeFriendMask(mask uint32, allFriendsID string, groups map[int]string) []string {
	result := []string{}
	if mask == 1 {
		result = append(result, allFriendsID)
	}
	for i := 1; i < 30; i++ {
		mask >>= 1
		if mask == 0 {
			break
		}
		if mask&1 == 0 {
			continue
		}
		if id, ok := groups[i]; ok {
			result = append(result, id)
		}
	}
	return result
}

const ljCommentDate = "2006-01-02T15:04:05Z"

func (lj *LiveJournal) importComment(ctx context.Context, j *ljJournal, el *ljComment, post *models.Post, parent *models.PostComment) error {
	atomID := post.AtomID + ":talk:" + el.JTalkID
	lj.log.Debug().Str("jtalkid", el.JTalkID).Msg("Importing comment")

	comment, isNew, err := lj.findComment(ctx, atomID)
	if err != nil {
		return err
	}

	comment.Title = el.Subject
	if el.Props.flag("opt_preformatted") {
		comment.Body = el.Body
	} else {
		tidied, err := markup.Tidy(el.Body)
		if err != nil {
			return err
		}
		comment.Body = markup.Generic.Transform(tidied)
	}

	comment.PostID = post.ID
	comment.InReplyToID = ""
	if parent != nil {
		comment.InReplyToID = parent.ID
	}

	if el.Poster != "" {
		openID := j.openIDFor(el.Poster)
		_, user, err := lj.personFor(ctx, openID, el.Poster, lj.foafNames[openID])
		if err != nil {
			return err
		}
		comment.UserID = user.ID
		comment.UserName = el.Poster
		comment.UserURL = openID
	} else {
		comment.UserID = ""
		comment.UserName = "anonymous"
		comment.UserURL = ""
	}

	if comment.SubmittedAt, err = parseTime(ljCommentDate, el.Date, "comment "+atomID); err != nil {
		return err
	}
	comment.IsPublic = true

	if err := lj.saveComment(ctx, comment, isNew); err != nil {
		return err
	}

	for i := range el.Replies {
		if err := lj.importComment(ctx, j, &el.Replies[i], post, comment); err != nil {
			return err
		}
	}
	return nil
}
