package mocks

import (
	"context"
	"fmt"
	"sort"

	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/repository"
)

// NewRepositories wires a full set of in-memory repositories.
func NewRepositories() *repository.Repositories {
	return &repository.Repositories{
		User:       NewMockUserRepository(),
		Identity:   NewMockIdentityRepository(),
		Post:       NewMockPostRepository(),
		Comment:    NewMockCommentRepository(),
		Asset:      NewMockAssetRepository(),
		TrustGroup: NewMockTrustGroupRepository(),
		Avatar:     NewMockAvatarRepository(),
		LegacyURL:  NewMockLegacyURLRepository(),
		ImportRun:  NewMockImportRunRepository(),
	}
}

func duplicate(what string) error {
	return fmt.Errorf("%w: %s", repository.ErrDuplicate, what)
}

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	Users       map[string]*models.User
	InsertError error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{Users: make(map[string]*models.User)}
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	for _, u := range m.Users {
		if u.Username == user.Username {
			return duplicate("users_username_key")
		}
	}
	stored := *user
	m.Users[user.ID] = &stored
	return nil
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	stored := *user
	m.Users[user.ID] = &stored
	return nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.Users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, nil
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	for _, u := range m.Users {
		if u.Username == username {
			c := *u
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MockUserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	u, _ := m.GetByUsername(ctx, username)
	return u != nil, nil
}

func (m *MockUserRepository) Count(ctx context.Context) (int, error) {
	return len(m.Users), nil
}

// MockIdentityRepository is a mock implementation of IdentityRepository
type MockIdentityRepository struct {
	Identities map[string]*models.Identity
}

func NewMockIdentityRepository() *MockIdentityRepository {
	return &MockIdentityRepository{Identities: make(map[string]*models.Identity)}
}

func (m *MockIdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	if _, ok := m.Identities[identity.Identifier]; ok {
		return duplicate("identities_identifier_key")
	}
	stored := *identity
	m.Identities[identity.Identifier] = &stored
	return nil
}

func (m *MockIdentityRepository) BindUser(ctx context.Context, identityID, userID string) error {
	for _, ident := range m.Identities {
		if ident.ID == identityID {
			ident.UserID = userID
		}
	}
	return nil
}

func (m *MockIdentityRepository) GetByIdentifier(ctx context.Context, identifier string) (*models.Identity, error) {
	if ident, ok := m.Identities[identifier]; ok {
		c := *ident
		return &c, nil
	}
	return nil, nil
}

// MockPostRepository is a mock implementation of PostRepository
type MockPostRepository struct {
	Posts       map[string]*models.Post
	InsertError error
	UpdateCalls int
}

func NewMockPostRepository() *MockPostRepository {
	return &MockPostRepository{Posts: make(map[string]*models.Post)}
}

func (m *MockPostRepository) checkUnique(post *models.Post) error {
	for _, p := range m.Posts {
		if p.ID == post.ID {
			continue
		}
		if p.AtomID == post.AtomID {
			return duplicate("posts_atom_id_key")
		}
		if p.AuthorID == post.AuthorID && p.Slug == post.Slug {
			return duplicate("posts_author_id_slug_key")
		}
	}
	return nil
}

func (m *MockPostRepository) Create(ctx context.Context, post *models.Post) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	if err := m.checkUnique(post); err != nil {
		return err
	}
	m.Posts[post.ID] = clonePost(post)
	return nil
}

func (m *MockPostRepository) Update(ctx context.Context, post *models.Post) error {
	m.UpdateCalls++
	if err := m.checkUnique(post); err != nil {
		return err
	}
	m.Posts[post.ID] = clonePost(post)
	return nil
}

func (m *MockPostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	if p, ok := m.Posts[id]; ok {
		return clonePost(p), nil
	}
	return nil, nil
}

func (m *MockPostRepository) GetByAtomID(ctx context.Context, atomID string) (*models.Post, error) {
	for _, p := range m.Posts {
		if p.AtomID == atomID {
			return clonePost(p), nil
		}
	}
	return nil, nil
}

func (m *MockPostRepository) SlugExists(ctx context.Context, authorID, slug, excludeID string) (bool, error) {
	for _, p := range m.Posts {
		if p.AuthorID == authorID && p.Slug == slug && (excludeID == "" || p.ID != excludeID) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockPostRepository) Count(ctx context.Context) (int, error) {
	return len(m.Posts), nil
}

func (m *MockPostRepository) StreamByAuthor(ctx context.Context, authorID string, callback func(*models.Post) error) error {
	for _, p := range m.sorted() {
		if p.AuthorID != authorID {
			continue
		}
		if err := callback(clonePost(p)); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockPostRepository) StreamAll(ctx context.Context, callback func(*models.Post) error) error {
	for _, p := range m.sorted() {
		if err := callback(clonePost(p)); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockPostRepository) sorted() []*models.Post {
	posts := make([]*models.Post, 0, len(m.Posts))
	for _, p := range m.Posts {
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].Published.Equal(posts[j].Published) {
			return posts[i].Published.Before(posts[j].Published)
		}
		return posts[i].ID < posts[j].ID
	})
	return posts
}

func clonePost(p *models.Post) *models.Post {
	c := *p
	c.Tags = append([]string(nil), p.Tags...)
	c.PrivateTo = append([]string(nil), p.PrivateTo...)
	return &c
}

// MockCommentRepository is a mock implementation of CommentRepository
type MockCommentRepository struct {
	Comments    map[string]*models.PostComment
	InsertError error
}

func NewMockCommentRepository() *MockCommentRepository {
	return &MockCommentRepository{Comments: make(map[string]*models.PostComment)}
}

func (m *MockCommentRepository) Create(ctx context.Context, c *models.PostComment) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	if c.AtomID != "" {
		if existing, _ := m.GetByAtomID(ctx, c.AtomID); existing != nil {
			return duplicate("post_comments_atom_id_key")
		}
	}
	stored := *c
	m.Comments[c.ID] = &stored
	return nil
}

func (m *MockCommentRepository) Update(ctx context.Context, c *models.PostComment) error {
	stored := *c
	if prev, ok := m.Comments[c.ID]; ok {
		stored.IsRemoved = prev.IsRemoved
	}
	m.Comments[c.ID] = &stored
	return nil
}

func (m *MockCommentRepository) GetByAtomID(ctx context.Context, atomID string) (*models.PostComment, error) {
	for _, c := range m.Comments {
		if c.AtomID == atomID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MockCommentRepository) Count(ctx context.Context) (int, error) {
	return len(m.Comments), nil
}

func (m *MockCommentRepository) StreamAll(ctx context.Context, callback func(*models.PostComment) error) error {
	comments := make([]*models.PostComment, 0, len(m.Comments))
	for _, c := range m.Comments {
		comments = append(comments, c)
	}
	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].SubmittedAt.Equal(comments[j].SubmittedAt) {
			return comments[i].SubmittedAt.Before(comments[j].SubmittedAt)
		}
		return comments[i].ID < comments[j].ID
	})
	for _, c := range comments {
		cp := *c
		if err := callback(&cp); err != nil {
			return err
		}
	}
	return nil
}

// MockAssetRepository is a mock implementation of AssetRepository
type MockAssetRepository struct {
	Assets map[string]*models.Asset
	// Links maps asset ID to the set of post IDs referencing it.
	Links map[string]map[string]bool
}

func NewMockAssetRepository() *MockAssetRepository {
	return &MockAssetRepository{
		Assets: make(map[string]*models.Asset),
		Links:  make(map[string]map[string]bool),
	}
}

func (m *MockAssetRepository) Create(ctx context.Context, asset *models.Asset) error {
	for _, a := range m.Assets {
		if a.OriginalURL == asset.OriginalURL {
			return duplicate("assets_original_url_key")
		}
	}
	stored := *asset
	m.Assets[asset.ID] = &stored
	return nil
}

func (m *MockAssetRepository) GetByOriginalURL(ctx context.Context, authorID, originalURL string) (*models.Asset, error) {
	for _, a := range m.Assets {
		if a.AuthorID == authorID && a.OriginalURL == originalURL {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MockAssetRepository) AttachToPost(ctx context.Context, assetID, postID string) error {
	if m.Links[assetID] == nil {
		m.Links[assetID] = make(map[string]bool)
	}
	m.Links[assetID][postID] = true
	return nil
}

func (m *MockAssetRepository) ListForPost(ctx context.Context, postID string) ([]*models.Asset, error) {
	var assets []*models.Asset
	for id, posts := range m.Links {
		if posts[postID] {
			c := *m.Assets[id]
			assets = append(assets, &c)
		}
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID < assets[j].ID })
	return assets, nil
}

func (m *MockAssetRepository) Count(ctx context.Context) (int, error) {
	return len(m.Assets), nil
}

// MockTrustGroupRepository is a mock implementation of TrustGroupRepository
type MockTrustGroupRepository struct {
	Groups map[string]*models.TrustGroup
	// Members maps group ID to the set of member identity IDs.
	Members map[string]map[string]bool
}

func NewMockTrustGroupRepository() *MockTrustGroupRepository {
	return &MockTrustGroupRepository{
		Groups:  make(map[string]*models.TrustGroup),
		Members: make(map[string]map[string]bool),
	}
}

func (m *MockTrustGroupRepository) Create(ctx context.Context, group *models.TrustGroup) error {
	for _, g := range m.Groups {
		if g.UserID == group.UserID && g.Tag == group.Tag {
			return duplicate("trust_groups_user_id_tag_key")
		}
	}
	stored := *group
	m.Groups[group.ID] = &stored
	return nil
}

func (m *MockTrustGroupRepository) GetByTag(ctx context.Context, userID, tag string) (*models.TrustGroup, error) {
	for _, g := range m.Groups {
		if g.UserID == userID && g.Tag == tag {
			c := *g
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MockTrustGroupRepository) SetMemberships(ctx context.Context, ownerID, identityID string, groupIDs []string) error {
	for id, g := range m.Groups {
		if g.UserID == ownerID && m.Members[id] != nil {
			delete(m.Members[id], identityID)
		}
	}
	for _, id := range groupIDs {
		if m.Members[id] == nil {
			m.Members[id] = make(map[string]bool)
		}
		m.Members[id][identityID] = true
	}
	return nil
}

func (m *MockTrustGroupRepository) ListMembers(ctx context.Context, groupID string) ([]string, error) {
	var ids []string
	for id := range m.Members[groupID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// MockAvatarRepository is a mock implementation of AvatarRepository
type MockAvatarRepository struct {
	Avatars map[string]*models.Avatar
}

func NewMockAvatarRepository() *MockAvatarRepository {
	return &MockAvatarRepository{Avatars: make(map[string]*models.Avatar)}
}

func (m *MockAvatarRepository) Create(ctx context.Context, avatar *models.Avatar) error {
	for _, a := range m.Avatars {
		if a.UserID == avatar.UserID && a.Name == avatar.Name {
			return duplicate("avatars_user_id_name_key")
		}
	}
	stored := *avatar
	m.Avatars[avatar.ID] = &stored
	return nil
}

func (m *MockAvatarRepository) GetByName(ctx context.Context, userID, name string) (*models.Avatar, error) {
	for _, a := range m.Avatars {
		if a.UserID == userID && a.Name == name {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

// MockLegacyURLRepository is a mock implementation of LegacyURLRepository
type MockLegacyURLRepository struct {
	URLs map[string]*models.PostLegacyURL
}

func NewMockLegacyURLRepository() *MockLegacyURLRepository {
	return &MockLegacyURLRepository{URLs: make(map[string]*models.PostLegacyURL)}
}

func (m *MockLegacyURLRepository) Create(ctx context.Context, legacy *models.PostLegacyURL) error {
	for _, l := range m.URLs {
		if l.Netloc == legacy.Netloc && l.Path == legacy.Path {
			return duplicate("post_legacy_urls_netloc_path_key")
		}
	}
	stored := *legacy
	m.URLs[legacy.ID] = &stored
	return nil
}

func (m *MockLegacyURLRepository) GetByPostID(ctx context.Context, postID string) (*models.PostLegacyURL, error) {
	for _, l := range m.URLs {
		if l.PostID == postID {
			c := *l
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MockLegacyURLRepository) GetByLocation(ctx context.Context, netloc, path string) (*models.PostLegacyURL, error) {
	for _, l := range m.URLs {
		if l.Netloc == netloc && l.Path == path {
			c := *l
			return &c, nil
		}
	}
	return nil, nil
}

// MockImportRunRepository is a mock implementation of ImportRunRepository
type MockImportRunRepository struct {
	Runs        map[string]*models.ImportRun
	UpdateCalls int
}

func NewMockImportRunRepository() *MockImportRunRepository {
	return &MockImportRunRepository{Runs: make(map[string]*models.ImportRun)}
}

func (m *MockImportRunRepository) Create(ctx context.Context, run *models.ImportRun) error {
	stored := *run
	m.Runs[run.ID] = &stored
	return nil
}

func (m *MockImportRunRepository) Update(ctx context.Context, run *models.ImportRun) error {
	m.UpdateCalls++
	stored := *run
	m.Runs[run.ID] = &stored
	return nil
}

func (m *MockImportRunRepository) GetByID(ctx context.Context, id string) (*models.ImportRun, error) {
	if r, ok := m.Runs[id]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (m *MockImportRunRepository) ListRecent(ctx context.Context, limit int) ([]*models.ImportRun, error) {
	runs := make([]*models.ImportRun, 0, len(m.Runs))
	for _, r := range m.Runs {
		c := *r
		runs = append(runs, &c)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
