package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bee-cms/bee/internal/models"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// AvatarFolder is the storage folder avatars are saved under.
const AvatarFolder = "avatars"

// Fetcher downloads remote files.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches over HTTP with a fixed timeout and no retries.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher whose requests give up after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch GETs url and returns the body of a 200 response.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var imageExtensions = map[string]string{
	"image/gif":  ".gif",
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/bmp":  ".bmp",
	"image/webp": ".webp",
}

// avatarFor returns the user's avatar called name, creating it from the
// bytes load returns when it does not exist yet.
func (b *base) avatarFor(ctx context.Context, user *models.User, name, filename string, load func(context.Context) ([]byte, error)) (*models.Avatar, error) {
	existing, err := b.repos.Avatar.GetByName(ctx, user.ID, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	data, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load avatar %q: %w", name, err)
	}

	avatar := &models.Avatar{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Name:      name,
		CreatedAt: time.Now(),
	}
	if img, err := imaging.Decode(bytes.NewReader(data)); err != nil {
		b.log.Warn().Str("avatar", name).Err(err).Msg("Couldn't read avatar dimensions")
	} else {
		avatar.Width = img.Bounds().Dx()
		avatar.Height = img.Bounds().Dy()
	}

	stored, err := b.store.Save(ctx, AvatarFolder, filename+imageExtensions[http.DetectContentType(data)], bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to store avatar %q: %w", name, err)
	}
	avatar.StorageName = stored.Name
	avatar.URL = stored.URL

	if err := b.repos.Avatar.Create(ctx, avatar); err != nil {
		return nil, fmt.Errorf("failed to create avatar %q: %w", name, err)
	}
	b.log.Debug().Str("avatar", name).Str("url", avatar.URL).Msg("Imported avatar")
	return avatar, nil
}
