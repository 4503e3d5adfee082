package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bee-cms/bee/internal/markup"
	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/bee-cms/bee/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

// Folder is the storage folder imported assets are saved under.
const Folder = "assets"

// Resolution is the outcome of resolving one post's references.
type Resolution struct {
	HTML    string
	Assets  []*models.Asset
	Created int
	Reused  int
}

// Resolver rewrites <img src> and <a href> references that map to local
// files so they point at managed copies.
type Resolver struct {
	assets repository.AssetRepository
	store  storage.Store
	paths  PathResolver
	log    zerolog.Logger
}

// NewResolver creates a Resolver. A nil paths resolves nothing.
func NewResolver(assets repository.AssetRepository, store storage.Store, paths PathResolver, log zerolog.Logger) *Resolver {
	return &Resolver{
		assets: assets,
		store:  store,
		paths:  paths,
		log:    log.With().Str("component", "assets").Logger(),
	}
}

// Resolve imports every file referenced by htmlText for authorID. Missing or
// unreadable files are logged and their references left alone. The HTML
// comes back unchanged when nothing was rewritten.
func (r *Resolver) Resolve(ctx context.Context, htmlText, authorID string, created time.Time) (*Resolution, error) {
	res := &Resolution{HTML: htmlText}
	if r.paths == nil || htmlText == "" {
		return res, nil
	}

	root, err := markup.ParseFragment(htmlText)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*models.Asset)
	changed := false
	var walkErr error
	markup.Walk(root, func(n *html.Node) {
		if walkErr != nil || n.Type != html.ElementNode {
			return
		}
		var key string
		switch n.Data {
		case "img":
			key = "src"
		case "a":
			key = "href"
		default:
			return
		}
		ref, ok := markup.Attr(n, key)
		if !ok {
			return
		}

		asset, ok := seen[ref]
		if !ok {
			asset, walkErr = r.assetFor(ctx, ref, authorID, created, res)
			if walkErr != nil || asset == nil {
				return
			}
			seen[ref] = asset
			res.Assets = append(res.Assets, asset)
		}
		markup.SetAttr(n, key, asset.URL)
		changed = true
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if changed {
		if res.HTML, err = markup.Render(root); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *Resolver) assetFor(ctx context.Context, ref, authorID string, created time.Time, res *Resolution) (*models.Asset, error) {
	path, ok := r.paths.PathForURL(ref)
	if !ok {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		r.log.Warn().Str("url", ref).Str("path", path).Err(err).Msg("Couldn't import asset: file doesn't exist")
		return nil, nil
	}
	if !info.Mode().IsRegular() {
		r.log.Warn().Str("url", ref).Str("path", path).Msg("Couldn't import asset: path is not a file")
		return nil, nil
	}

	existing, err := r.assets.GetByOriginalURL(ctx, authorID, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to look up asset %s: %w", ref, err)
	}
	if existing != nil {
		r.log.Debug().Str("url", ref).Msg("Already imported asset")
		res.Reused++
		return existing, nil
	}

	f, err := os.Open(path)
	if err != nil {
		r.log.Warn().Str("url", ref).Str("path", path).Err(err).Msg("Couldn't import asset: file is not readable")
		return nil, nil
	}
	defer f.Close()

	stored, err := r.store.Save(ctx, Folder, filepath.Base(path), f)
	if err != nil {
		return nil, fmt.Errorf("failed to store asset %s: %w", ref, err)
	}

	asset := &models.Asset{
		ID:          uuid.New().String(),
		AuthorID:    authorID,
		OriginalURL: ref,
		StorageName: stored.Name,
		URL:         stored.URL,
		CreatedAt:   created,
	}
	if err := r.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("failed to create asset %s: %w", ref, err)
	}

	r.log.Debug().Str("url", ref).Str("stored_url", asset.URL).Msg("Imported asset")
	res.Created++
	return asset, nil
}
