package service

import (
	"context"
	"fmt"

	"github.com/bee-cms/bee/internal/linkfix"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/rs/zerolog"
)

// linkService is the concrete implementation of LinkService
type linkService struct {
	repos    *repository.Repositories
	rewriter *linkfix.Rewriter
	log      zerolog.Logger
}

func newLinkService(repos *repository.Repositories, rewriter *linkfix.Rewriter, log zerolog.Logger) *linkService {
	return &linkService{
		repos:    repos,
		rewriter: rewriter,
		log:      log.With().Str("service", "links").Logger(),
	}
}

func (s *linkService) Resolve(ctx context.Context, netloc, path string) (string, error) {
	legacy, err := s.repos.LegacyURL.GetByLocation(ctx, netloc, path)
	if err != nil || legacy == nil {
		return "", err
	}
	post, err := s.repos.Post.GetByID(ctx, legacy.PostID)
	if err != nil || post == nil {
		return "", err
	}
	if post.Private {
		return "", nil
	}
	author, err := s.repos.User.GetByID(ctx, post.AuthorID)
	if err != nil {
		return "", fmt.Errorf("failed to look up author of post %s: %w", post.ID, err)
	}
	if author == nil || author.SiteDomain == "" {
		s.log.Warn().Str("post_id", post.ID).Msg("Post author has no site domain")
		return "", nil
	}
	return post.Permalink(author.SiteDomain), nil
}

func (s *linkService) RewriteLinks(ctx context.Context, authorID string) (*linkfix.Stats, error) {
	return s.rewriter.RewriteAuthor(ctx, authorID)
}
