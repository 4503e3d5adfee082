package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bee-cms/bee/internal/models"
	"github.com/bee-cms/bee/internal/repository"
	"github.com/rs/zerolog"
)

const flushEvery = 100

// exportService is the concrete implementation of ExportService
type exportService struct {
	repos *repository.Repositories
	log   zerolog.Logger
}

// newExportService creates a new ExportService
func newExportService(repos *repository.Repositories, log zerolog.Logger) *exportService {
	return &exportService{
		repos: repos,
		log:   log.With().Str("service", "export").Logger(),
	}
}

// StreamPosts streams posts in the specified format
func (s *exportService) StreamPosts(ctx context.Context, w http.ResponseWriter, format string) error {
	s.log.Info().Str("format", format).Msg("Starting posts export")

	stream := func(fn func(*models.Post) error) error {
		return s.repos.Post.StreamAll(ctx, fn)
	}

	var (
		count int
		err   error
	)
	switch format {
	case "ndjson":
		count, err = streamNDJSON(w, "posts", stream)
	case "json":
		count, err = streamJSONArray(w, "posts", stream)
	case "csv":
		count, err = s.streamPostsCSV(w, stream)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	s.log.Info().Int("count", count).Msg("Posts export completed")
	return err
}

// StreamComments streams comments in the specified format
func (s *exportService) StreamComments(ctx context.Context, w http.ResponseWriter, format string) error {
	s.log.Info().Str("format", format).Msg("Starting comments export")

	stream := func(fn func(*models.PostComment) error) error {
		return s.repos.Comment.StreamAll(ctx, fn)
	}

	var (
		count int
		err   error
	)
	switch format {
	case "ndjson":
		count, err = streamNDJSON(w, "comments", stream)
	case "json":
		count, err = streamJSONArray(w, "comments", stream)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	s.log.Info().Int("count", count).Msg("Comments export completed")
	return err
}

func streamNDJSON[T any](w http.ResponseWriter, name string, stream func(func(T) error) error) (int, error) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", "attachment; filename="+name+".ndjson")

	flusher, _ := w.(http.Flusher)
	count := 0

	err := stream(func(record T) error {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
		count++

		if count%flushEvery == 0 && flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	return count, err
}

func streamJSONArray[T any](w http.ResponseWriter, name string, stream func(func(T) error) error) (int, error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename="+name+".json")

	if _, err := w.Write([]byte("[")); err != nil {
		return 0, err
	}
	count := 0

	err := stream(func(record T) error {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		if count > 0 {
			data = append([]byte(","), data...)
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}

	_, err = w.Write([]byte("]"))
	return count, err
}

func (s *exportService) streamPostsCSV(w http.ResponseWriter, stream func(func(*models.Post) error) error) (int, error) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=posts.csv")

	writer := csv.NewWriter(w)
	count := 0

	if err := writer.Write([]string{"id", "author_id", "slug", "title", "atom_id", "private", "comments_enabled", "tags", "published"}); err != nil {
		return 0, err
	}

	err := stream(func(p *models.Post) error {
		count++
		return writer.Write([]string{
			p.ID,
			p.AuthorID,
			p.Slug,
			p.Title,
			p.AtomID,
			strconv.FormatBool(p.Private),
			strconv.FormatBool(p.CommentsEnabled),
			strings.Join(p.Tags, ","),
			p.Published.UTC().Format(time.RFC3339),
		})
	})

	writer.Flush()
	if err != nil {
		return count, err
	}
	return count, writer.Error()
}

// GetCount returns the number of stored records of a resource
func (s *exportService) GetCount(ctx context.Context, resource string) (int, error) {
	switch resource {
	case "users":
		return s.repos.User.Count(ctx)
	case "posts":
		return s.repos.Post.Count(ctx)
	case "comments":
		return s.repos.Comment.Count(ctx)
	case "assets":
		return s.repos.Asset.Count(ctx)
	default:
		return 0, fmt.Errorf("unknown resource: %s", resource)
	}
}
