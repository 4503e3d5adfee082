// Package storage keeps imported files and hands out stable URLs for them.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// StoredFile describes a saved file.
type StoredFile struct {
	Name string // storage-relative, slash separated
	URL  string
	Size int64
}

// Store saves files and resolves their retrieval URLs.
type Store interface {
	Save(ctx context.Context, folder, filename string, r io.Reader) (*StoredFile, error)
	URL(name string) string
}

// LocalStore keeps files below a directory served at baseURL.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates a store rooted at root.
func NewLocalStore(root, baseURL string) *LocalStore {
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

// Root returns the directory files are written to.
func (s *LocalStore) Root() string { return s.root }

// Save copies r into a new file under folder. The stored name carries a
// random prefix so saving the same filename twice never overwrites.
func (s *LocalStore) Save(ctx context.Context, folder, filename string, r io.Reader) (*StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := UniqueName(folder, filename)
	dest := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return nil, fmt.Errorf("failed to write %s: %w", name, err)
	}

	return &StoredFile{Name: name, URL: s.URL(name), Size: n}, nil
}

// URL returns the public address of a stored name.
func (s *LocalStore) URL(name string) string {
	return s.baseURL + "/" + name
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]+`)

// SanitizeFilename replaces every run of characters outside letters, digits,
// dots, dashes and underscores with an underscore.
func SanitizeFilename(filename string) string {
	safe := unsafeChars.ReplaceAllString(filename, "_")
	if safe == "" || safe == "." || safe == ".." {
		return "file"
	}
	return safe
}

// UniqueName builds a collision-free storage name inside folder.
func UniqueName(folder, filename string) string {
	return path.Join(folder, uuid.New().String()+"-"+SanitizeFilename(filename))
}
