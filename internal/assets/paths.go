// Package assets imports files referenced from post HTML into managed
// storage.
package assets

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// PathResolver maps an external URL to a file on disk.
type PathResolver interface {
	PathForURL(rawURL string) (string, bool)
}

// PathResolverFunc adapts a function to PathResolver.
type PathResolverFunc func(rawURL string) (string, bool)

// PathForURL calls f.
func (f PathResolverFunc) PathForURL(rawURL string) (string, bool) { return f(rawURL) }

// Chain asks each resolver in turn and returns the first answer.
type Chain []PathResolver

// PathForURL implements PathResolver.
func (c Chain) PathForURL(rawURL string) (string, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if p, ok := r.PathForURL(rawURL); ok {
			return p, true
		}
	}
	return "", false
}

type prefixEntry struct {
	prefix string
	dir    string
}

// PrefixMap maps URL prefixes to directories. The first prefix added that
// matches a URL wins; the rest of the URL is unquoted and joined to its
// directory.
type PrefixMap struct {
	entries    []prefixEntry
	extensions []string
}

// NewPrefixMap creates an empty map.
func NewPrefixMap() *PrefixMap {
	return &PrefixMap{}
}

// Add maps prefix to dir.
func (m *PrefixMap) Add(prefix, dir string) {
	m.entries = append(m.entries, prefixEntry{prefix: prefix, dir: dir})
}

// Merge appends the entries of other.
func (m *PrefixMap) Merge(other *PrefixMap) {
	if other == nil {
		return
	}
	m.entries = append(m.entries, other.entries...)
}

// Len returns the number of prefixes.
func (m *PrefixMap) Len() int { return len(m.entries) }

// WithExtensionProbe makes the map try stem.ext for each extension when the
// mapped file does not exist. LiveJournal image URLs omit the extension.
func (m *PrefixMap) WithExtensionProbe(exts ...string) *PrefixMap {
	m.extensions = exts
	return m
}

// PathForURL implements PathResolver. The returned path may not exist.
func (m *PrefixMap) PathForURL(rawURL string) (string, bool) {
	for _, e := range m.entries {
		if !strings.HasPrefix(rawURL, e.prefix) {
			continue
		}
		rest := rawURL[len(e.prefix):]
		if unquoted, err := url.PathUnescape(rest); err == nil {
			rest = unquoted
		}
		p := filepath.Join(e.dir, filepath.FromSlash(rest))
		return m.probe(p), true
	}
	return "", false
}

func (m *PrefixMap) probe(p string) string {
	if len(m.extensions) == 0 || exists(p) {
		return p
	}
	stem := strings.TrimRight(p, string(filepath.Separator))
	for _, ext := range m.extensions {
		if candidate := stem + "." + ext; exists(candidate) {
			return candidate
		}
	}
	return p
}

// ParsePrefixMaps parses BASEURL=PATH specs. A leading ~ in PATH is
// expanded to the home directory.
func ParsePrefixMaps(specs []string) (*PrefixMap, error) {
	m := NewPrefixMap()
	for _, spec := range specs {
		prefix, dir, ok := strings.Cut(spec, "=")
		if !ok || prefix == "" || dir == "" {
			return nil, fmt.Errorf("invalid image map %q: expected BASEURL=PATH", spec)
		}
		m.Add(prefix, expandHome(dir))
	}
	return m, nil
}

// LoadFilemap reads URL=PATH lines from the file at path. Relative paths
// are resolved against the directory holding the file. Blank lines are
// ignored.
func LoadFilemap(path string) (*PrefixMap, error) {
	abs, err := filepath.Abs(expandHome(path))
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open filemap: %w", err)
	}
	defer f.Close()

	base := filepath.Dir(abs)
	m := NewPrefixMap()
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		prefix, dir, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("filemap %s line %d: expected URL=PATH", path, lineNum)
		}
		dir = expandHome(dir)
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(base, dir)
		}
		m.Add(prefix, filepath.Clean(dir))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read filemap: %w", err)
	}
	return m, nil
}

// AssetIDFiles finds exported files named after an asset ID found in the
// URL. Only files that exist are returned.
type AssetIDFiles struct {
	pattern    *regexp.Regexp
	dir        string
	extensions []string
}

// PathForURL implements PathResolver.
func (a *AssetIDFiles) PathForURL(rawURL string) (string, bool) {
	mo := a.pattern.FindStringSubmatch(rawURL)
	if mo == nil {
		return "", false
	}
	for _, ext := range a.extensions {
		p := filepath.Join(a.dir, mo[1]+"-pi."+ext)
		if exists(p) {
			return p, true
		}
	}
	return "", false
}

// TypePadFiles resolves TypePad asset URLs to the <id>-pi files of a
// TypePad export directory.
func TypePadFiles(dir string) *AssetIDFiles {
	return &AssetIDFiles{
		pattern:    regexp.MustCompile(`(6a\w+)`),
		dir:        dir,
		extensions: []string{"jpeg", "gif", "png"},
	}
}

// VoxFiles resolves Vox asset URLs to the assets directory that sits next
// to a Vox export.
func VoxFiles(exportDir string) *AssetIDFiles {
	return &AssetIDFiles{
		pattern:    regexp.MustCompile(`^http://a\d+\.vox\.com/(6a\w+)`),
		dir:        filepath.Join(exportDir, "assets"),
		extensions: []string{"gif", "jpg", "png"},
	}
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
