// Package slug allocates URL-safe post identifiers that are unique within
// an author's namespace.
package slug

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"github.com/bee-cms/bee/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrSlugSpaceExhausted is returned when no unused slug turned up within
// the attempt cap.
var ErrSlugSpaceExhausted = errors.New("slug space exhausted")

const (
	// DefaultMaxAttempts caps how many slugs Allocate tests.
	DefaultMaxAttempts = 10000
	gunkLength         = 7
	// letters plus digits twice, so digits are as likely as letters
	gunkChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ" + "0123456789" + "0123456789"
)

// TakenFunc reports whether slug is already used by another post of the
// same author.
type TakenFunc func(ctx context.Context, slug string) (bool, error)

// Allocator hands out unused slugs.
type Allocator struct {
	rnd         *rand.Rand
	maxAttempts int
	maxLength   int
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithRand sets the source used for random suffixes.
func WithRand(r *rand.Rand) Option {
	return func(a *Allocator) { a.rnd = r }
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) { a.maxAttempts = n }
}

// New creates an Allocator.
func New(opts ...Option) *Allocator {
	a := &Allocator{
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		maxAttempts: DefaultMaxAttempts,
		maxLength:   models.MaxSlugLength,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns the first slug not reported taken. The first candidate
// that slugifies to something non-empty is tried as is, then with random
// seven character suffixes. With no usable candidate only suffixes are tried.
func (a *Allocator) Allocate(ctx context.Context, candidates []string, taken TakenFunc) (string, error) {
	base := ""
	for _, c := range candidates {
		if s := Slugify(c); s != "" {
			base = s
			break
		}
	}

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		var slug string
		switch {
		case base == "":
			slug = Slugify(a.gunk())
		case attempt == 0:
			slug = strings.TrimRight(truncate(base, a.maxLength), "-")
		default:
			// Keep room for the suffix so truncation never cuts it off.
			suffix := Slugify(a.gunk())
			slug = strings.TrimRight(truncate(base, a.maxLength-len(suffix)-1), "-") + "-" + suffix
		}

		used, err := taken(ctx, slug)
		if err != nil {
			return "", fmt.Errorf("failed to check slug %q: %w", slug, err)
		}
		if !used {
			return slug, nil
		}
	}

	return "", fmt.Errorf("%w after %d attempts", ErrSlugSpaceExhausted, a.maxAttempts)
}

func (a *Allocator) gunk() string {
	b := make([]byte, gunkLength)
	for i := range b {
		b[i] = gunkChars[a.rnd.Intn(len(gunkChars))]
	}
	return string(b)
}

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))

// Slugify transliterates s to ASCII, lowercases it, and turns every run of
// characters outside [a-z0-9] into a single hyphen.
func Slugify(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

func truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}
