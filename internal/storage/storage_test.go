package storage

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "my_photo_1_.jpg", SanitizeFilename("my photo (1).jpg"))
	assert.Equal(t, "plain-name_v2.png", SanitizeFilename("plain-name_v2.png"))
	assert.Equal(t, "file", SanitizeFilename(""))
	assert.Equal(t, "file", SanitizeFilename(".."))
}

func TestUniqueName(t *testing.T) {
	a := UniqueName("assets", "cat.jpg")
	b := UniqueName("assets", "cat.jpg")

	assert.NotEqual(t, a, b)
	assert.Regexp(t, regexp.MustCompile(`^assets/[0-9a-f-]{36}-cat\.jpg$`), a)
}

func TestLocalStoreSave(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root, "/media/")

	saved, err := store.Save(context.Background(), "assets", "hello world.txt", strings.NewReader("hello"))
	require.NoError(t, err)

	assert.Equal(t, int64(5), saved.Size)
	assert.True(t, strings.HasPrefix(saved.Name, "assets/"))
	assert.True(t, strings.HasSuffix(saved.Name, "-hello_world.txt"))
	assert.Equal(t, "/media/"+saved.Name, saved.URL)

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(saved.Name)))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestLocalStoreSaveHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocalStore(t.TempDir(), "/media").Save(ctx, "assets", "x", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
