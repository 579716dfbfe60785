package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFileExtension(t *testing.T) {
	assert.Equal(t, "png", GetFileExtension("a/b.PNG"))
	assert.Equal(t, "", GetFileExtension("noext"))
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.webp", "e.tif"} {
		assert.True(t, IsImageFile(name), name)
	}
	for _, name := range []string{"a.json", "b.xml", "c"} {
		assert.False(t, IsImageFile(name), name)
	}
}

func TestStem(t *testing.T) {
	assert.Equal(t, "annotations", Stem("/data/set/annotations.json"))
	assert.Equal(t, "annotations", Stem("annotations.v2.json"))
	assert.Equal(t, "plain", Stem("plain"))
}

func TestResizedDatasetDir(t *testing.T) {
	got := ResizedDatasetDir(filepath.Join("data", "towels", "annotations.json"), 256, 128)
	assert.Equal(t, filepath.Join("data", "annotations_resized_256x128"), got)
}

func TestSiblingJSONPath(t *testing.T) {
	assert.Equal(t, filepath.Join("labels", "task.json"), SiblingJSONPath(filepath.Join("labels", "task.xml")))
}

func TestPreviewPath(t *testing.T) {
	assert.Equal(t, filepath.Join("preview", "images", "0001.png"), PreviewPath("preview", "images/0001.jpg"))
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "images"), 0o755))
	for _, name := range []string{"images/a.png", "images/b.jpg", "annotations.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), nil, 0o644))
	}

	files, err := ListImageFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"images/a.png", "images/b.jpg"}, files)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
	assert.True(t, DirExists(dir))
	assert.False(t, DirExists(file))

	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, EnsureDir(nested))
	assert.True(t, DirExists(nested))
}
