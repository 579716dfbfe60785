package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/airo-ugent/airo-dataset-tools/pkg/augment"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 95, c.Output.Quality)
	assert.Equal(t, 1, c.Workers)
	assert.Empty(t, c.Transforms)
	assert.Nil(t, c.SkipFunc())
	assert.NoError(t, c.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transforms.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"transforms": [
			{"type": "resize", "attributes": {"width": 128, "height": 96}},
			{"type": "horizontal_flip"}
		],
		"workers": 4,
		"skip_patterns": ["val/**"]
	}`), 0o644))

	c, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, 4, c.Workers)
	// unset keys keep their defaults
	assert.Equal(t, 95, c.Output.Quality)

	p, err := c.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, []string{"resize(128x96)", "horizontal_flip(p=0.5)"}, p.Names())
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestSaveToFile(t *testing.T) {
	c := Default()
	c.Transforms = []augment.Spec{{Type: "rotate90", Attributes: map[string]any{"k": 2}}}
	c.Seed = 7
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	require.NoError(t, c.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), loaded.Seed)
	require.Len(t, loaded.Transforms, 1)
	assert.Equal(t, "rotate90", loaded.Transforms[0].Type)

	p, err := loaded.Pipeline()
	require.NoError(t, err)
	assert.Equal(t, []string{"rotate90(k=2,p=1)"}, p.Names())
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Output.Quality = 0
	c.Workers = 0
	c.SkipPatterns = []string{"[abc"}
	c.Transforms = []augment.Spec{{Type: "shear"}}

	err := c.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "output.quality")
	assert.ErrorContains(t, err, "workers")
	assert.ErrorContains(t, err, "skip pattern")
	assert.ErrorContains(t, err, "unknown transform type")
}

func TestSkipFunc(t *testing.T) {
	c := Default()
	c.SkipPatterns = []string{"val/**", "*_depth.png"}
	skip := c.SkipFunc()
	require.NotNil(t, skip)

	assert.True(t, skip("val/images/0001.png"))
	assert.True(t, skip("0001_depth.png"))
	assert.False(t, skip("train/0001.png"))
	assert.False(t, skip("train/0001_depth.png"))
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "transforms.json", filepath.Base(GetConfigPath()))
}

func TestLoggerHonoursDebug(t *testing.T) {
	c := Default()
	assert.False(t, c.Logger("test", false).Desugar().Core().Enabled(zap.DebugLevel))
	assert.True(t, c.Logger("test", true).Desugar().Core().Enabled(zap.DebugLevel))

	c.Debug = true
	assert.True(t, c.Logger("test", false).Desugar().Core().Enabled(zap.DebugLevel))
}
