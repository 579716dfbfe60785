package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("test", false)
	assert.True(t, logger.Desugar().Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Desugar().Core().Enabled(zap.DebugLevel))

	debug := NewLogger("test", true)
	assert.True(t, debug.Desugar().Core().Enabled(zap.DebugLevel))
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, "console", cfg.Encoding)
	assert.True(t, cfg.DisableStacktrace)
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)
}
