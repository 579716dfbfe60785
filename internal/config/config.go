package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/airo-ugent/airo-dataset-tools/internal/logging"
	"github.com/airo-ugent/airo-dataset-tools/pkg/augment"
	"github.com/airo-ugent/airo-dataset-tools/pkg/imageio"
)

// Config holds the configuration of a dataset transform run
type Config struct {
	Transforms   []augment.Spec      `json:"transforms"`
	Output       imageio.SaveOptions `json:"output"`
	Workers      int                 `json:"workers"`
	Seed         int64               `json:"seed"`
	SkipPatterns []string            `json:"skip_patterns,omitempty"`
	Debug        bool                `json:"debug,omitempty"`
}

// Default returns a configuration with default values and no transforms
func Default() *Config {
	return &Config{
		Transforms: []augment.Spec{},
		Output:     imageio.DefaultSaveOptions(),
		Workers:    1,
	}
}

// LoadFromFile loads configuration from a JSON file. Missing keys keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	var err error

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		err = multierr.Append(err, errors.New("output.quality must be between 1 and 100"))
	}

	if c.Workers < 1 {
		err = multierr.Append(err, errors.New("workers must be positive"))
	}

	for _, pattern := range c.SkipPatterns {
		if !doublestar.ValidatePattern(pattern) {
			err = multierr.Append(err, errors.Errorf("skip pattern %q is malformed", pattern))
		}
	}

	if _, buildErr := augment.Build(c.Transforms); buildErr != nil {
		err = multierr.Append(err, buildErr)
	}

	return err
}

// Logger returns a named logger at debug level when either debug or the config asks for it.
func (c *Config) Logger(name string, debug bool) *zap.SugaredLogger {
	return logging.NewLogger(name, debug || c.Debug)
}

// Pipeline builds the configured transform pipeline
func (c *Config) Pipeline() (*augment.Pipeline, error) {
	return augment.Build(c.Transforms)
}

// SkipFunc returns a predicate that reports whether an image file name matches one of the skip
// patterns. File names use forward slashes, as in COCO annotation files.
func (c *Config) SkipFunc() func(fileName string) bool {
	if len(c.SkipPatterns) == 0 {
		return nil
	}
	patterns := append([]string(nil), c.SkipPatterns...)
	return func(fileName string) bool {
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, fileName); ok {
				return true
			}
		}
		return false
	}
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./transforms.json"
	}
	return filepath.Join(home, ".config", "airo-dataset-tools", "transforms.json")
}
