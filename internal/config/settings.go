// Package config holds tool-wide settings and constants.
//
// Settings come from an optional .specialize.yaml, then SPECIALIZE_*
// environment variables, then command-line flags, each layer overriding
// the previous one.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

// Settings configures the generator.
type Settings struct {
	LogLevel string   `koanf:"log_level"`
	Color    string   `koanf:"color"`
	Strict   bool     `koanf:"strict"`
	NoCache  bool     `koanf:"no_cache"`
	CacheDir string   `koanf:"cache_dir"`
	Tags     []string `koanf:"tags"`
}

// Load reads settings from path and the environment. An empty path uses
// SettingsFileName in the current directory when it exists.
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = SettingsFileName
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading settings %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var s Settings
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetDefaults fills in omitted values.
func (s *Settings) SetDefaults() {
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.Color == "" {
		s.Color = DefaultColor
	}

	// Environment values arrive as one comma-separated string.
	var tags []string
	for _, t := range s.Tags {
		for _, part := range strings.Split(t, ",") {
			if part = strings.TrimSpace(part); part != "" {
				tags = append(tags, part)
			}
		}
	}
	s.Tags = tags
}

// Validate checks enumerated values.
func (s *Settings) Validate() error {
	if _, err := zerolog.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch s.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("color: %q must be auto, always or never", s.Color)
	}
	return nil
}
