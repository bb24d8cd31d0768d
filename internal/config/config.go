// Package config loads the canvaspipe configuration file.
//
// Precedence, highest first: environment, command-line flags, the YAML
// file, built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Environment variables read by Resolve.
const (
	EnvDatabase = "CANVASPIPE_DB"
	EnvConfig   = "CANVASPIPE_CONFIG"
	EnvLanguage = "CANVASPIPE_LANGUAGE"
)

// Generator kinds.
const (
	GeneratorLocal = "local"
	GeneratorHTTP  = "http"
)

// DefaultDatabase is the store path used when nothing else names one.
const DefaultDatabase = "canvaspipe.db"

// Config is the parsed configuration.
type Config struct {
	Database       string            `yaml:"database"`
	NativeLanguage string            `yaml:"native_language"`
	StagesFile     string            `yaml:"stages_file,omitempty"`
	Translation    TranslationConfig `yaml:"translation"`
	Generator      GeneratorConfig   `yaml:"generator"`
	Approval       ApprovalConfig    `yaml:"approval"`
}

// TranslationConfig tunes the translation cache.
type TranslationConfig struct {
	MemoryEntries int           `yaml:"memory_entries"`
	Timeout       time.Duration `yaml:"timeout"`
}

// GeneratorConfig selects the content provider.
type GeneratorConfig struct {
	Kind     string `yaml:"kind"`
	Endpoint string `yaml:"endpoint,omitempty"`
	// APIKeyEnv names the environment variable holding the gateway key.
	// The key itself never lives in the file.
	APIKeyEnv string        `yaml:"api_key_env,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`
	// Items is the row count of the local provider.
	Items int `yaml:"items"`
}

// ApprovalConfig bounds approval retries.
type ApprovalConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database:       DefaultDatabase,
		NativeLanguage: "en",
		Translation: TranslationConfig{
			MemoryEntries: 512,
			Timeout:       20 * time.Second,
		},
		Generator: GeneratorConfig{
			Kind:    GeneratorLocal,
			Timeout: 60 * time.Second,
			Items:   3,
		},
		Approval: ApprovalConfig{
			MaxAttempts: 3,
			Backoff:     50 * time.Millisecond,
		},
	}
}

// Parse decodes YAML over the defaults. Unknown keys are errors.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Load reads and parses a config file. An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Flags are the command-line values that override the file.
type Flags struct {
	ConfigPath string
	Database   string
	StagesFile string
	Language   string
}

// Resolve loads the effective configuration. getenv is os.Getenv outside
// tests.
func Resolve(flags Flags, getenv func(string) string) (Config, error) {
	path := flags.ConfigPath
	if env := getenv(EnvConfig); env != "" {
		path = env
	}
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}

	if flags.Database != "" {
		cfg.Database = flags.Database
	}
	if flags.StagesFile != "" {
		cfg.StagesFile = flags.StagesFile
	}
	if flags.Language != "" {
		cfg.NativeLanguage = flags.Language
	}

	if env := getenv(EnvDatabase); env != "" {
		cfg.Database = env
	}
	if env := getenv(EnvLanguage); env != "" {
		cfg.NativeLanguage = env
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values no component can use.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Database) == "" {
		problems = append(problems, "database is required")
	}
	if _, err := language.Parse(c.NativeLanguage); err != nil {
		problems = append(problems, fmt.Sprintf("native_language %q: %v", c.NativeLanguage, err))
	}
	switch c.Generator.Kind {
	case GeneratorLocal:
	case GeneratorHTTP:
		if c.Generator.Endpoint == "" {
			problems = append(problems, "generator.endpoint is required for the http generator")
		}
	default:
		problems = append(problems, fmt.Sprintf("generator.kind %q: must be %s or %s", c.Generator.Kind, GeneratorLocal, GeneratorHTTP))
	}
	if c.Translation.MemoryEntries < 0 {
		problems = append(problems, "translation.memory_entries must not be negative")
	}
	if c.Approval.MaxAttempts < 1 {
		problems = append(problems, "approval.max_attempts must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Language returns the parsed native language.
func (c Config) Language() language.Tag {
	tag, err := language.Parse(c.NativeLanguage)
	if err != nil {
		return language.English
	}
	return tag
}
