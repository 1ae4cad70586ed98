// Package config loads terbium.yaml.
package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no -config flag
// is given.
const DefaultFile = "terbium.yaml"

type Config struct {
	VM     VMConfig     `yaml:"vm"`
	Parser ParserConfig `yaml:"parser"`
	Log    LogConfig    `yaml:"log"`
	Cache  CacheConfig  `yaml:"cache"`
	Server ServerConfig `yaml:"server"`
}

type VMConfig struct {
	MaxFrames int `yaml:"max_frames"`
}

type ParserConfig struct {
	MaxDepth int `yaml:"max_depth"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CacheConfig selects the compiled-module store. An empty DSN disables it.
type CacheConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ServerConfig configures terbium serve. MaxSteps is the instruction
// budget of each run request.
type ServerConfig struct {
	Addr     string `yaml:"addr"`
	MaxSteps int64  `yaml:"max_steps"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		VM:     VMConfig{MaxFrames: 1024},
		Parser: ParserConfig{MaxDepth: 256},
		Log:    LogConfig{Level: "warn", Format: "text"},
		Cache:  CacheConfig{Driver: "sqlite"},
		Server: ServerConfig{Addr: "127.0.0.1:7878", MaxSteps: 100_000_000},
	}
}

// Load reads path. A missing file yields Default() unless required is set,
// as it is when the user named the file explicitly.
func Load(path string, required bool) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return Default(), nil
		}
		return nil, errors.Wrap(err, "config")
	}
	defer f.Close()
	cfg, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are errors.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "parse")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var issues []string
	if c.VM.MaxFrames <= 0 {
		issues = append(issues, "vm.max_frames must be positive")
	}
	if c.Parser.MaxDepth <= 0 {
		issues = append(issues, "parser.max_depth must be positive")
	}
	if c.Server.MaxSteps <= 0 {
		issues = append(issues, "server.max_steps must be positive")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		issues = append(issues, err.Error())
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		issues = append(issues, "log.format must be text or json, got "+c.Log.Format)
	}
	if c.Cache.DSN != "" && !knownDriver(c.Cache.Driver) {
		issues = append(issues, "cache.driver "+c.Cache.Driver+" is not supported")
	}
	if len(issues) > 0 {
		return errors.Errorf("invalid configuration: %s", strings.Join(issues, "; "))
	}
	return nil
}

// Drivers lists the database/sql driver names the cache is built with.
var Drivers = []string{"sqlite", "sqlite3", "postgres", "mysql", "sqlserver"}

func knownDriver(name string) bool {
	for _, d := range Drivers {
		if d == name {
			return true
		}
	}
	return false
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.Errorf("log.level %q is not a level", s)
	}
	return l, nil
}

// Logger builds the slog logger described by c.Log.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
