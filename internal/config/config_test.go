package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
vm:
  max_frames: 64
log:
  level: debug
  format: json
cache:
  driver: sqlite3
  dsn: "file:cache.db"
`))
	be.Err(t, err, nil)
	be.Equal(t, cfg.VM.MaxFrames, 64)
	be.Equal(t, cfg.Parser.MaxDepth, 256)
	be.Equal(t, cfg.Log.Format, "json")
	be.Equal(t, cfg.Cache.Driver, "sqlite3")
	be.Equal(t, cfg.Server.Addr, "127.0.0.1:7878")
	be.Equal(t, cfg.Server.MaxSteps, int64(100_000_000))
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(strings.NewReader(""))
	be.Err(t, err, nil)
	be.Equal(t, *cfg, *Default())
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"vm:\n  max_frame: 3\n", "field max_frame not found"},
		{"vm:\n  max_frames: 0\n", "vm.max_frames must be positive"},
		{"server:\n  max_steps: 0\n", "server.max_steps must be positive"},
		{"log:\n  level: loud\n", `log.level "loud" is not a level`},
		{"log:\n  format: xml\n", "log.format must be text or json"},
		{"cache:\n  driver: oracle\n  dsn: x\n", "cache.driver oracle is not supported"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src))
			be.True(t, err != nil)
			be.True(t, strings.Contains(err.Error(), tt.want))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "nope.yaml")

	cfg, err := Load(missing, false)
	be.Err(t, err, nil)
	be.Equal(t, cfg.VM.MaxFrames, 1024)

	_, err = Load(missing, true)
	be.True(t, err != nil)

	path := filepath.Join(dir, DefaultFile)
	be.Err(t, os.WriteFile(path, []byte("parser:\n  max_depth: 12\n"), 0o644), nil)
	cfg, err = Load(path, true)
	be.Err(t, err, nil)
	be.Equal(t, cfg.Parser.MaxDepth, 12)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	log := cfg.Logger(&buf)
	log.Debug("hidden")
	log.Info("shown", "k", 1)
	be.Equal(t, strings.Count(buf.String(), "\n"), 1)
	be.True(t, strings.Contains(buf.String(), `"msg":"shown"`))
}
