package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	m, err := cfg.ActiveModel()
	require.NoError(t, err)
	assert.Equal(t, 413.0, m.PageWidth)
	assert.Equal(t, 616.0, m.PageHeight)
	assert.True(t, m.SupportsCut2Inch)
	assert.False(t, cfg.Models[Model8Inch].SupportsCut2Inch)
	assert.Equal(t, uint32(0x4D534654), cfg.Extension.Signature)
	assert.Equal(t, 30, cfg.Extension.Offsets[FieldCut2Inch])
}

func TestDefaultReturnsFreshCopies(t *testing.T) {
	a := Default()
	a.Extension.Offsets[FieldBorder] = 99
	assert.Equal(t, 3, Default().Extension.Offsets[FieldBorder])
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
printer:
  name: "DS-RX1 (Counter 2)"
  backend: preview
  status_poll_interval: 2s
extension:
  offsets:
    sharpness: 6
settings:
  sharpness: 4
  gamma_b: 7
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "DS-RX1 (Counter 2)", cfg.Printer.Name)
	assert.Equal(t, BackendPreview, cfg.Printer.Backend)
	assert.Equal(t, 2*time.Second, cfg.Printer.StatusPollInterval)
	assert.Equal(t, Model6Inch, cfg.Printer.Model)

	assert.Equal(t, 6, cfg.Extension.Offsets[FieldSharpness])
	assert.Equal(t, 3, cfg.Extension.Offsets[FieldBorder])
	assert.Len(t, cfg.Extension.Offsets, len(DefaultOffsets()))

	assert.Equal(t, int32(4), cfg.Settings.Sharpness)
	assert.Equal(t, int32(7), cfg.Settings.GammaB)
	assert.Equal(t, int16(127), cfg.Settings.PaperSize)
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DSRX_PORT", "7070")
	t.Setenv("DSRX_DB_PATH", "/var/lib/dsrx/jobs.db")
	t.Setenv("DSRX_PRINTER_MODEL", Model8Inch)
	t.Setenv("DSRX_BACKEND", BackendPreview)
	t.Setenv("DSRX_LOG_LEVEL", "debug")

	cfg := LoadFromEnv()
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/var/lib/dsrx/jobs.db", cfg.Database.Path)
	assert.Equal(t, BackendPreview, cfg.Printer.Backend)
	assert.Equal(t, "debug", cfg.Logging.Level)

	m, err := cfg.ActiveModel()
	require.NoError(t, err)
	assert.Equal(t, 813.0, m.PageWidth)
}

func TestApplyEnvIgnoresBadPort(t *testing.T) {
	t.Setenv("DSRX_PORT", "eighty")

	cfg := Default()
	ApplyEnv(cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server port"},
		{name: "database", mutate: func(c *Config) { c.Database.Path = "" }, want: "database path"},
		{name: "printer name", mutate: func(c *Config) { c.Printer.Name = "" }, want: "printer name"},
		{name: "backend", mutate: func(c *Config) { c.Printer.Backend = "lpr" }, want: "invalid printer backend"},
		{name: "dpi", mutate: func(c *Config) { c.Printer.RasterDPI = 10 }, want: "raster dpi"},
		{name: "model", mutate: func(c *Config) { c.Printer.Model = "4in" }, want: "unknown printer model"},
		{name: "scale factor", mutate: func(c *Config) {
			m := c.Models[Model6Inch]
			m.ScaleFactor = 1.5
			c.Models[Model6Inch] = m
		}, want: "scale factor"},
		{name: "page size", mutate: func(c *Config) {
			m := c.Models[Model6Inch]
			m.PageWidth = 0
			c.Models[Model6Inch] = m
		}, want: "page size"},
		{name: "scan words", mutate: func(c *Config) { c.Extension.ScanWords = 0 }, want: "scan words"},
		{name: "offset", mutate: func(c *Config) { c.Extension.Offsets[FieldCut2Inch] = 4096 }, want: "extension offset cut_2inch"},
		{name: "log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, want: "invalid log level"},
		{name: "log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, want: "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
