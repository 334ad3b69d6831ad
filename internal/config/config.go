package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	Model6Inch = "6in"
	Model8Inch = "8in"

	BackendSpooler = "spooler"
	BackendPreview = "preview"
)

type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Database  DatabaseConfig         `yaml:"database"`
	Printer   PrinterConfig          `yaml:"printer"`
	Models    map[string]ModelConfig `yaml:"models"`
	Extension ExtensionConfig        `yaml:"extension"`
	Settings  SettingsConfig         `yaml:"settings"`
	Webhooks  WebhookConfig          `yaml:"webhooks"`
	Logging   LoggingConfig          `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	AuthEnabled  bool          `yaml:"auth_enabled"`
}

type DatabaseConfig struct {
	Path        string `yaml:"path"`
	ArchivePath string `yaml:"archive_path"`
	ArchiveDays int    `yaml:"archive_days"`
}

type PrinterConfig struct {
	Name               string        `yaml:"name"`
	Model              string        `yaml:"model"`
	Backend            string        `yaml:"backend"`
	PaperName          string        `yaml:"paper_name"`
	StatusPollInterval time.Duration `yaml:"status_poll_interval"`
	RasterDPI          int           `yaml:"raster_dpi"`
	PreviewDir         string        `yaml:"preview_dir"`
	StatusLibrary      string        `yaml:"status_library"`
}

// ModelConfig holds the physical page geometry and the empirically tuned
// layout constants of one printer model. Lengths are in 1/100 inch.
type ModelConfig struct {
	PageWidth         float64 `yaml:"page_width"`
	PageHeight        float64 `yaml:"page_height"`
	ScaleFactor       float64 `yaml:"scale_factor"`
	TopCorrection     float64 `yaml:"top_correction"`
	HalfCutMargin     float64 `yaml:"half_cut_margin"`
	HalfCutHeightPad  float64 `yaml:"half_cut_height_pad"`
	FullPageHeightPad float64 `yaml:"full_page_height_pad"`
	LandscapeTrimW    float64 `yaml:"landscape_trim_width"`
	LandscapeTrimH    float64 `yaml:"landscape_trim_height"`
	Tolerance         float64 `yaml:"tolerance"`
	HalfCutAspect     float64 `yaml:"half_cut_aspect"`
	HalfCutAspectTol  float64 `yaml:"half_cut_aspect_tolerance"`
	SupportsCut2Inch  bool    `yaml:"supports_cut_2inch"`
}

// ExtensionConfig describes the vendor-private block appended to the
// driver's DEVMODE. Offsets are 32-bit word indexes relative to the block top.
type ExtensionConfig struct {
	Signature uint32         `yaml:"signature"`
	ScanWords int            `yaml:"scan_words"`
	Offsets   map[string]int `yaml:"offsets"`
}

type SettingsConfig struct {
	PaperSize       int16 `yaml:"paper_size"`
	Orientation     int16 `yaml:"orientation"`
	PrintQuality    int16 `yaml:"print_quality"`
	YResolution     int16 `yaml:"y_resolution"`
	ICMMethod       int32 `yaml:"icm_method"`
	Sharpness       int32 `yaml:"sharpness"`
	ColorAdjustment int32 `yaml:"color_adjustment"`
	Border          int32 `yaml:"border"`
	OvercoatFinish  int32 `yaml:"overcoat_finish"`
	PrintRetry      int32 `yaml:"print_retry"`
	GammaR          int32 `yaml:"gamma_r"`
	GammaG          int32 `yaml:"gamma_g"`
	GammaB          int32 `yaml:"gamma_b"`
	BrightnessR     int32 `yaml:"brightness_r"`
	BrightnessG     int32 `yaml:"brightness_g"`
	BrightnessB     int32 `yaml:"brightness_b"`
	ContrastR       int32 `yaml:"contrast_r"`
	ContrastG       int32 `yaml:"contrast_g"`
	ContrastB       int32 `yaml:"contrast_b"`
	ChromaR         int32 `yaml:"chroma_r"`
	ChromaG         int32 `yaml:"chroma_g"`
	ChromaB         int32 `yaml:"chroma_b"`
}

type WebhookConfig struct {
	RetryCount  int           `yaml:"retry_count"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	WorkerCount int           `yaml:"worker_count"`
	QueueSize   int           `yaml:"queue_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Extension field names used as keys of ExtensionConfig.Offsets.
const (
	FieldBorder          = "border"
	FieldColorAdjustment = "color_adjustment"
	FieldSharpness       = "sharpness"
	FieldGammaR          = "gamma_r"
	FieldGammaG          = "gamma_g"
	FieldGammaB          = "gamma_b"
	FieldBrightnessR     = "brightness_r"
	FieldBrightnessG     = "brightness_g"
	FieldBrightnessB     = "brightness_b"
	FieldContrastR       = "contrast_r"
	FieldContrastG       = "contrast_g"
	FieldContrastB       = "contrast_b"
	FieldChromaR         = "chroma_r"
	FieldChromaG         = "chroma_g"
	FieldChromaB         = "chroma_b"
	FieldOvercoatFinish  = "overcoat_finish"
	FieldPrintRetry      = "print_retry"
	FieldCut2Inch        = "cut_2inch"
)

func DefaultOffsets() map[string]int {
	return map[string]int{
		FieldBorder:          3,
		FieldColorAdjustment: 4,
		FieldSharpness:       5,
		FieldGammaR:          6,
		FieldGammaG:          7,
		FieldGammaB:          8,
		FieldBrightnessR:     10,
		FieldBrightnessG:     11,
		FieldBrightnessB:     12,
		FieldContrastR:       14,
		FieldContrastG:       15,
		FieldContrastB:       16,
		FieldChromaR:         18,
		FieldChromaG:         19,
		FieldChromaB:         20,
		FieldOvercoatFinish:  27,
		FieldPrintRetry:      29,
		FieldCut2Inch:        30,
	}
}

func defaultModel() ModelConfig {
	return ModelConfig{
		PageWidth:         413,
		PageHeight:        616,
		ScaleFactor:       0.97,
		TopCorrection:     0.96,
		HalfCutMargin:     4,
		HalfCutHeightPad:  4,
		FullPageHeightPad: 10,
		LandscapeTrimW:    14,
		LandscapeTrimH:    12,
		Tolerance:         0.02,
		HalfCutAspect:     0.3333,
		HalfCutAspectTol:  0.01,
	}
}

func defaults() *Config {
	six := defaultModel()
	six.SupportsCut2Inch = true

	eight := defaultModel()
	eight.PageWidth = 813
	eight.PageHeight = 1016

	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
			AuthEnabled:  true,
		},
		Database: DatabaseConfig{
			Path:        "./data/dsrx.db",
			ArchivePath: "./data/archives",
			ArchiveDays: 30,
		},
		Printer: PrinterConfig{
			Name:               "DS-RX1",
			Model:              Model6Inch,
			Backend:            BackendSpooler,
			StatusPollInterval: 5 * time.Second,
			RasterDPI:          300,
			PreviewDir:         "./data/preview",
			StatusLibrary:      "CyStat64.dll",
		},
		Models: map[string]ModelConfig{
			Model6Inch: six,
			Model8Inch: eight,
		},
		Extension: ExtensionConfig{
			Signature: 0x4D534654,
			ScanWords: 1024,
			Offsets:   DefaultOffsets(),
		},
		Settings: SettingsConfig{
			PaperSize:    127,
			Orientation:  2,
			PrintQuality: 600,
			YResolution:  600,
			Sharpness:    2,
		},
		Webhooks: WebhookConfig{
			RetryCount:  3,
			RetryDelay:  5 * time.Second,
			Timeout:     10 * time.Second,
			WorkerCount: 3,
			QueueSize:   100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaults()
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// a partial offsets table in the file only overrides the named fields
	offsets := DefaultOffsets()
	for k, v := range cfg.Extension.Offsets {
		offsets[k] = v
	}
	cfg.Extension.Offsets = offsets

	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := defaults()
	applyEnv(cfg)
	return cfg
}

// ApplyEnv overrides cfg with any DSRX_* variables that are set.
func ApplyEnv(cfg *Config) {
	applyEnv(cfg)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DSRX_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("DSRX_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("DSRX_ARCHIVE_PATH"); v != "" {
		cfg.Database.ArchivePath = v
	}

	if v := os.Getenv("DSRX_PRINTER_NAME"); v != "" {
		cfg.Printer.Name = v
	}

	if v := os.Getenv("DSRX_PRINTER_MODEL"); v != "" {
		cfg.Printer.Model = v
	}

	if v := os.Getenv("DSRX_BACKEND"); v != "" {
		cfg.Printer.Backend = v
	}

	if v := os.Getenv("DSRX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// ActiveModel returns the geometry of the configured printer model.
func (c *Config) ActiveModel() (ModelConfig, error) {
	m, ok := c.Models[c.Printer.Model]
	if !ok {
		return ModelConfig{}, fmt.Errorf("unknown printer model: %s", c.Printer.Model)
	}
	return m, nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Database.ArchiveDays < 0 {
		return fmt.Errorf("archive days must be non-negative")
	}

	if c.Printer.Name == "" {
		return fmt.Errorf("printer name is required")
	}

	if c.Printer.Backend != BackendSpooler && c.Printer.Backend != BackendPreview {
		return fmt.Errorf("invalid printer backend: %s (valid: spooler, preview)", c.Printer.Backend)
	}

	if c.Printer.StatusPollInterval < 0 {
		return fmt.Errorf("status poll interval must be non-negative")
	}

	if c.Printer.RasterDPI < 72 {
		return fmt.Errorf("raster dpi must be at least 72, got %d", c.Printer.RasterDPI)
	}

	m, err := c.ActiveModel()
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return fmt.Errorf("model %s: %w", c.Printer.Model, err)
	}

	if c.Extension.ScanWords < 1 {
		return fmt.Errorf("extension scan words must be at least 1")
	}

	for name, off := range c.Extension.Offsets {
		if off < 0 || off >= c.Extension.ScanWords {
			return fmt.Errorf("extension offset %s out of range: %d", name, off)
		}
	}

	if c.Webhooks.RetryCount < 0 {
		return fmt.Errorf("webhook retry count must be non-negative")
	}

	if c.Webhooks.RetryDelay < 0 {
		return fmt.Errorf("webhook retry delay must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":  true,
		"text":  true,
		"plain": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text, plain)", c.Logging.Format)
	}

	return nil
}

func (m ModelConfig) Validate() error {
	if m.PageWidth <= 0 || m.PageHeight <= 0 {
		return fmt.Errorf("page size must be positive, got %vx%v", m.PageWidth, m.PageHeight)
	}

	if m.ScaleFactor <= 0 || m.ScaleFactor > 1 {
		return fmt.Errorf("scale factor must be in (0, 1], got %v", m.ScaleFactor)
	}

	if m.TopCorrection <= 0 || m.TopCorrection > 1 {
		return fmt.Errorf("top correction must be in (0, 1], got %v", m.TopCorrection)
	}

	if m.Tolerance < 0 || m.Tolerance >= 1 {
		return fmt.Errorf("tolerance must be in [0, 1), got %v", m.Tolerance)
	}

	if m.HalfCutAspectTol < 0 {
		return fmt.Errorf("half-cut aspect tolerance must be non-negative")
	}

	return nil
}
