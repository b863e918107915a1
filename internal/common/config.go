package common

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const (
	// Default values
	DefaultLanguage    = "eng"
	DefaultDPI         = 200
	DefaultMaxPages    = 3
	DefaultConcurrency = 2
	DefaultRenderMode  = RenderModePNG
	DefaultTopN        = 3
	DefaultMinItems    = 1
	DefaultLogLevel    = "info"

	// Render mode constants
	RenderModePNG  = "png"
	RenderModeGray = "gray"
)

// Config holds all application configuration
type Config struct {
	OCR      OCRConfig
	Pipeline PipelineConfig
	Store    StoreConfig
	LogLevel string
}

// OCRConfig holds configuration for the external-binary OCR engine
type OCRConfig struct {
	Language      string
	DPI           int
	MaxPages      int
	Concurrency   int
	RenderMode    string
	KeepTemp      bool
	TmpDir        string
	TessdataDir   string
	HeicConverter string
	RenderTimeout time.Duration
	PageTimeout   time.Duration
}

// PipelineConfig holds selector-related configuration
type PipelineConfig struct {
	TopN     int
	MinItems int
}

// StoreConfig holds result-store configuration
type StoreConfig struct {
	Path string
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OCR: OCRConfig{
			Language:      DefaultLanguage,
			DPI:           DefaultDPI,
			MaxPages:      DefaultMaxPages,
			Concurrency:   DefaultConcurrency,
			RenderMode:    DefaultRenderMode,
			HeicConverter: "magick",
			RenderTimeout: 2 * time.Minute,
			PageTimeout:   time.Minute,
		},
		Pipeline: PipelineConfig{
			TopN:     DefaultTopN,
			MinItems: DefaultMinItems,
		},
		LogLevel: DefaultLogLevel,
	}
}

// LoadConfig resolves configuration from defaults, INVOPIPE_* environment
// variables, and any command-line flags the caller has bound to viper.
func LoadConfig() *Config {
	cfg := DefaultConfig()

	viper.SetEnvPrefix("INVOPIPE")
	viper.AutomaticEnv()

	viper.SetDefault("lang", cfg.OCR.Language)
	viper.SetDefault("dpi", cfg.OCR.DPI)
	viper.SetDefault("maxpages", cfg.OCR.MaxPages)
	viper.SetDefault("concurrency", cfg.OCR.Concurrency)
	viper.SetDefault("rendermode", cfg.OCR.RenderMode)
	viper.SetDefault("keeptemp", cfg.OCR.KeepTemp)
	viper.SetDefault("tmpdir", cfg.OCR.TmpDir)
	viper.SetDefault("tessdata", cfg.OCR.TessdataDir)
	viper.SetDefault("heicconverter", cfg.OCR.HeicConverter)
	viper.SetDefault("rendertimeout", cfg.OCR.RenderTimeout)
	viper.SetDefault("pagetimeout", cfg.OCR.PageTimeout)
	viper.SetDefault("topn", cfg.Pipeline.TopN)
	viper.SetDefault("minitems", cfg.Pipeline.MinItems)
	viper.SetDefault("db", cfg.Store.Path)
	viper.SetDefault("loglevel", cfg.LogLevel)

	cfg.OCR.Language = viper.GetString("lang")
	cfg.OCR.DPI = viper.GetInt("dpi")
	cfg.OCR.MaxPages = viper.GetInt("maxpages")
	cfg.OCR.Concurrency = viper.GetInt("concurrency")
	cfg.OCR.RenderMode = viper.GetString("rendermode")
	cfg.OCR.KeepTemp = viper.GetBool("keeptemp")
	cfg.OCR.TmpDir = viper.GetString("tmpdir")
	cfg.OCR.TessdataDir = viper.GetString("tessdata")
	cfg.OCR.HeicConverter = viper.GetString("heicconverter")
	cfg.OCR.RenderTimeout = viper.GetDuration("rendertimeout")
	cfg.OCR.PageTimeout = viper.GetDuration("pagetimeout")
	cfg.Pipeline.TopN = viper.GetInt("topn")
	cfg.Pipeline.MinItems = viper.GetInt("minitems")
	cfg.Store.Path = viper.GetString("db")
	cfg.LogLevel = viper.GetString("loglevel")

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OCR.RenderMode != RenderModePNG && c.OCR.RenderMode != RenderModeGray {
		return fmt.Errorf("rendermode must be %q or %q", RenderModePNG, RenderModeGray)
	}
	if c.OCR.DPI < 72 || c.OCR.DPI > 600 {
		return errors.New("dpi must be between 72 and 600")
	}
	if c.OCR.MaxPages < 0 {
		return errors.New("maxpages must be >= 0 (0 means all pages)")
	}
	if c.OCR.Concurrency < 1 {
		return errors.New("concurrency must be >= 1")
	}
	if c.Pipeline.TopN < 1 {
		return errors.New("topn must be >= 1")
	}
	if c.Pipeline.MinItems < 1 {
		return errors.New("minitems must be >= 1")
	}
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}
