// Package config defines process configuration and its loading.
//
// Conventions:
//   - Defaults come from New; Load layers a YAML file and the environment on top.
//   - Validation errors wrap ErrInvalidConfig, load errors wrap ErrLoadConfig.
package config

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// metricName matches Prometheus metric and label names without colons.
var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Sink kinds.
const (
	SinkFile   = "file"
	SinkSQLite = "sqlite"
)

// Collector kinds.
const (
	CollectorDump    = "dump"
	CollectorBrowser = "browser"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// HTTPAddr configures the read-only HTTP listen address, e.g. ":9080".
	// Empty disables the HTTP surface.
	HTTPAddr string `koanf:"http_addr"`

	// OutputDir receives per-race files and daily aggregates.
	OutputDir string `koanf:"output_dir"`

	// Sink selects durable storage: file or sqlite.
	Sink string `koanf:"sink"`

	// SQLitePath is the database file used by the sqlite sink.
	SQLitePath string `koanf:"sqlite_path"`

	// Resume seeds the store from the sink before a run.
	Resume bool `koanf:"resume"`

	// PacingMinMS and PacingMaxMS bound the inclusive politeness delay
	// between successful units.
	PacingMinMS int `koanf:"pacing_min_ms"`
	PacingMaxMS int `koanf:"pacing_max_ms"`

	// QueueSize bounds the number of work units in one run.
	QueueSize int `koanf:"queue_size"`

	// ReviewConfidence flags OCR readings below this confidence.
	ReviewConfidence float64 `koanf:"review_confidence"`

	// SourceDir holds already-extracted JSON for the dump collector.
	SourceDir string `koanf:"source_dir"`

	// ImageDir holds prediction images for the images run.
	ImageDir string `koanf:"image_dir"`

	// Collector selects the acquisition backend: dump or browser.
	Collector string `koanf:"collector"`

	BrowserHeadless      bool   `koanf:"browser_headless"`
	BrowserCookiesFile   string `koanf:"browser_cookies_file"`
	BrowserPageTimeoutMS int    `koanf:"browser_page_timeout_ms"`

	// Page URL templates. Placeholders: {date}, {track}, {race}.
	RaceListURL   string `koanf:"race_list_url"`
	RacePageURL   string `koanf:"race_page_url"`
	PredictionURL string `koanf:"prediction_url"`

	// Page scripts evaluated by the browser collector. Each returns a JSON string.
	RaceListScript   string `koanf:"race_list_script"`
	RaceSheetScript  string `koanf:"race_sheet_script"`
	PredictionScript string `koanf:"prediction_script"`

	VisionAPIKey string `koanf:"vision_api_key"`
	VisionModel  string `koanf:"vision_model"`

	// SourcePriority ranks writers for overlapping fields. Unlisted sources rank 0.
	SourcePriority map[string]int `koanf:"source_priority"`

	// Metrics settings. MetricsLabels are attached to every metric.
	MetricsEnabled   bool              `koanf:"metrics_enabled"`
	MetricsNamespace string            `koanf:"metrics_namespace"`
	MetricsRefreshMS int               `koanf:"metrics_refresh_ms"`
	MetricsLabels    map[string]string `koanf:"metrics_labels"`
}

// New creates a Config with defaults. Context is accepted first to satisfy the
// project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		HTTPAddr:             "",
		OutputDir:            "out",
		Sink:                 SinkFile,
		SQLitePath:           "keiba.db",
		Resume:               true,
		PacingMinMS:          800,
		PacingMaxMS:          2000,
		QueueSize:            4096,
		ReviewConfidence:     0.8,
		SourceDir:            "data",
		ImageDir:             "images",
		Collector:            CollectorDump,
		BrowserHeadless:      true,
		BrowserPageTimeoutMS: 30_000,
		VisionModel:          "gemini-2.5-flash",
		SourcePriority:       map[string]int{},
		MetricsEnabled:       true,
		MetricsNamespace:     "keiba",
		MetricsRefreshMS:     10_000,
		MetricsLabels:        map[string]string{},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.OutputDir == "":
		return fmt.Errorf("%w: output_dir must not be empty", ErrInvalidConfig)
	case c.Sink != SinkFile && c.Sink != SinkSQLite:
		return fmt.Errorf("%w: unknown sink %q", ErrInvalidConfig, c.Sink)
	case c.Sink == SinkSQLite && c.SQLitePath == "":
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	case c.Collector != CollectorDump && c.Collector != CollectorBrowser:
		return fmt.Errorf("%w: unknown collector %q", ErrInvalidConfig, c.Collector)
	case c.PacingMinMS < 0 || c.PacingMaxMS < c.PacingMinMS:
		return fmt.Errorf("%w: pacing range [%d,%d]", ErrInvalidConfig, c.PacingMinMS, c.PacingMaxMS)
	case c.ReviewConfidence < 0 || c.ReviewConfidence > 1:
		return fmt.Errorf("%w: review_confidence %v outside [0,1]", ErrInvalidConfig, c.ReviewConfidence)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.MetricsRefreshMS < 0:
		return fmt.Errorf("%w: metrics_refresh_ms must not be negative", ErrInvalidConfig)
	case c.MetricsNamespace != "" && !metricName.MatchString(c.MetricsNamespace):
		return fmt.Errorf("%w: metrics_namespace %q is not a metric name", ErrInvalidConfig, c.MetricsNamespace)
	}
	for name := range c.MetricsLabels {
		if !metricName.MatchString(name) || strings.HasPrefix(name, "__") {
			return fmt.Errorf("%w: metrics label %q is not a label name", ErrInvalidConfig, name)
		}
	}
	if c.Collector == CollectorBrowser && (c.RaceListURL == "" || c.RacePageURL == "") {
		return fmt.Errorf("%w: browser collector needs race_list_url and race_page_url", ErrInvalidConfig)
	}
	return nil
}
