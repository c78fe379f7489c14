package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/keiba/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.OutputDir, convey.ShouldEqual, "out")
			convey.So(cfg.Sink, convey.ShouldEqual, config.SinkFile)
			convey.So(cfg.Collector, convey.ShouldEqual, config.CollectorDump)
			convey.So(cfg.PacingMinMS, convey.ShouldEqual, 800)
			convey.So(cfg.PacingMaxMS, convey.ShouldEqual, 2000)
			convey.So(cfg.ReviewConfidence, convey.ShouldEqual, 0.8)
			convey.So(cfg.HTTPAddr, convey.ShouldBeEmpty)
			convey.So(cfg.MetricsEnabled, convey.ShouldBeTrue)
			convey.So(cfg.MetricsNamespace, convey.ShouldEqual, "keiba")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty output dir", func(c *config.Config) { c.OutputDir = "" }},
		{"unknown sink", func(c *config.Config) { c.Sink = "s3" }},
		{"sqlite without path", func(c *config.Config) { c.Sink = config.SinkSQLite; c.SQLitePath = "" }},
		{"unknown collector", func(c *config.Config) { c.Collector = "curl" }},
		{"inverted pacing", func(c *config.Config) { c.PacingMinMS, c.PacingMaxMS = 2000, 800 }},
		{"negative pacing", func(c *config.Config) { c.PacingMinMS = -1 }},
		{"review above one", func(c *config.Config) { c.ReviewConfidence = 1.5 }},
		{"review below zero", func(c *config.Config) { c.ReviewConfidence = -0.1 }},
		{"zero queue", func(c *config.Config) { c.QueueSize = 0 }},
		{"browser without urls", func(c *config.Config) { c.Collector = config.CollectorBrowser }},
		{"negative metrics refresh", func(c *config.Config) { c.MetricsRefreshMS = -1 }},
		{"bad metrics namespace", func(c *config.Config) { c.MetricsNamespace = "keiba-prod" }},
		{"bad metrics label", func(c *config.Config) { c.MetricsLabels = map[string]string{"1env": "ci"} }},
		{"reserved metrics label", func(c *config.Config) { c.MetricsLabels = map[string]string{"__name": "x"} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.New(context.Background())
			tc.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}

	t.Run("metrics labels", func(t *testing.T) {
		cfg := config.New(context.Background())
		cfg.MetricsLabels = map[string]string{"deployment": "replay"}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() = %v", err)
		}
	})

	t.Run("equal pacing bounds", func(t *testing.T) {
		cfg := config.New(context.Background())
		cfg.PacingMinMS, cfg.PacingMaxMS = 0, 0
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() = %v", err)
		}
	})
}
