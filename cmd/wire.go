package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/okian/keiba/internal/adapters/collector"
	"github.com/okian/keiba/internal/adapters/collector/browser"
	"github.com/okian/keiba/internal/adapters/collector/dump"
	"github.com/okian/keiba/internal/adapters/imagesrc"
	"github.com/okian/keiba/internal/adapters/mq/worker"
	"github.com/okian/keiba/internal/adapters/repository"
	"github.com/okian/keiba/internal/adapters/sink"
	"github.com/okian/keiba/internal/adapters/vision"
	app "github.com/okian/keiba/internal/app"
	"github.com/okian/keiba/internal/config"
	"github.com/okian/keiba/internal/domain/marks"
	"github.com/okian/keiba/internal/domain/race"
	"github.com/okian/keiba/pkg/logger"
)

// durable is a sink that both persists and reloads records.
type durable interface {
	repository.Persister
	repository.Loader
}

// components is everything one invocation builds from Config.
type components struct {
	svc     *app.Service
	closers []func() error
}

// close releases resources in reverse order of acquisition.
func (c *components) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// build wires the store, sinks, collector, vision extractor and runner. The
// vision extractor is only built when withVision is set.
func build(ctx context.Context, cfg *config.Config, withVision bool) (*components, error) {
	log := logger.Get().Named("wire")
	comp := &components{}

	files := sink.NewFile(cfg.OutputDir)
	var records durable = files
	if cfg.Sink == config.SinkSQLite {
		db, err := sink.OpenSQLite(ctx, sqlitePath(cfg))
		if err != nil {
			return nil, err
		}
		comp.closers = append(comp.closers, db.Close)
		records = db
	}

	entities := repository.NewMemoryStore(
		repository.WithPersister(records),
		repository.WithPriorities(priorities(cfg.SourcePriority)),
	)

	var col collector.Collector
	switch cfg.Collector {
	case config.CollectorBrowser:
		b := browser.New(browser.Config{
			Headless:         cfg.BrowserHeadless,
			CookiesFile:      cfg.BrowserCookiesFile,
			PageTimeout:      time.Duration(cfg.BrowserPageTimeoutMS) * time.Millisecond,
			RaceListURL:      cfg.RaceListURL,
			RacePageURL:      cfg.RacePageURL,
			PredictionURL:    cfg.PredictionURL,
			RaceListScript:   cfg.RaceListScript,
			RaceSheetScript:  cfg.RaceSheetScript,
			PredictionScript: cfg.PredictionScript,
		})
		comp.closers = append(comp.closers, b.Close)
		col = b
	default:
		col = dump.New(cfg.SourceDir)
	}

	opts := []app.Option{
		app.WithStore(entities),
		app.WithCollector(col),
		app.WithImages(imagesrc.NewDirectory(cfg.ImageDir)),
		app.WithReconciler(marks.NewReconciler(marks.WithReviewConfidence(cfg.ReviewConfidence))),
		app.WithRunner(worker.NewRunner(
			worker.WithPacer(worker.NewRandomPacer(cfg.PacingMinMS, cfg.PacingMaxMS)),
			worker.WithCapacity(cfg.QueueSize),
		)),
		// Aggregates always go to files, whichever sink holds the records.
		app.WithDaily(files),
	}
	if withVision {
		x, err := extractor(ctx, cfg, log)
		if err != nil {
			_ = comp.close()
			return nil, err
		}
		opts = append(opts, app.WithVision(x))
	}
	comp.svc = app.New(opts...)

	if cfg.Resume {
		if _, err := comp.svc.Resume(ctx, records); err != nil {
			_ = comp.close()
			return nil, fmt.Errorf("failed to resume store: %w", err)
		}
	}
	return comp, nil
}

// extractor returns the Gemini extractor when an API key is configured and
// the sidecar replayer otherwise.
func extractor(ctx context.Context, cfg *config.Config, log logger.Logger) (vision.Extractor, error) {
	if cfg.VisionAPIKey == "" {
		log.Info(ctx, "no vision_api_key; replaying sidecar files", logger.String("image_dir", cfg.ImageDir))
		return vision.Sidecar{}, nil
	}
	g, err := vision.NewGemini(ctx, cfg.VisionAPIKey, cfg.VisionModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision extractor: %w", err)
	}
	return g, nil
}

// sqlitePath resolves a relative database path against output_dir.
func sqlitePath(cfg *config.Config) string {
	if filepath.IsAbs(cfg.SQLitePath) {
		return cfg.SQLitePath
	}
	return filepath.Join(cfg.OutputDir, cfg.SQLitePath)
}

func priorities(in map[string]int) race.Priorities {
	if len(in) == 0 {
		return nil
	}
	out := make(race.Priorities, len(in))
	for src, p := range in {
		out[race.Source(src)] = p
	}
	return out
}
