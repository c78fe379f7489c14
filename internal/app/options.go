package service

import (
	"github.com/okian/keiba/internal/adapters/collector"
	"github.com/okian/keiba/internal/adapters/mq/worker"
	"github.com/okian/keiba/internal/adapters/repository"
	"github.com/okian/keiba/internal/adapters/vision"
	"github.com/okian/keiba/internal/domain/marks"
	"github.com/okian/keiba/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the entity store shared by every run.
func WithStore(s repository.Store) Option {
	return func(svc *Service) {
		if s != nil {
			svc.store = s
		}
	}
}

// WithCollector sets the race collector.
func WithCollector(c collector.Collector) Option {
	return func(svc *Service) {
		if c != nil {
			svc.collector = c
		}
	}
}

// WithImages sets the image source of the images run.
func WithImages(src ImageSource) Option {
	return func(svc *Service) {
		if src != nil {
			svc.images = src
		}
	}
}

// WithVision sets the extractor used on images.
func WithVision(x vision.Extractor) Option {
	return func(svc *Service) {
		if x != nil {
			svc.vision = x
		}
	}
}

// WithReconciler sets the OCR mark reconciler.
func WithReconciler(r *marks.Reconciler) Option {
	return func(svc *Service) {
		if r != nil {
			svc.reconciler = r
		}
	}
}

// WithRunner sets the unit runner.
func WithRunner(r *worker.Runner) Option {
	return func(svc *Service) {
		if r != nil {
			svc.runner = r
		}
	}
}

// WithDaily sets where per-day aggregates are written after a run.
func WithDaily(d DailyWriter) Option {
	return func(svc *Service) {
		if d != nil {
			svc.daily = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}
