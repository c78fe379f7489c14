// Package service wires collectors, rank derivation, mark reconciliation and
// the entity store into the three collection runs.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/keiba/internal/adapters/collector"
	"github.com/okian/keiba/internal/adapters/mq/queue"
	"github.com/okian/keiba/internal/adapters/mq/worker"
	"github.com/okian/keiba/internal/adapters/repository"
	"github.com/okian/keiba/internal/adapters/vision"
	"github.com/okian/keiba/internal/domain/marks"
	"github.com/okian/keiba/internal/domain/race"
	"github.com/okian/keiba/internal/domain/ranking"
	"github.com/okian/keiba/pkg/logger"
	"github.com/okian/keiba/pkg/metrics"
)

// Run kinds.
const (
	KindRaces       = "races"
	KindPredictions = "predictions"
	KindImages      = "images"
)

// Skip reasons reported for units.
const (
	ReasonOrphan = "orphan"
	ReasonParse  = "parse"
	ReasonNoData = "no_data"
	ReasonFetch  = "fetch"
	ReasonVision = "vision"
)

// alternativesLimit caps the readings enumerated for a flagged image.
const alternativesLimit = 16

// ErrNotConfigured is returned by a run whose collaborators are missing.
var ErrNotConfigured = errors.New("run not configured")

// ImageSource lists and loads prediction images.
type ImageSource interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, path string) (vision.Image, error)
}

// DailyWriter receives the aggregate of one race day.
type DailyWriter interface {
	WriteDaily(ctx context.Context, date string, recs []race.Record) error
}

// Service runs collections against a single owned entity store.
type Service struct {
	store      repository.Store
	collector  collector.Collector
	images     ImageSource
	vision     vision.Extractor
	reconciler *marks.Reconciler
	runner     *worker.Runner
	daily      DailyWriter
	logger     logger.Logger
}

// New constructs a Service. Without WithStore it owns a fresh in-memory store.
func New(opts ...Option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.reconciler == nil {
		s.reconciler = marks.NewReconciler()
	}
	if s.runner == nil {
		s.runner = worker.NewRunner()
	}
	return s
}

// Store returns the entity store the runs write to.
func (s *Service) Store() repository.Store { return s.store }

// Resume seeds the store from previously persisted records.
func (s *Service) Resume(ctx context.Context, l repository.Loader) (int, error) {
	seeder, ok := s.store.(interface {
		Seed(ctx context.Context, l repository.Loader) (int, error)
	})
	if !ok {
		return 0, fmt.Errorf("%w: store cannot be seeded", ErrNotConfigured)
	}
	n, err := seeder.Seed(ctx, l)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "store resumed", logger.Int("records", n))
	return n, nil
}

// CollectRaces derives the rank fields of every race held on date.
func (s *Service) CollectRaces(ctx context.Context, date string) (worker.Summary, error) {
	if s.collector == nil {
		return worker.Summary{Kind: KindRaces}, fmt.Errorf("%w: no collector", ErrNotConfigured)
	}
	return s.run(ctx, KindRaces, s.raceUnits(date, KindRaces), worker.ProcessorFunc(s.processRace))
}

// CollectPredictions merges the third-party prediction of every race on date.
func (s *Service) CollectPredictions(ctx context.Context, date string) (worker.Summary, error) {
	if s.collector == nil {
		return worker.Summary{Kind: KindPredictions}, fmt.Errorf("%w: no collector", ErrNotConfigured)
	}
	return s.run(ctx, KindPredictions, s.raceUnits(date, KindPredictions), worker.ProcessorFunc(s.processPrediction))
}

// ReadImages reconciles the ai_mark field from every image of the source.
func (s *Service) ReadImages(ctx context.Context) (worker.Summary, error) {
	if s.images == nil || s.vision == nil {
		return worker.Summary{Kind: KindImages}, fmt.Errorf("%w: no image source or vision extractor", ErrNotConfigured)
	}
	src := worker.SourceFunc(func(ctx context.Context) ([]queue.Unit, error) {
		paths, err := s.images.List(ctx)
		if err != nil {
			return nil, err
		}
		units := make([]queue.Unit, 0, len(paths))
		for _, p := range paths {
			units = append(units, queue.FileUnit(KindImages, p))
		}
		return units, nil
	})
	return s.run(ctx, KindImages, src, worker.ProcessorFunc(s.processImage))
}

func (s *Service) run(ctx context.Context, kind string, src worker.Source, proc worker.Processor) (worker.Summary, error) {
	sum, err := s.runner.Run(ctx, kind, src, proc)
	if errors.Is(err, worker.ErrAcquisition) {
		return sum, err
	}
	s.writeDaily(ctx, sum)
	return sum, err
}

// writeDaily refreshes the aggregate of every day the run touched. Failures
// are logged; the per-race files remain the durable output.
func (s *Service) writeDaily(ctx context.Context, sum worker.Summary) {
	if s.daily == nil {
		return
	}
	// The aggregate is written even when the run was interrupted.
	ctx = context.WithoutCancel(ctx)
	for _, date := range sum.Dates() {
		recs := s.store.ByDate(ctx, date)
		if err := s.daily.WriteDaily(ctx, date, recs); err != nil {
			metrics.RecordErrorByComponent("service", "daily_write")
			s.logger.Error(ctx, "daily aggregate not written", logger.String("date", date), logger.Error(err))
			continue
		}
		s.logger.Info(ctx, "daily aggregate written", logger.String("date", date), logger.Int("races", len(recs)))
	}
}

func (s *Service) raceUnits(date, kind string) worker.Source {
	return worker.SourceFunc(func(ctx context.Context) ([]queue.Unit, error) {
		keys, err := s.collector.Races(ctx, date)
		if err != nil {
			return nil, err
		}
		units := make([]queue.Unit, 0, len(keys))
		for _, k := range keys {
			units = append(units, queue.RaceUnit(kind, k))
		}
		return units, nil
	})
}

// processRace derives and upserts the rank fields of each sheet of one race.
func (s *Service) processRace(ctx context.Context, u queue.Unit) (race.Record, error) {
	sheets, err := s.collector.Sheets(ctx, u.Key)
	if err != nil {
		return race.Record{}, collectorSkip(err)
	}
	if len(sheets) == 0 {
		return race.Record{}, worker.Skip(ReasonNoData, fmt.Errorf("%w: no sheet for %s", collector.ErrNoData, u.Key))
	}
	var rec race.Record
	for _, sh := range sheets {
		patch := SheetPatch(sh)
		rec, err = s.upsert(ctx, u.Key, patch)
		if err != nil {
			return race.Record{}, err
		}
	}
	return rec, nil
}

// SheetPatch converts a sheet into a patch: metadata and a well formed result
// as given, and every rank field whose policy resolves enough horses. A field
// whose table is present but too short is counted as omitted.
func SheetPatch(sh collector.Sheet) race.Patch {
	p := race.Patch{
		Source:   sh.Source,
		RaceName: sh.RaceName,
		Surface:  sh.Surface,
		Distance: sh.Distance,
	}
	if sh.Result != nil && sh.Result.Finish.Validate(len(sh.Result.Finish)) == nil {
		p.Result = sh.Result
	}
	ranks, omitted := ranking.DeriveAll(sh.Tables)
	for f, a := range ranks {
		p.SetRank(f, a)
	}
	for _, f := range omitted {
		pol, err := ranking.Lookup(f)
		if err != nil || ranking.SelectTable(sh.Tables, pol.Tables) == nil {
			continue
		}
		metrics.RecordRankOmitted(string(f))
	}
	return p
}

func (s *Service) processPrediction(ctx context.Context, u queue.Unit) (race.Record, error) {
	pred, err := s.collector.Prediction(ctx, u.Key)
	if err != nil {
		return race.Record{}, collectorSkip(err)
	}
	return s.upsert(ctx, u.Key, race.Patch{Source: race.SourceEngine, Engine: &pred})
}

// processImage runs both vision calls for one image and upserts the
// reconciled ai_mark field. Unparseable output abstains without touching the
// store.
func (s *Service) processImage(ctx context.Context, u queue.Unit) (race.Record, error) {
	img, err := s.images.Load(ctx, u.Path)
	if err != nil {
		return race.Record{}, worker.Skip(ReasonFetch, err)
	}

	md, err := s.vision.Metadata(ctx, img)
	if err != nil {
		return race.Record{}, worker.Skip(ReasonVision, err)
	}
	key, err := marks.ParseMetadata(md)
	if err != nil {
		return race.Record{}, worker.Skip(ReasonParse, err)
	}

	raw, err := s.vision.Marks(ctx, img)
	if err != nil {
		return race.Record{}, worker.Skip(ReasonVision, err)
	}
	ex, err := marks.ParseExtraction(raw)
	if err != nil {
		return race.Record{}, worker.Skip(ReasonParse, err)
	}

	rc := s.reconciler.Reconcile(ex)
	ctx = logger.WithFields(ctx, logger.String("race_key", key.String()), logger.String("unit", u.ID))
	s.report(ctx, rc)

	ann := marks.Annotate(u.Path, rc)
	patch := race.Patch{Source: race.SourceOCR, OCR: &ann}
	patch.SetRank(race.AIMark, rc.Ranks)
	return s.upsert(ctx, key, patch)
}

// report logs and counts the review flags of one reconciliation.
func (s *Service) report(ctx context.Context, rc marks.Reconciliation) {
	s.logger.Info(ctx, "marks reconciled",
		logger.Int("filled", rc.Ranks.Filled()),
		logger.Int("slots", len(rc.Ranks)),
	)
	if len(rc.Ignored) > 0 {
		s.logger.Debug(ctx, "ignored unknown marks", logger.Any("marks", rc.Ignored))
	}
	flagged := marks.Flagged(rc.Observations)
	for _, o := range flagged {
		for _, reason := range o.Review {
			metrics.RecordReviewFlag(reason)
		}
	}
	if !rc.NeedsReview {
		return
	}
	alts := marks.Alternatives(rc.Observations, alternativesLimit)
	s.logger.Warn(ctx, "marks need manual review",
		logger.Int("flagged", len(flagged)),
		logger.Int("alternatives", len(alts)),
	)
}

func (s *Service) upsert(ctx context.Context, key race.Key, p race.Patch) (race.Record, error) {
	rec, err := s.store.Upsert(ctx, key, p)
	if errors.Is(err, repository.ErrOrphanRecord) {
		return race.Record{}, worker.Skip(ReasonOrphan, err)
	}
	return rec, err
}

// collectorSkip classifies a collector error for the skip report.
func collectorSkip(err error) error {
	switch {
	case errors.Is(err, collector.ErrDecode), errors.Is(err, collector.ErrKeyMismatch):
		return worker.Skip(ReasonParse, err)
	case errors.Is(err, collector.ErrNoData):
		return worker.Skip(ReasonNoData, err)
	default:
		return worker.Skip(ReasonFetch, err)
	}
}
