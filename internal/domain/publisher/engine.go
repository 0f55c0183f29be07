package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/smartsched/slotfinder/internal/domain/directory"
	"github.com/smartsched/slotfinder/internal/platform/fhir"
	"github.com/smartsched/slotfinder/internal/platform/lock"
)

// Hook runs after ingestion, inside the same guarded cycle. The returned
// report is recorded on the SyncResult under Name.
type Hook interface {
	Name() string
	AfterSync(ctx context.Context, res *SyncResult) interface{}
}

type Config struct {
	// Publishers are base URLs; $bulk-publish is appended.
	Publishers []string
	// Concurrency bounds how many publishers are fetched at once.
	Concurrency int
	// CycleTimeout bounds a whole cycle including hooks. Zero means none.
	CycleTimeout time.Duration
}

// FileResult describes one manifest output entry.
type FileResult struct {
	Type    string `json:"type"`
	URL     string `json:"url"`
	Count    int    `json:"count"`
	Rejected int    `json:"rejected,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

type PublisherResult struct {
	URL      string       `json:"url"`
	OK       bool         `json:"ok"`
	Error    string       `json:"error,omitempty"`
	Files    []FileResult `json:"files"`
	Duration string       `json:"duration"`
}

// SyncResult summarizes one cycle. A publisher counts as succeeded when its
// manifest was read, even if some of its files failed.
type SyncResult struct {
	RunID               string                 `json:"runId"`
	StartedAt           time.Time              `json:"startedAt"`
	FinishedAt          time.Time              `json:"finishedAt"`
	Skipped             bool                   `json:"skipped"`
	Error               string                 `json:"error,omitempty"`
	PublishersSucceeded int                    `json:"publishersSucceeded"`
	PublishersFailed    int                    `json:"publishersFailed"`
	FilesFailed         int                    `json:"filesFailed"`
	ResourcesRejected   int                    `json:"resourcesRejected"`
	Resources           map[string]int         `json:"resources"`
	Publishers          []PublisherResult      `json:"publishers"`
	Hooks               map[string]interface{} `json:"hooks,omitempty"`
}

// Engine pulls every configured publisher into the store. Sync never fails:
// errors are logged and reported on the result.
type Engine struct {
	store   *directory.Store
	fetcher Fetcher
	guard   lock.Guard
	cfg     Config
	logger  zerolog.Logger
	meter   metric.Meter
	tracer  trace.Tracer
	metrics *syncMetrics
	hooks   []Hook
	now     func() time.Time

	mu   sync.RWMutex
	last *SyncResult
}

type Option func(*Engine)

func WithHook(h Hook) Option {
	return func(e *Engine) { e.hooks = append(e.hooks, h) }
}

func WithTelemetry(meter metric.Meter, tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.meter = meter
		e.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store *directory.Store, fetcher Fetcher, guard lock.Guard, cfg Config, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:   store,
		fetcher: fetcher,
		guard:   guard,
		cfg:     cfg,
		logger:  logger.With().Str("component", "sync").Logger(),
		meter:   metricnoop.NewMeterProvider().Meter("publisher"),
		tracer:  tracenoop.NewTracerProvider().Tracer("publisher"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.Concurrency <= 0 {
		e.cfg.Concurrency = 1
	}
	m, err := newSyncMetrics(e.meter)
	if err != nil {
		return nil, fmt.Errorf("sync metrics: %w", err)
	}
	e.metrics = m
	return e, nil
}

// Publishers returns the configured publisher base URLs.
func (e *Engine) Publishers() []string {
	return e.cfg.Publishers
}

// LastResult returns the most recent completed cycle, or nil.
func (e *Engine) LastResult() *SyncResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Sync runs one cycle. When another cycle holds the guard the call returns
// at once with Skipped set.
func (e *Engine) Sync(ctx context.Context) *SyncResult {
	res := &SyncResult{
		RunID:     uuid.NewString(),
		StartedAt: e.now(),
		Resources: map[string]int{},
	}
	log := e.logger.With().Str("run_id", res.RunID).Logger()

	err := e.guard.WithLock(ctx, func(ctx context.Context) error {
		if e.cfg.CycleTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.cfg.CycleTimeout)
			defer cancel()
		}
		ctx, span := e.tracer.Start(ctx, "sync.cycle")
		defer span.End()

		log.Info().Int("publishers", len(e.cfg.Publishers)).Msg("sync started")
		e.syncAll(ctx, log, res)
		span.SetAttributes(
			attribute.Int("publishers.succeeded", res.PublishersSucceeded),
			attribute.Int("publishers.failed", res.PublishersFailed),
		)

		for _, h := range e.hooks {
			if res.Hooks == nil {
				res.Hooks = map[string]interface{}{}
			}
			res.Hooks[h.Name()] = e.runHook(ctx, log, h, res)
		}
		return nil
	})
	res.FinishedAt = e.now()

	switch {
	case errors.Is(err, lock.ErrNotAcquired):
		res.Skipped = true
		log.Info().Msg("sync already in progress, skipping")
		e.metrics.recordRun(ctx, "skipped", 0)
		return res
	case err != nil:
		res.Skipped = true
		res.Error = err.Error()
		log.Error().Err(err).Msg("sync guard failed")
		e.metrics.recordRun(ctx, "error", 0)
		return res
	}

	outcome := "ok"
	if res.PublishersFailed > 0 || res.FilesFailed > 0 {
		outcome = "partial"
	}
	e.metrics.recordRun(ctx, outcome, res.FinishedAt.Sub(res.StartedAt))

	e.mu.Lock()
	e.last = res
	e.mu.Unlock()

	log.Info().
		Int("succeeded", res.PublishersSucceeded).
		Int("failed", res.PublishersFailed).
		Int("files_failed", res.FilesFailed).
		Int("resources_rejected", res.ResourcesRejected).
		Interface("resources", res.Resources).
		Dur("duration", res.FinishedAt.Sub(res.StartedAt)).
		Msg("sync finished")
	return res
}

func (e *Engine) runHook(ctx context.Context, log zerolog.Logger, h Hook, res *SyncResult) (report interface{}) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("hook", h.Name()).Str("panic", fmt.Sprintf("%v", r)).Msg("post-sync hook panicked")
			report = map[string]string{"error": fmt.Sprintf("panic: %v", r)}
		}
	}()
	return h.AfterSync(ctx, res)
}

type fileFetch struct {
	result FileResult
	batch  *directory.Batch
}

type publisherFetch struct {
	url      string
	err      error
	files    []fileFetch
	duration time.Duration
}

// syncAll fetches publishers concurrently, then upserts their files in the
// configured publisher order so that last-write-wins is deterministic.
func (e *Engine) syncAll(ctx context.Context, log zerolog.Logger, res *SyncResult) {
	fetches := make([]*publisherFetch, len(e.cfg.Publishers))

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i, pub := range e.cfg.Publishers {
		g.Go(func() error {
			fetches[i] = e.fetchPublisher(ctx, log, pub)
			return nil
		})
	}
	_ = g.Wait()

	for _, pf := range fetches {
		pr := PublisherResult{URL: pf.url, Files: []FileResult{}, Duration: pf.duration.String()}
		if pf.err != nil {
			pr.Error = pf.err.Error()
			res.PublishersFailed++
			res.Publishers = append(res.Publishers, pr)
			continue
		}

		for _, ff := range pf.files {
			if ff.batch != nil {
				if err := e.store.Upsert(ctx, ff.batch); err != nil {
					ff.result.Error = err.Error()
					ff.result.Count = 0
					log.Error().Err(err).Str("publisher", pf.url).Str("type", ff.result.Type).Msg("upsert failed, skipping file")
					e.metrics.recordFailure(ctx, pf.url, "upsert")
				} else {
					res.Resources[ff.result.Type] += ff.result.Count
					e.metrics.recordIngested(ctx, ff.result.Type, ff.result.Count)
				}
			}
			if ff.result.Error != "" {
				res.FilesFailed++
			}
			res.ResourcesRejected += ff.result.Rejected
			pr.Files = append(pr.Files, ff.result)
		}
		pr.OK = true
		res.PublishersSucceeded++
		res.Publishers = append(res.Publishers, pr)
	}
}

func (e *Engine) fetchPublisher(ctx context.Context, log zerolog.Logger, baseURL string) (pf *publisherFetch) {
	pf = &publisherFetch{url: baseURL}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			pf.err = fmt.Errorf("panic: %v", r)
			pf.files = nil
			log.Error().Str("publisher", baseURL).Str("panic", fmt.Sprintf("%v", r)).Msg("publisher sync panicked")
		}
		pf.duration = time.Since(start)
	}()

	ctx, span := e.tracer.Start(ctx, "sync.publisher", trace.WithAttributes(attribute.String("publisher", baseURL)))
	defer span.End()

	manifest, err := e.fetcher.FetchManifest(ctx, baseURL)
	if err != nil {
		pf.err = fmt.Errorf("fetch manifest: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "manifest")
		log.Warn().Err(err).Str("publisher", baseURL).Msg("manifest fetch failed, skipping publisher")
		e.metrics.recordFailure(ctx, baseURL, "manifest")
		return pf
	}

	prov := directory.Provenance{PublisherURL: baseURL, FetchedAt: e.now()}
	for _, out := range manifest.Output {
		pf.files = append(pf.files, e.fetchFile(ctx, log, baseURL, out, prov))
	}
	return pf
}

func (e *Engine) fetchFile(ctx context.Context, log zerolog.Logger, baseURL string, out fhir.ManifestOutput, prov directory.Provenance) fileFetch {
	ff := fileFetch{result: FileResult{Type: out.Type, URL: out.URL}}
	if !directory.IsSupportedType(out.Type) {
		ff.result.Skipped = true
		log.Debug().Str("publisher", baseURL).Str("type", out.Type).Msg("unsupported resource type, skipping file")
		return ff
	}
	if out.URL == "" {
		ff.result.Error = "manifest entry has no usable url"
		log.Warn().Str("publisher", baseURL).Str("type", out.Type).Msg("manifest entry has no url, skipping file")
		e.metrics.recordFailure(ctx, baseURL, "file")
		return ff
	}

	batch := &directory.Batch{}
	// A line that is valid JSON but cannot be mapped is dropped on its own.
	err := e.fetcher.FetchNDJSON(ctx, out.URL, func(line int, raw json.RawMessage) error {
		r, err := directory.Decode(out.Type, raw, prov)
		if err != nil {
			ff.result.Rejected++
			log.Warn().Err(err).Str("publisher", baseURL).Str("type", out.Type).Int("line", line).Msg("resource rejected, skipping line")
			return nil
		}
		batch.Add(r)
		return nil
	})
	if err != nil {
		ff.result.Error = err.Error()
		log.Warn().Err(err).Str("publisher", baseURL).Str("type", out.Type).Str("url", out.URL).Msg("file fetch failed, skipping file")
		e.metrics.recordFailure(ctx, baseURL, "file")
		return ff
	}

	ff.batch = batch
	ff.result.Count = batch.Len()
	log.Debug().Str("publisher", baseURL).Str("type", out.Type).Int("count", ff.result.Count).Msg("file fetched")
	return ff
}
