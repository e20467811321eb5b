package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/checkpoint"
	"github.com/JakeFAU/site-harvester/internal/document"
	"github.com/JakeFAU/site-harvester/internal/harvest"
	"github.com/JakeFAU/site-harvester/internal/poller"
	"github.com/JakeFAU/site-harvester/internal/progress"
	"github.com/JakeFAU/site-harvester/internal/report"
	"github.com/JakeFAU/site-harvester/internal/schedule"
	"github.com/JakeFAU/site-harvester/internal/slug"
	"github.com/JakeFAU/site-harvester/internal/vocab"
)

// StatusPoller waits for complete status pages.
type StatusPoller interface {
	Wait(ctx context.Context, job harvest.CrawlJob) (harvest.PageBatch, error)
	Next(ctx context.Context, job harvest.CrawlJob, cursor string) (harvest.PageBatch, error)
	MinDelay() time.Duration
}

// Enricher is the never-failing intelligence surface the driver consumes.
// *intel.Adapter implements it.
type Enricher interface {
	Translate(ctx context.Context, text string) string
	Classify(ctx context.Context, title, body string) harvest.Classification
	ExtractKeywords(ctx context.Context, title, body string) []string
	ChooseClosest(ctx context.Context, term string, options []string, label string) string
}

// Config controls a run.
type Config struct {
	StartURL     string
	StartOptions harvest.StartOptions
	// MaxPages stops the run once the manifest counts that many documents. Zero is unlimited.
	MaxPages int
	// Delay is the pause between pages; the poller's minimum delay wins when larger.
	Delay        time.Duration
	CrawlBackend string
	IntelBackend string
	// Topic receives a DocumentEvent per written document when a publisher is set.
	Topic             string
	SlugMaxBytes      int
	CategoryCap       int
	TagCap            int
	ScheduleThreshold int
	ScheduleGroup     int
}

// Driver runs the harvest state machine. Run must not be called concurrently;
// Status may be called from any goroutine.
type Driver struct {
	backend   harvest.CrawlBackend
	poller    StatusPoller
	intel     Enricher
	store     checkpoint.Store
	blobs     harvest.BlobStore
	writer    *document.Writer
	publisher harvest.Publisher
	clock     harvest.Clock
	ids       harvest.IDGenerator
	hasher    harvest.Hasher
	cfg       Config
	logger    *zap.Logger
	events    progress.Emitter
	sleep     func(context.Context, time.Duration) error

	runID [16]byte

	mu   sync.RWMutex
	snap Snapshot
}

// Option customizes a Driver.
type Option func(*Driver)

// WithEvents reports progress events to e.
func WithEvents(e progress.Emitter) Option {
	return func(d *Driver) {
		if e != nil {
			d.events = e
		}
	}
}

// WithSleep replaces the context-aware pause between pages.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(d *Driver) { d.sleep = sleep }
}

// New constructs a Driver. publisher may be nil.
func New(
	backend harvest.CrawlBackend,
	statusPoller StatusPoller,
	intel Enricher,
	store checkpoint.Store,
	blobs harvest.BlobStore,
	publisher harvest.Publisher,
	clock harvest.Clock,
	ids harvest.IDGenerator,
	hasher harvest.Hasher,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlugMaxBytes <= 0 {
		cfg.SlugMaxBytes = slug.DefaultMaxBytes
	}
	if cfg.CategoryCap <= 0 {
		cfg.CategoryCap = vocab.DefaultCategoryCap
	}
	if cfg.TagCap <= 0 {
		cfg.TagCap = vocab.DefaultTagCap
	}
	if cfg.ScheduleThreshold <= 0 {
		cfg.ScheduleThreshold = schedule.DefaultThreshold
	}
	if cfg.ScheduleGroup <= 0 {
		cfg.ScheduleGroup = schedule.DefaultGroup
	}
	d := &Driver{
		backend:   backend,
		poller:    statusPoller,
		intel:     intel,
		store:     store,
		blobs:     blobs,
		writer:    document.NewWriter(blobs, logger),
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		hasher:    hasher,
		cfg:       cfg,
		logger:    logger,
		events:    progress.Discard,
		sleep:     sleepCtx,
		snap:      Snapshot{State: StateInit},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Status returns the current snapshot.
func (d *Driver) Status() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snap
}

// PollAttempt implements poller.Observer, tagging attempts with the current run.
func (d *Driver) PollAttempt(attempt int, complete bool, err error) {
	progress.PollReporter{Emitter: d.events, RunID: d.runID, Now: d.clock.Now}.PollAttempt(attempt, complete, err)
}

func (d *Driver) update(fn func(*Snapshot)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(&d.snap)
	d.snap.UpdatedAt = d.clock.Now()
}

func (d *Driver) setState(s State) {
	d.update(func(snap *Snapshot) { snap.State = s })
	d.logger.Debug("state changed", zap.String("state", string(s)))
}

func (d *Driver) emit(evt progress.Event) {
	evt.RunID = d.runID
	if evt.TS.IsZero() {
		evt.TS = d.clock.Now()
	}
	d.events.Emit(evt)
}

// Run executes the run to completion, interruption or failure. The manifest
// is saved after every written document, so a later Run resumes where this
// one stopped.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	started := d.clock.Now()
	d.update(func(s *Snapshot) {
		s.State = StateInit
		s.StartedAt = started
	})

	m, found, err := d.store.Load(ctx)
	if err != nil {
		return d.fail(ctx, nil, fmt.Errorf("load manifest: %w", err))
	}
	m.Repair(d.logger)
	if m.RunID == "" {
		id, err := d.ids.NewID()
		if err != nil {
			return d.fail(ctx, nil, fmt.Errorf("new run id: %w", err))
		}
		m.RunID = id
	}
	d.runID = progress.ParseRunID(m.RunID)
	if m.CrawlBackend == "" {
		m.CrawlBackend = d.cfg.CrawlBackend
	}
	if m.IntelBackend == "" {
		m.IntelBackend = d.cfg.IntelBackend
	}

	st := newRunState(m, d.cfg, schedule.New(started, d.cfg.ScheduleThreshold, d.cfg.ScheduleGroup))
	d.update(func(s *Snapshot) {
		s.RunID = m.RunID
		s.StartURL = m.StartURL
		s.JobID = m.JobID
		s.Cursor = m.Cursor()
		s.PagesProcessed = m.PagesProcessed
		s.Categories = st.categories.Len()
		s.Tags = st.tags.Len()
		s.LastSlug = m.PrevSlug()
	})
	d.emit(progress.Event{Stage: progress.StageRunStart, URL: d.cfg.StartURL})
	d.logger.Info("run started",
		zap.String("run_id", m.RunID),
		zap.Bool("manifest_found", found),
		zap.Int("pages_processed", m.PagesProcessed),
		zap.String("cursor", m.Cursor()),
	)

	job, cursor, err := d.launch(ctx, st)
	if err != nil {
		return d.fail(ctx, st, err)
	}

	for {
		d.setState(StatePolling)
		var batch harvest.PageBatch
		if cursor == "" {
			batch, err = d.poller.Wait(ctx, job)
		} else {
			batch, err = d.poller.Next(ctx, job, cursor)
		}
		if err != nil {
			return d.fail(ctx, st, fmt.Errorf("poll %q: %w", cursor, err))
		}
		d.emit(progress.Event{Stage: progress.StageBatch, Items: len(batch.Items), URL: cursor})
		d.logger.Info("processing batch",
			zap.String("cursor", cursor),
			zap.Int("items", len(batch.Items)),
			zap.Bool("has_next", batch.HasNext()),
		)

		d.setState(StateProcessing)
		stop := d.processBatch(ctx, st, batch.Items)
		switch stop {
		case stopCanceled:
			return d.fail(ctx, st, fmt.Errorf("run interrupted: %w", ctx.Err()))
		case stopLimit:
			st.limitReached = true
			return d.finish(ctx, st)
		}

		d.advance(ctx, st, batch.NextCursor)
		if d.limitReached(st) {
			st.limitReached = true
			return d.finish(ctx, st)
		}
		if !batch.HasNext() {
			d.logger.Info("no next batch; crawl complete")
			return d.finish(ctx, st)
		}

		wait := max(d.cfg.Delay, d.poller.MinDelay())
		if err := d.sleep(ctx, wait); err != nil {
			return d.fail(ctx, st, fmt.Errorf("run interrupted: %w", err))
		}
		cursor = batch.NextCursor
	}
}

// launch resumes from the manifest's pending cursor, or starts a new crawl
// and checkpoints its status URL before the first poll.
func (d *Driver) launch(ctx context.Context, st *runState) (harvest.CrawlJob, string, error) {
	if cursor := st.manifest.Cursor(); cursor != "" {
		d.setState(StateResuming)
		d.logger.Info("resuming crawl", zap.String("job_id", st.manifest.JobID), zap.String("cursor", cursor))
		return harvest.CrawlJob{ID: st.manifest.JobID}, cursor, nil
	}

	d.setState(StateStarting)
	startURL := strings.TrimSpace(d.cfg.StartURL)
	if startURL == "" {
		startURL = st.manifest.StartURL
	}
	if startURL == "" {
		return harvest.CrawlJob{}, "", errors.New("start url required")
	}
	job, err := d.backend.Start(ctx, startURL, d.cfg.StartOptions)
	if err == nil && strings.TrimSpace(job.ID) == "" {
		err = errors.New("crawl started without a job id")
	}
	if err != nil {
		var unavailable *harvest.ServiceUnavailableError
		if !errors.As(err, &unavailable) {
			err = &harvest.ServiceUnavailableError{Service: d.cfg.CrawlBackend, Err: err}
		}
		return harvest.CrawlJob{}, "", fmt.Errorf("start crawl: %w", err)
	}

	next := st.manifest.Clone()
	next.StartURL = startURL
	next.JobID = job.ID
	next.PendingCursor = checkpoint.StringPtr(job.StatusURL)
	next.Done = false
	next.UpdatedAt = d.clock.Now()
	if err := d.store.Save(context.WithoutCancel(ctx), next); err != nil {
		return harvest.CrawlJob{}, "", &harvest.FilesystemError{Op: "save manifest", Path: "manifest", Err: err}
	}
	st.manifest = next
	d.update(func(s *Snapshot) {
		s.StartURL = startURL
		s.JobID = job.ID
		s.Cursor = job.StatusURL
	})
	return job, job.StatusURL, nil
}

// advance records that the current page is fully processed.
func (d *Driver) advance(ctx context.Context, st *runState, nextCursor string) {
	next := st.manifest.Clone()
	next.PendingCursor = checkpoint.StringPtr(nextCursor)
	next.Done = nextCursor == ""
	next.UpdatedAt = d.clock.Now()
	if err := d.store.Save(context.WithoutCancel(ctx), next); err != nil {
		// The page will be fetched again on resume and its entries skipped.
		d.logger.Warn("save manifest after batch failed", zap.String("cursor", nextCursor), zap.Error(err))
		st.manifest.PendingCursor = next.PendingCursor
		st.manifest.Done = next.Done
		return
	}
	st.manifest = next
	d.update(func(s *Snapshot) { s.Cursor = nextCursor })
}

func (d *Driver) limitReached(st *runState) bool {
	return d.cfg.MaxPages > 0 && st.manifest.PagesProcessed >= d.cfg.MaxPages
}

func (d *Driver) finish(ctx context.Context, st *runState) (Result, error) {
	final := st.manifest.Clone()
	final.UpdatedAt = d.clock.Now()
	if err := d.store.Save(context.WithoutCancel(ctx), final); err != nil {
		d.logger.Warn("save final manifest failed", zap.Error(err))
	} else {
		st.manifest = final
	}

	d.setState(StateDone)
	res := st.result(StateDone)
	d.writeReport(ctx, st, StateDone, "")
	d.emit(progress.Event{Stage: progress.StageRunDone, Items: res.Written, Dur: d.clock.Now().Sub(d.Status().StartedAt)})
	d.logger.Info("run finished",
		zap.String("run_id", res.RunID),
		zap.Int("pages_processed", res.PagesProcessed),
		zap.Int("written", res.Written),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Bool("crawl_done", res.Done),
		zap.Bool("limit_reached", res.LimitReached),
	)
	return res, nil
}

func (d *Driver) fail(ctx context.Context, st *runState, err error) (Result, error) {
	d.update(func(s *Snapshot) {
		s.State = StateFailed
		s.Err = err.Error()
	})
	level := d.logger.Error
	if errors.Is(err, context.Canceled) {
		level = d.logger.Warn
	}
	level("run failed", zap.String("run_id", d.Status().RunID), zap.Error(err))
	d.emit(progress.Event{Stage: progress.StageRunError, Note: err.Error()})
	if st == nil {
		return Result{RunID: d.Status().RunID, State: StateFailed}, err
	}
	d.writeReport(ctx, st, StateFailed, err.Error())
	return st.result(StateFailed), err
}

func (d *Driver) writeReport(ctx context.Context, st *runState, state State, errText string) {
	m := st.manifest
	data, err := report.Render(report.Summary{
		RunID:          m.RunID,
		StartURL:       m.StartURL,
		JobID:          m.JobID,
		CrawlBackend:   m.CrawlBackend,
		IntelBackend:   m.IntelBackend,
		State:          string(state),
		StartedAt:      d.Status().StartedAt,
		FinishedAt:     d.clock.Now(),
		PagesProcessed: m.PagesProcessed,
		Written:        st.written,
		Skipped:        st.skipped,
		Failed:         st.failed,
		FilesTotal:     len(m.Files),
		Categories:     st.categories.Terms(),
		CategoryCap:    st.categories.Cap(),
		Tags:           st.tags.Terms(),
		TagCap:         st.tags.Cap(),
		PendingCursor:  m.Cursor(),
		Done:           m.Done,
		Err:            errText,
	})
	if err != nil {
		d.logger.Warn("render run report failed", zap.Error(err))
		return
	}
	loc, err := d.blobs.PutObject(context.WithoutCancel(ctx), report.FileName, "text/markdown; charset=utf-8", bytes.NewReader(data))
	if err != nil {
		d.logger.Warn("write run report failed", zap.Error(err))
		return
	}
	d.logger.Info("run report written", zap.String("location", loc))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ poller.Observer = (*Driver)(nil)
