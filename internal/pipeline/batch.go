package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/checkpoint"
	"github.com/JakeFAU/site-harvester/internal/document"
	"github.com/JakeFAU/site-harvester/internal/harvest"
	"github.com/JakeFAU/site-harvester/internal/normalize"
	"github.com/JakeFAU/site-harvester/internal/progress"
	"github.com/JakeFAU/site-harvester/internal/schedule"
	"github.com/JakeFAU/site-harvester/internal/slug"
	"github.com/JakeFAU/site-harvester/internal/vocab"
)

const tracerName = "github.com/JakeFAU/site-harvester/internal/pipeline"

type stopReason int

const (
	stopNone stopReason = iota
	stopLimit
	stopCanceled
)

// runState is the in-memory mirror of the manifest plus per-run counters.
// Only the driver goroutine touches it.
type runState struct {
	manifest   checkpoint.Manifest
	files      map[string]struct{}
	categories *vocab.Pool
	tags       *vocab.Pool
	slugs      *slug.Allocator
	scheduler  schedule.Scheduler

	written      int
	skipped      int
	failed       int
	limitReached bool
}

func newRunState(m checkpoint.Manifest, cfg Config, sched schedule.Scheduler) *runState {
	files := make(map[string]struct{}, len(m.Files))
	for _, f := range m.Files {
		files[f] = struct{}{}
	}
	return &runState{
		manifest:   m,
		files:      files,
		categories: vocab.NewPool(cfg.CategoryCap, m.CategoryPool),
		tags:       vocab.NewPool(cfg.TagCap, m.TagPool),
		slugs:      slug.NewAllocator(slug.NewSet(m.UsedSlugs), cfg.SlugMaxBytes),
		scheduler:  sched,
	}
}

func (st *runState) result(state State) Result {
	return Result{
		RunID:          st.manifest.RunID,
		State:          state,
		PagesProcessed: st.manifest.PagesProcessed,
		Written:        st.written,
		Skipped:        st.skipped,
		Failed:         st.failed,
		Files:          len(st.manifest.Files),
		Cursor:         st.manifest.Cursor(),
		Done:           st.manifest.Done,
		LimitReached:   st.limitReached,
	}
}

// enriched is one entry after normalization and intelligence, before it is
// committed.
type enriched struct {
	path       string
	doc        harvest.Document
	categories []string
	tags       []string
	keywords   []string
	slug       string
	publish    string
}

func (d *Driver) processBatch(ctx context.Context, st *runState, items []harvest.RawEntry) stopReason {
	reconciler := vocab.NewReconciler(d.intel, d.logger)
	for _, entry := range items {
		if d.limitReached(st) {
			d.logger.Info("reached max pages limit", zap.Int("max_pages", d.cfg.MaxPages))
			return stopLimit
		}
		if ctx.Err() != nil {
			return stopCanceled
		}
		d.processEntry(ctx, st, reconciler, entry)
	}
	return stopNone
}

func (d *Driver) processEntry(ctx context.Context, st *runState, reconciler *vocab.Reconciler, entry harvest.RawEntry) {
	began := d.clock.Now()
	doc := normalize.Normalize(entry)
	site := progress.SiteOf(doc.SourceURL)
	path := document.PathFor(doc.SourceURL)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "harvest.document", trace.WithAttributes(
		attribute.String("harvest.url", doc.SourceURL),
		attribute.String("harvest.path", path),
	))
	defer span.End()

	if _, done := st.files[path]; done {
		span.SetAttributes(attribute.Bool("harvest.skipped", true))
		st.skipped++
		d.update(func(s *Snapshot) { s.Skipped = st.skipped })
		d.emit(progress.Event{Stage: progress.StageDocSkipped, Site: site, URL: doc.SourceURL})
		d.logger.Debug("document already written, skipping", zap.String("url", doc.SourceURL), zap.String("path", path))
		return
	}

	catSnap, tagSnap := st.categories.Clone(), st.tags.Clone()
	item := d.enrich(ctx, st, reconciler, doc)
	item.path = path

	rollback := func() {
		st.categories.Restore(catSnap)
		st.tags.Restore(tagSnap)
		st.slugs.Used().Remove(item.slug)
	}
	failed := func(err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "document rolled back")
		rollback()
		st.failed++
		d.update(func(s *Snapshot) { s.Failed = st.failed })
		d.emit(progress.Event{Stage: progress.StageDocFailed, Site: site, URL: doc.SourceURL, Note: err.Error(), Dur: d.clock.Now().Sub(began)})
		d.logger.Error("document failed, rolled back",
			zap.String("url", doc.SourceURL),
			zap.String("path", path),
			zap.String("slug", item.slug),
			zap.Error(err),
		)
	}

	data, err := document.Render(document.FrontMatter{
		PublishDate: item.publish,
		Lastmod:     item.publish,
		Title:       item.doc.Title,
		Description: item.doc.Description,
		Summary:     item.doc.Description,
		URL:         item.slug,
		Categories:  item.categories,
		Tags:        item.tags,
		Keywords:    item.keywords,
		Type:        document.TypeDocs,
		Prev:        st.manifest.PrevSlug(),
		Sidebar:     document.Sidebar{Open: true},
	}, item.doc.Body)
	if err != nil {
		failed(err)
		return
	}

	// Interruption is honored between documents only.
	if ctx.Err() != nil {
		rollback()
		return
	}
	location, err := d.commit(context.WithoutCancel(ctx), st, item, data)
	if err != nil {
		failed(err)
		return
	}

	span.SetAttributes(attribute.String("harvest.slug", item.slug))
	st.written++
	d.update(func(s *Snapshot) {
		s.PagesProcessed = st.manifest.PagesProcessed
		s.FilesWritten = st.written
		s.Categories = st.categories.Len()
		s.Tags = st.tags.Len()
		s.LastSlug = item.slug
	})
	d.announce(context.WithoutCancel(ctx), st, item, location, data)
	d.emit(progress.Event{
		Stage: progress.StageDocWritten,
		Site:  site,
		URL:   doc.SourceURL,
		Bytes: int64(len(data)),
		Dur:   d.clock.Now().Sub(began),
	})
	d.logger.Info("document written",
		zap.String("url", doc.SourceURL),
		zap.String("path", path),
		zap.String("slug", item.slug),
		zap.Int("index", st.manifest.PagesProcessed-1),
	)
}

// enrich translates, classifies, reconciles and schedules doc. It mutates the
// pools and the slug set; callers snapshot them first.
func (d *Driver) enrich(ctx context.Context, st *runState, reconciler *vocab.Reconciler, doc harvest.Document) enriched {
	doc.Title = d.intel.Translate(ctx, doc.Title)
	doc.Description = d.intel.Translate(ctx, doc.Description)
	doc.Body = d.intel.Translate(ctx, doc.Body)

	cls := d.intel.Classify(ctx, doc.Title, doc.Body)
	categories := reconciler.Reconcile(ctx, cls.Categories, st.categories, vocab.Category)
	tags := reconciler.Reconcile(ctx, cls.Tags, st.tags, vocab.Tag)
	keywords := d.intel.ExtractKeywords(ctx, doc.Title, doc.Body)

	return enriched{
		doc:        doc,
		categories: categories,
		tags:       tags,
		keywords:   keywords,
		slug:       st.slugs.Allocate(doc.Title),
		publish:    st.scheduler.Format(st.manifest.PagesProcessed),
	}
}

// commit writes the document and saves the manifest that records it. When
// the save fails the document is removed again.
func (d *Driver) commit(ctx context.Context, st *runState, item enriched, data []byte) (string, error) {
	location, err := d.writer.Write(ctx, item.path, data)
	if err != nil {
		return "", err
	}

	next := st.manifest.Clone()
	next.PagesProcessed++
	next.Files = append(next.Files, item.path)
	next.UsedSlugs = st.slugs.Used().Sorted()
	next.CategoryPool = st.categories.Terms()
	next.TagPool = st.tags.Terms()
	next.LastAllocatedSlug = checkpoint.StringPtr(item.slug)
	next.UpdatedAt = d.clock.Now()
	if err := d.store.Save(ctx, next); err != nil {
		saveErr := &harvest.FilesystemError{Op: "save manifest", Path: item.path, Err: err}
		if rmErr := d.writer.Remove(ctx, item.path); rmErr != nil {
			return "", errors.Join(saveErr, rmErr)
		}
		return "", saveErr
	}
	st.manifest = next
	st.files[item.path] = struct{}{}
	return location, nil
}

// announce publishes the document-written notification. Failures are logged.
func (d *Driver) announce(ctx context.Context, st *runState, item enriched, location string, data []byte) {
	if d.publisher == nil || d.cfg.Topic == "" {
		return
	}
	var digest string
	if d.hasher != nil {
		h, err := d.hasher.Hash(data)
		if err != nil {
			d.logger.Warn("hash document failed", zap.String("path", item.path), zap.Error(err))
		}
		digest = h
	}
	evt := harvest.DocumentEvent{
		RunID:       st.manifest.RunID,
		Index:       st.manifest.PagesProcessed - 1,
		Path:        item.path,
		Location:    location,
		SourceURL:   item.doc.SourceURL,
		Slug:        item.slug,
		Title:       item.doc.Title,
		PublishDate: item.publish,
		Categories:  item.categories,
		Tags:        item.tags,
		ContentHash: digest,
		WrittenAt:   d.clock.Now().UTC().Truncate(time.Second),
	}
	id, err := d.publisher.Publish(ctx, d.cfg.Topic, evt)
	if err != nil {
		d.logger.Warn("publish document event failed", zap.String("path", item.path), zap.Error(err))
		return
	}
	d.logger.Debug("document event published", zap.String("message_id", id), zap.String("path", item.path))
}
