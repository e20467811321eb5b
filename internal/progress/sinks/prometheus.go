package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/site-harvester/internal/progress"
)

// PrometheusSink exports harvest progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	pollAttempts *prometheus.CounterVec
	batchItems   prometheus.Counter

	documents   *prometheus.CounterVec
	docBytes    *prometheus.CounterVec
	docDuration prometheus.Histogram

	mu     sync.Mutex
	active map[[16]byte]struct{}
}

// NewPrometheusSink registers the collectors with reg, or with the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_runs_started_total",
			Help: "Harvest runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_runs_completed_total",
			Help: "Harvest runs finished, by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "harvest_runs_active",
			Help: "Harvest runs in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}, []string{"result"}),
		pollAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_poll_attempts_total",
			Help: "Status poll attempts, by outcome.",
		}, []string{"outcome"}),
		batchItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_batch_items_total",
			Help: "Entries received in status pages.",
		}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_documents_total",
			Help: "Documents handled, by site and result.",
		}, []string{"site", "result"}),
		docBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_document_bytes_total",
			Help: "Rendered document bytes written, by site.",
		}, []string{"site"}),
		docDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "harvest_document_duration_seconds",
			Help:    "Time to enrich and write one document.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		active: make(map[[16]byte]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted, s.runsCompleted, s.runsActive, s.runDuration,
		s.pollAttempts, s.batchItems,
		s.documents, s.docBytes, s.docDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.observe(evt)
	}
	return nil
}

func (s *PrometheusSink) observe(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.track(evt.RunID, true) {
			s.runsActive.Inc()
		}
	case progress.StageRunDone, progress.StageRunError:
		result := "success"
		if evt.Stage == progress.StageRunError {
			result = "error"
		}
		s.runsCompleted.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.track(evt.RunID, false) {
			s.runsActive.Dec()
		}
	case progress.StagePoll:
		outcome := "pending"
		switch {
		case evt.Note != "":
			outcome = "error"
		case evt.Complete:
			outcome = "complete"
		}
		s.pollAttempts.WithLabelValues(outcome).Inc()
	case progress.StageBatch:
		s.batchItems.Add(float64(evt.Items))
	case progress.StageDocWritten:
		s.documents.WithLabelValues(evt.Site, "written").Inc()
		if evt.Bytes > 0 {
			s.docBytes.WithLabelValues(evt.Site).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.docDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageDocFailed:
		s.documents.WithLabelValues(evt.Site, "failed").Inc()
	case progress.StageDocSkipped:
		s.documents.WithLabelValues(evt.Site, "skipped").Inc()
	}
}

// track records a run as started or finished and reports whether the set changed.
func (s *PrometheusSink) track(id [16]byte, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	if start {
		s.active[id] = struct{}{}
		return !ok
	}
	delete(s.active, id)
	return ok
}

// Close is a no-op.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
