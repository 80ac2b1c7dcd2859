package relevance

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/btp-research/internal/metrics"
	"github.com/sells-group/btp-research/internal/model"
	"github.com/sells-group/btp-research/internal/store"
)

const (
	defaultBatchSize  = 5
	defaultBatchDelay = 200 * time.Millisecond
)

// Outcome is the result of classifying one service that missed the cache.
type Outcome struct {
	ServiceID string
	Record    *model.RelevanceRecord
	Err       error
}

// OK reports whether the classification succeeded.
func (o Outcome) OK() bool { return o.Err == nil && o.Record != nil }

// Report summarizes one batch fill.
type Report struct {
	Records  map[string]model.RelevanceRecord
	Cached   int
	Outcomes []Outcome
}

// Failed returns the outcomes that produced no record.
func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Filler annotates a list of services with relevance, reading the cache in
// bulk and classifying the misses in small concurrent groups.
type Filler struct {
	classifier *Classifier
	store      store.Store
	batchSize  int
	delay      time.Duration
	metrics    *metrics.Metrics
}

// FillerOption configures a Filler.
type FillerOption func(*Filler)

// WithBatchSize sets how many classifications run concurrently.
func WithBatchSize(n int) FillerOption {
	return func(f *Filler) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithBatchDelay sets the pause between groups.
func WithBatchDelay(d time.Duration) FillerOption {
	return func(f *Filler) {
		if d >= 0 {
			f.delay = d
		}
	}
}

// WithFillerMetrics records cache hits for the bulk lookup.
func WithFillerMetrics(m *metrics.Metrics) FillerOption {
	return func(f *Filler) {
		f.metrics = m
	}
}

// NewFiller creates a Filler.
func NewFiller(c *Classifier, st store.Store, opts ...FillerOption) *Filler {
	f := &Filler{
		classifier: c,
		store:      st,
		batchSize:  defaultBatchSize,
		delay:      defaultBatchDelay,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// ClassifyAll returns the relevance of every service it could classify.
// Services that failed are absent from the map.
func (f *Filler) ClassifyAll(ctx context.Context, services []model.ServiceSummary) map[string]model.RelevanceRecord {
	return f.Fill(ctx, services).Records
}

// Fill is ClassifyAll with per-item outcomes. Cancelling ctx stops new
// groups from starting; what was gathered so far is returned.
func (f *Filler) Fill(ctx context.Context, services []model.ServiceSummary) Report {
	unique := make([]model.ServiceSummary, 0, len(services))
	ids := make([]string, 0, len(services))
	seen := make(map[string]struct{}, len(services))
	for _, s := range services {
		if s.TechnicalID == "" {
			continue
		}
		if _, ok := seen[s.TechnicalID]; ok {
			continue
		}
		seen[s.TechnicalID] = struct{}{}
		unique = append(unique, s)
		ids = append(ids, s.TechnicalID)
	}

	report := Report{Records: make(map[string]model.RelevanceRecord, len(unique))}
	if len(unique) == 0 {
		return report
	}

	cached, err := f.store.GetRelevanceBatch(ctx, ids)
	if err != nil {
		zap.L().Warn("relevance: bulk cache lookup failed, classifying all", zap.Error(err), zap.Int("services", len(ids)))
		cached = nil
	}

	misses := make([]model.ServiceSummary, 0, len(unique))
	for _, s := range unique {
		if rec, ok := cached[s.TechnicalID]; ok {
			rec.Cached = true
			report.Records[s.TechnicalID] = rec
			continue
		}
		misses = append(misses, s)
	}
	report.Cached = len(report.Records)
	f.metrics.RelevanceCacheHits(report.Cached)

	for start := 0; start < len(misses); start += f.batchSize {
		if start > 0 && !sleep(ctx, f.delay) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		end := min(start+f.batchSize, len(misses))
		outcomes := f.runGroup(ctx, misses[start:end])

		for _, o := range outcomes {
			report.Outcomes = append(report.Outcomes, o)
			if o.OK() {
				report.Records[o.ServiceID] = *o.Record
				continue
			}
			zap.L().Warn("relevance: classification failed, leaving unclassified",
				zap.String("service_id", o.ServiceID), zap.Error(o.Err))
		}
	}

	zap.L().Info("relevance: batch fill complete",
		zap.Int("services", len(unique)),
		zap.Int("cached", report.Cached),
		zap.Int("classified", len(report.Records)-report.Cached),
		zap.Int("failed", len(report.Failed())),
	)
	return report
}

// Reclassify bypasses the cache and overwrites the stored record.
func (f *Filler) Reclassify(ctx context.Context, svc model.ServiceSummary) (*model.RelevanceRecord, error) {
	return f.classifier.Classify(ctx, svc, true)
}

func (f *Filler) runGroup(ctx context.Context, group []model.ServiceSummary) []Outcome {
	outcomes := make([]Outcome, len(group))

	var g errgroup.Group
	for i, svc := range group {
		g.Go(func() error {
			rec, err := f.classifier.classifyMiss(ctx, svc)
			outcomes[i] = Outcome{ServiceID: svc.TechnicalID, Record: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// sleep waits d or until ctx is done. It reports whether the full wait
// elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
