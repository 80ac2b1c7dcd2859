// Package relevance classifies BTP services by how central they are to an
// SAP Basis administrator, backed by a persistent cache.
package relevance

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/btp-research/internal/metrics"
	"github.com/sells-group/btp-research/internal/model"
	"github.com/sells-group/btp-research/internal/resilience"
	"github.com/sells-group/btp-research/internal/store"
	"github.com/sells-group/btp-research/pkg/anthropic"
)

const (
	defaultModel = "claude-haiku-4-5-20251001"
	temperature  = 0.1
	maxTokens    = 150
)

// ErrClassificationParse means the model reply held no JSON object. Callers
// treat the service as unclassified.
var ErrClassificationParse = errors.New("relevance: unparseable classification reply")

// Classifier produces relevance records, consulting the cache first.
type Classifier struct {
	ai      anthropic.Client
	store   store.Store
	model   string
	metrics *metrics.Metrics
	now     func() time.Time
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithModel overrides the classification model.
func WithModel(m string) ClassifierOption {
	return func(c *Classifier) {
		if m != "" {
			c.model = m
		}
	}
}

// WithMetrics records classification outcomes.
func WithMetrics(m *metrics.Metrics) ClassifierOption {
	return func(c *Classifier) {
		c.metrics = m
	}
}

// NewClassifier creates a Classifier.
func NewClassifier(ai anthropic.Client, st store.Store, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		ai:    ai,
		store: st,
		model: defaultModel,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify returns the relevance of svc. Unless force is set, a cached
// record is returned without calling the model. A fresh result is written
// back to the cache; a failed write is logged and the result still returned.
func (c *Classifier) Classify(ctx context.Context, svc model.ServiceSummary, force bool) (*model.RelevanceRecord, error) {
	log := zap.L().With(zap.String("service_id", svc.TechnicalID))

	if svc.TechnicalID == "" {
		return nil, eris.New("relevance: service has no technical id")
	}

	if !force {
		cached, err := c.store.GetRelevance(ctx, svc.TechnicalID)
		if err != nil {
			log.Warn("relevance: cache lookup failed, classifying", zap.Error(err))
		} else if cached != nil {
			c.metrics.RelevanceCacheHits(1)
			cached.Cached = true
			return cached, nil
		}
	}

	return c.classifyMiss(ctx, svc)
}

// classifyMiss calls the model and stores the result without reading the
// cache first. The filler uses it for ids its bulk lookup did not find.
func (c *Classifier) classifyMiss(ctx context.Context, svc model.ServiceSummary) (*model.RelevanceRecord, error) {
	log := zap.L().With(zap.String("service_id", svc.TechnicalID))
	if svc.TechnicalID == "" {
		return nil, eris.New("relevance: service has no technical id")
	}

	temp := temperature
	resp, err := c.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      systemPrompt,
		Temperature: &temp,
		Messages:    []anthropic.Message{{Role: "user", Content: userMessage(svc)}},
	})
	if err != nil {
		c.metrics.Classification(metrics.ResultError)
		return nil, mapAnthropicError(err)
	}
	resp.Usage.LogCost(c.model, "relevance")

	parsed, ok := parseClassification(resp.Text())
	if !ok {
		c.metrics.Classification(metrics.ResultParseError)
		log.Warn("relevance: no JSON object in reply")
		return nil, eris.Wrapf(ErrClassificationParse, "relevance: classify %s", svc.TechnicalID)
	}

	rel, coerced := model.ParseRelevance(parsed.Relevance)
	if coerced {
		c.metrics.Coercion()
		log.Warn("relevance: unexpected value coerced to medium", zap.String("value", parsed.Relevance))
	}

	rec := &model.RelevanceRecord{
		ServiceID: svc.TechnicalID,
		Relevance: rel,
		Reason:    model.TruncateReason(parsed.Reason),
		UpdatedAt: c.now(),
	}

	if err := c.store.UpsertRelevance(ctx, *rec); err != nil {
		log.Error("relevance: cache write failed", zap.Error(err))
	}

	c.metrics.Classification(metrics.ResultOK)
	return rec, nil
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		return resilience.NewRemoteError("anthropic", apiErr.StatusCode, apiErr.Message, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrap(err, "relevance: classify")
	}
	return resilience.NewUnavailableError("anthropic", err)
}
