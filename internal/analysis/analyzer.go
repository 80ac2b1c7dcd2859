// Package analysis builds grounded research requests for a single BTP
// service and sends them to the search-augmented completion endpoint.
package analysis

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/btp-research/internal/metrics"
	"github.com/sells-group/btp-research/internal/model"
	"github.com/sells-group/btp-research/internal/resilience"
	"github.com/sells-group/btp-research/pkg/perplexity"
)

const (
	// NoAnalysis replaces an empty completion.
	NoAnalysis = "No analysis available."

	fullTemperature = 0.2
	fullMaxTokens   = 4000
	quickMaxTokens  = 300
)

// Request is everything needed to analyze one service.
type Request struct {
	ServiceName        string
	ServiceDescription string
	Links              []model.Link
	Plans              []model.ServicePlan
	SupportComponents  []model.SupportComponent
	SourceRef          string
	// SystemPrompt overrides the configured prompt for Mode when set.
	SystemPrompt string
	Mode         model.AnalysisCategory
}

// NewRequest assembles a Request from catalog data. detail may be nil.
func NewRequest(svc model.ServiceSummary, detail *model.ServiceDetail, mode model.AnalysisCategory, sourceRef string) Request {
	req := Request{
		ServiceName:        svc.DisplayName,
		ServiceDescription: svc.Description,
		SourceRef:          sourceRef,
		Mode:               mode,
	}
	if req.ServiceName == "" {
		req.ServiceName = svc.TechnicalID
	}
	if detail != nil {
		req.Links = detail.Links
		req.Plans = detail.ServicePlans
		req.SupportComponents = detail.SupportComponents
	}
	return req
}

// Analyzer runs analyses against the search model.
type Analyzer struct {
	ai      perplexity.Client
	prompts Prompts
	model   string
	metrics *metrics.Metrics
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithPrompts replaces the built-in prompts.
func WithPrompts(p Prompts) Option {
	return func(a *Analyzer) {
		a.prompts = p
	}
}

// WithModel sets the model sent with each request. Empty uses the client
// default.
func WithModel(m string) Option {
	return func(a *Analyzer) {
		a.model = m
	}
}

// WithMetrics records analysis outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(ai perplexity.Client, opts ...Option) *Analyzer {
	a := &Analyzer{ai: ai, prompts: DefaultPrompts()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze sends the grounding document for req and returns the narrative
// and its citations. Remote failures are never retried.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*model.AnalysisResult, error) {
	if strings.TrimSpace(req.ServiceName) == "" {
		return nil, eris.New("analysis: service name is required")
	}
	mode := req.Mode
	if mode != model.AnalysisQuick {
		mode = model.AnalysisFull
	}

	system := strings.TrimSpace(req.SystemPrompt)
	if system == "" {
		system = a.prompts.For(mode)
	}

	chat := perplexity.ChatCompletionRequest{
		Model: a.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: BuildGroundingDocument(req)},
		},
	}
	temp := fullTemperature
	chat.Temperature = &temp
	maxTokens := fullMaxTokens
	if mode == model.AnalysisQuick {
		maxTokens = quickMaxTokens
	}
	chat.MaxTokens = &maxTokens

	log := zap.L().With(zap.String("service", req.ServiceName), zap.String("mode", string(mode)))

	resp, err := a.ai.ChatCompletion(ctx, chat)
	if err != nil {
		a.metrics.Analysis(string(mode), false)
		log.Warn("analysis: request failed", zap.Error(err))
		return nil, mapPerplexityError(err)
	}

	content := strings.TrimSpace(resp.Content())
	if content == "" {
		content = NoAnalysis
	}
	citations := resp.Citations
	if citations == nil {
		citations = []string{}
	}

	a.metrics.Analysis(string(mode), true)
	log.Info("analysis: complete",
		zap.Int("citations", len(citations)),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &model.AnalysisResult{
		Category:  mode,
		Content:   content,
		Citations: citations,
		Model:     resp.Model,
	}, nil
}

func mapPerplexityError(err error) error {
	var apiErr *perplexity.APIError
	if errors.As(err, &apiErr) {
		return resilience.NewRemoteError("perplexity", apiErr.StatusCode, apiErr.Message, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return eris.Wrap(err, "analysis: analyze")
	}
	return resilience.NewUnavailableError("perplexity", err)
}
