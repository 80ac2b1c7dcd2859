package analysis

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/btp-research/internal/metrics"
	"github.com/sells-group/btp-research/internal/model"
	"github.com/sells-group/btp-research/internal/resilience"
	"github.com/sells-group/btp-research/pkg/perplexity"
)

type mockPerplexityClient struct {
	mock.Mock
}

func (m *mockPerplexityClient) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perplexity.ChatCompletionResponse), args.Error(1)
}

func completion(content string, citations []string) *perplexity.ChatCompletionResponse {
	return &perplexity.ChatCompletionResponse{
		ID:        "cmpl_test",
		Model:     "sonar-pro",
		Choices:   []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: content}}},
		Citations: citations,
	}
}

func TestAnalyze_Full(t *testing.T) {
	ai := &mockPerplexityClient{}
	ai.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req perplexity.ChatCompletionRequest) bool {
		return len(req.Messages) == 2 &&
			req.Messages[0].Role == "system" &&
			req.Messages[0].Content == defaultFullPrompt &&
			req.Messages[1].Role == "user" &&
			req.Temperature != nil && *req.Temperature == 0.2 &&
			req.MaxTokens != nil && *req.MaxTokens == 4000
	})).Return(completion("## Overview\nAudit logs.", []string{"https://b.example.com", "https://a.example.com"}), nil).Once()

	m := metrics.New()
	res, err := NewAnalyzer(ai, WithMetrics(m)).Analyze(context.Background(), Request{ServiceName: "Audit Log Service"})
	require.NoError(t, err)

	assert.Equal(t, model.AnalysisFull, res.Category)
	assert.Equal(t, "## Overview\nAudit logs.", res.Content)
	assert.Equal(t, []string{"https://b.example.com", "https://a.example.com"}, res.Citations)
	assert.Equal(t, "sonar-pro", res.Model)
	ai.AssertExpectations(t)
}

func TestAnalyze_Quick(t *testing.T) {
	ai := &mockPerplexityClient{}
	ai.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req perplexity.ChatCompletionRequest) bool {
		return req.Messages[0].Content == defaultQuickPrompt &&
			req.MaxTokens != nil && *req.MaxTokens == 300 &&
			req.Model == "sonar"
	})).Return(completion("Short summary.", nil), nil).Once()

	res, err := NewAnalyzer(ai, WithModel("sonar")).Analyze(context.Background(), Request{
		ServiceName: "Audit Log Service",
		Mode:        model.AnalysisQuick,
	})
	require.NoError(t, err)
	assert.Equal(t, model.AnalysisQuick, res.Category)
	assert.NotNil(t, res.Citations)
	assert.Empty(t, res.Citations)
	ai.AssertExpectations(t)
}

func TestAnalyze_SystemPromptOverride(t *testing.T) {
	ai := &mockPerplexityClient{}
	ai.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req perplexity.ChatCompletionRequest) bool {
		return req.Messages[0].Content == "Custom prompt"
	})).Return(completion("ok", nil), nil).Once()

	_, err := NewAnalyzer(ai, WithPrompts(Prompts{Full: "configured", Quick: "configured"})).
		Analyze(context.Background(), Request{ServiceName: "X", SystemPrompt: "  Custom prompt "})
	require.NoError(t, err)
	ai.AssertExpectations(t)
}

func TestAnalyze_EmptyContentPlaceholder(t *testing.T) {
	ai := &mockPerplexityClient{}
	ai.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(&perplexity.ChatCompletionResponse{Model: "sonar-pro"}, nil).Once()

	res, err := NewAnalyzer(ai).Analyze(context.Background(), Request{ServiceName: "X"})
	require.NoError(t, err)
	assert.Equal(t, NoAnalysis, res.Content)
}

func TestAnalyze_RemoteErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		want   resilience.Kind
		status int
	}{
		{name: "rate limited", err: &perplexity.APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}, want: resilience.KindRateLimited, status: 429},
		{name: "quota", err: &perplexity.APIError{StatusCode: http.StatusPaymentRequired, Message: "no credits"}, want: resilience.KindQuotaExhausted, status: 402},
		{name: "server", err: &perplexity.APIError{StatusCode: http.StatusInternalServerError, Message: "oops"}, want: resilience.KindUpstream, status: 500},
		{name: "network", err: errors.New("perplexity: send request: connection refused"), want: resilience.KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := &mockPerplexityClient{}
			ai.On("ChatCompletion", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			res, err := NewAnalyzer(ai).Analyze(context.Background(), Request{ServiceName: "X"})
			require.Error(t, err)
			assert.Nil(t, res)

			ue, ok := resilience.AsUpstream(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, ue.Kind)
			assert.Equal(t, "perplexity", ue.Service)
			assert.Equal(t, tt.status, ue.StatusCode)
			ai.AssertNumberOfCalls(t, "ChatCompletion", 1)
		})
	}
}

func TestAnalyze_ContextCanceled(t *testing.T) {
	ai := &mockPerplexityClient{}
	ai.On("ChatCompletion", mock.Anything, mock.Anything).Return(nil, context.Canceled).Once()

	_, err := NewAnalyzer(ai).Analyze(context.Background(), Request{ServiceName: "X"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	_, ok := resilience.AsUpstream(err)
	assert.False(t, ok)
}

func TestAnalyze_RequiresName(t *testing.T) {
	ai := &mockPerplexityClient{}
	_, err := NewAnalyzer(ai).Analyze(context.Background(), Request{ServiceName: "  "})
	assert.Error(t, err)
	ai.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything)
}

func TestNewRequest(t *testing.T) {
	svc := model.ServiceSummary{TechnicalID: "auditlog", Description: "d"}
	detail := &model.ServiceDetail{
		Links:             []model.Link{{Value: "https://x.example.com"}},
		ServicePlans:      []model.ServicePlan{{Name: "default"}},
		SupportComponents: []model.SupportComponent{{Value: "BC-CP"}},
	}

	req := NewRequest(svc, detail, model.AnalysisQuick, "ref")
	assert.Equal(t, "auditlog", req.ServiceName)
	assert.Equal(t, "d", req.ServiceDescription)
	assert.Len(t, req.Links, 1)
	assert.Len(t, req.Plans, 1)
	assert.Len(t, req.SupportComponents, 1)
	assert.Equal(t, "ref", req.SourceRef)
	assert.Equal(t, model.AnalysisQuick, req.Mode)

	bare := NewRequest(model.ServiceSummary{TechnicalID: "a", DisplayName: "A"}, nil, model.AnalysisFull, "")
	assert.Equal(t, "A", bare.ServiceName)
	assert.Nil(t, bare.Links)
}
