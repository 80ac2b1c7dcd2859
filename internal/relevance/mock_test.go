package relevance

import (
	"context"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/btp-research/internal/model"
	"github.com/sells-group/btp-research/pkg/anthropic"
)

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:      "msg_test",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 20},
	}
}

// forService matches a request whose user message names the service.
func forService(name string) any {
	return mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.Messages) == 1 && strings.HasPrefix(req.Messages[0].Content, "Service: "+name+"\n")
	})
}

// --- Store Fake ---

type fakeStore struct {
	mu        sync.Mutex
	records   map[string]model.RelevanceRecord
	gets      int
	batchGets int
	upserts   int
	getErr    error
	batchErr  error
	upsertErr error
}

func newFakeStore(seed ...model.RelevanceRecord) *fakeStore {
	s := &fakeStore{records: make(map[string]model.RelevanceRecord)}
	for _, r := range seed {
		s.records[r.ServiceID] = r
	}
	return s
}

func (s *fakeStore) GetRelevance(_ context.Context, id string) (*model.RelevanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeStore) GetRelevanceBatch(_ context.Context, ids []string) (map[string]model.RelevanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchGets++
	if s.batchErr != nil {
		return nil, s.batchErr
	}
	out := make(map[string]model.RelevanceRecord)
	for _, id := range ids {
		if rec, ok := s.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertRelevance(_ context.Context, rec model.RelevanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.upsertErr != nil {
		return s.upsertErr
	}
	rec.Cached = false
	s.records[rec.ServiceID] = rec
	return nil
}

func (s *fakeStore) Migrate(context.Context) error { return nil }
func (s *fakeStore) Close() error                  { return nil }

func (s *fakeStore) count() (gets, batchGets, upserts int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets, s.batchGets, s.upserts
}
