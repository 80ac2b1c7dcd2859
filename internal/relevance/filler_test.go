package relevance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/btp-research/internal/model"
	"github.com/sells-group/btp-research/pkg/anthropic"
)

func services(n int) []model.ServiceSummary {
	out := make([]model.ServiceSummary, n)
	for i := range out {
		out[i] = model.ServiceSummary{
			TechnicalID: fmt.Sprintf("svc-%d", i),
			DisplayName: fmt.Sprintf("Service %d", i),
		}
	}
	return out
}

func TestFiller_PartialFailureCompleteness(t *testing.T) {
	ai := &mockAnthropicClient{}
	st := newFakeStore()
	all := services(7)

	failing := map[string]bool{"Service 2": true, "Service 5": true}
	for _, s := range all {
		if failing[s.DisplayName] {
			ai.On("CreateMessage", mock.Anything, forService(s.DisplayName)).
				Return(nil, &anthropic.APIError{StatusCode: 429, Message: "slow down"})
			continue
		}
		ai.On("CreateMessage", mock.Anything, forService(s.DisplayName)).
			Return(textResponse(`{"relevance":"low","reason":"r"}`), nil)
	}

	f := NewFiller(NewClassifier(ai, st), st, WithBatchSize(5), WithBatchDelay(time.Millisecond))
	report := f.Fill(context.Background(), all)

	assert.Len(t, report.Records, 5)
	assert.NotContains(t, report.Records, "svc-2")
	assert.NotContains(t, report.Records, "svc-5")
	assert.Len(t, report.Outcomes, 7)
	assert.Len(t, report.Failed(), 2)
	ai.AssertNumberOfCalls(t, "CreateMessage", 7)

	gets, batchGets, _ := st.count()
	assert.Equal(t, 1, batchGets)
	assert.Zero(t, gets, "misses from the bulk lookup are not read again")
}

func TestFiller_GroupRunsConcurrentlyUpToBatchSize(t *testing.T) {
	const batchSize = 3
	ai := &mockAnthropicClient{}
	st := newFakeStore()

	var inFlight, peak atomic.Int32
	var mu sync.Mutex
	arrived := 0
	full := make(chan struct{})

	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}

			// The first group only proceeds once all of its calls are in flight.
			mu.Lock()
			arrived++
			if arrived == batchSize {
				close(full)
			}
			mu.Unlock()
			select {
			case <-full:
			case <-time.After(time.Second):
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
		}).
		Return(textResponse(`{"relevance":"low","reason":"r"}`), nil)

	f := NewFiller(NewClassifier(ai, st), st, WithBatchSize(batchSize), WithBatchDelay(0))

	start := time.Now()
	got := f.ClassifyAll(context.Background(), services(7))

	assert.Len(t, got, 7)
	assert.Equal(t, int32(batchSize), peak.Load())
	assert.Less(t, time.Since(start), time.Second, "first group waited for a call that never overlapped")
	ai.AssertNumberOfCalls(t, "CreateMessage", 7)
}

func TestFiller_AllCachedMakesNoRemoteCalls(t *testing.T) {
	ai := &mockAnthropicClient{}
	all := services(6)
	var seed []model.RelevanceRecord
	for _, s := range all {
		seed = append(seed, model.RelevanceRecord{ServiceID: s.TechnicalID, Relevance: model.RelevanceHigh, Reason: "cached"})
	}
	st := newFakeStore(seed...)

	got := NewFiller(NewClassifier(ai, st), st).ClassifyAll(context.Background(), all)

	assert.Len(t, got, 6)
	for _, rec := range got {
		assert.True(t, rec.Cached)
	}
	ai.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)

	gets, batchGets, upserts := st.count()
	assert.Equal(t, 0, gets)
	assert.Equal(t, 1, batchGets)
	assert.Equal(t, 0, upserts)
}

func TestFiller_MixesCacheAndFreshResults(t *testing.T) {
	ai := &mockAnthropicClient{}
	all := services(3)
	st := newFakeStore(model.RelevanceRecord{ServiceID: "svc-1", Relevance: model.RelevanceLow, Reason: "cached"})
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"relevance":"high","reason":"fresh"}`), nil)

	report := NewFiller(NewClassifier(ai, st), st, WithBatchDelay(0)).Fill(context.Background(), all)

	require.Len(t, report.Records, 3)
	assert.Equal(t, 1, report.Cached)
	assert.True(t, report.Records["svc-1"].Cached)
	assert.Equal(t, model.RelevanceLow, report.Records["svc-1"].Relevance)
	assert.False(t, report.Records["svc-0"].Cached)
	ai.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestFiller_BulkLookupFailureTreatsAllAsMisses(t *testing.T) {
	ai := &mockAnthropicClient{}
	st := newFakeStore()
	st.batchErr = errors.New("db down")
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"relevance":"medium","reason":"r"}`), nil)

	got := NewFiller(NewClassifier(ai, st), st, WithBatchDelay(0)).ClassifyAll(context.Background(), services(3))
	assert.Len(t, got, 3)
	ai.AssertNumberOfCalls(t, "CreateMessage", 3)
}

func TestFiller_DeduplicatesIDs(t *testing.T) {
	ai := &mockAnthropicClient{}
	st := newFakeStore()
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"relevance":"low","reason":"r"}`), nil)

	list := append(services(2), services(2)...)
	list = append(list, model.ServiceSummary{DisplayName: "no id"})

	got := NewFiller(NewClassifier(ai, st), st, WithBatchDelay(0)).ClassifyAll(context.Background(), list)
	assert.Len(t, got, 2)
	ai.AssertNumberOfCalls(t, "CreateMessage", 2)
}

func TestFiller_GroupsAreDelayed(t *testing.T) {
	ai := &mockAnthropicClient{}
	st := newFakeStore()
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"relevance":"low","reason":"r"}`), nil)

	f := NewFiller(NewClassifier(ai, st), st, WithBatchSize(2), WithBatchDelay(30*time.Millisecond))

	start := time.Now()
	got := f.ClassifyAll(context.Background(), services(5))
	elapsed := time.Since(start)

	assert.Len(t, got, 5)
	// Three groups, two pauses.
	assert.GreaterOrEqual(t, elapsed, 60*time.Millisecond)
}

func TestFiller_CancelStopsNewGroups(t *testing.T) {
	ai := &mockAnthropicClient{}
	st := newFakeStore()
	ctx, cancel := context.WithCancel(context.Background())

	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(textResponse(`{"relevance":"low","reason":"r"}`), nil)

	f := NewFiller(NewClassifier(ai, st), st, WithBatchSize(1), WithBatchDelay(time.Hour))
	got := f.ClassifyAll(ctx, services(4))

	assert.Len(t, got, 1)
	ai.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestFiller_EmptyInput(t *testing.T) {
	ai := &mockAnthropicClient{}
	st := newFakeStore()

	got := NewFiller(NewClassifier(ai, st), st).ClassifyAll(context.Background(), nil)
	assert.Empty(t, got)

	_, batchGets, _ := st.count()
	assert.Equal(t, 0, batchGets)
}

func TestFiller_Reclassify(t *testing.T) {
	ai := &mockAnthropicClient{}
	st := newFakeStore(model.RelevanceRecord{ServiceID: "svc-0", Relevance: model.RelevanceLow, Reason: "old"})
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"relevance":"high","reason":"new"}`), nil).Once()

	f := NewFiller(NewClassifier(ai, st), st)
	rec, err := f.Reclassify(context.Background(), services(1)[0])
	require.NoError(t, err)
	assert.Equal(t, model.RelevanceHigh, rec.Relevance)
	assert.Equal(t, "new", st.records["svc-0"].Reason)
}
