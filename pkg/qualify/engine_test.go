package qualify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
	"github.com/otherjamesbrown/mailgraph/pkg/graph"
	"github.com/otherjamesbrown/mailgraph/pkg/llm"
)

type fakeStore struct {
	messageID  string
	qualified  bool
	stage      graph.QualificationStage
	confidence float64
	reason     string
	calls      int
}

func (f *fakeStore) SetQualification(ctx context.Context, messageID string, qualified bool, stage graph.QualificationStage, confidence float64, reason string) error {
	f.calls++
	f.messageID = messageID
	f.qualified = qualified
	f.stage = stage
	f.confidence = confidence
	f.reason = reason
	return nil
}

type fakeProvider struct {
	response stage2Response
	err      error
}

func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, nil
}
func (p *fakeProvider) CompleteStructured(ctx context.Context, req llm.CompletionRequest, target interface{}) error {
	if p.err != nil {
		return p.err
	}
	b, _ := json.Marshal(p.response)
	return json.Unmarshal(b, target)
}
func (p *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

func TestEngine_Stage1Conclusive_NeverCallsLLM(t *testing.T) {
	store := &fakeStore{}
	provider := &fakeProvider{err: assert.AnError}
	eng := NewEngine(store, provider, nil, nil, nil)

	qualified, err := eng.Qualify(context.Background(), "user-1", "msg-1", "Your Invoice is ready", "thanks")
	require.NoError(t, err)
	assert.True(t, qualified)
	assert.Equal(t, 1, store.calls)
	assert.True(t, store.qualified)
	assert.Equal(t, graph.StageSubject, store.stage)
}

func TestEngine_FallsThroughToStage2(t *testing.T) {
	store := &fakeStore{}
	provider := &fakeProvider{response: stage2Response{Qualified: true, Confidence: 0.77, Reason: "mentions a recurring charge"}}
	eng := NewEngine(store, provider, nil, nil, nil)

	qualified, err := eng.Qualify(context.Background(), "user-1", "msg-2", "Hey", "just checking in")
	require.NoError(t, err)
	assert.True(t, qualified)
	assert.Equal(t, graph.StageLLM, store.stage)
	assert.Equal(t, 0.77, store.confidence)
}

func TestEngine_CircuitBreakerOpenReturnsRateLimited(t *testing.T) {
	store := &fakeStore{}
	provider := &fakeProvider{}
	breaker := llm.NewCircuitBreaker(1, 0, 0)
	breaker.RecordFailure()

	eng := NewEngine(store, provider, nil, breaker, nil)
	_, err := eng.Qualify(context.Background(), "user-1", "msg-3", "Hey", "just checking in")

	require.Error(t, err)
	var pe *mgerrors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, mgerrors.ErrRateLimited, pe.Code)
	assert.Equal(t, 0, store.calls)
}

func TestEngine_NilProviderOnStage2Fallthrough(t *testing.T) {
	store := &fakeStore{}
	eng := NewEngine(store, nil, nil, nil, nil)

	_, err := eng.Qualify(context.Background(), "user-1", "msg-4", "Hey", "just checking in")
	require.Error(t, err)
	var pe *mgerrors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, mgerrors.ErrLLMPermanent, pe.Code)
}
