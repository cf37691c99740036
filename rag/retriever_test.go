package rag

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/healthgraph/llm"
	"github.com/BaSui01/healthgraph/testutil"
	"github.com/BaSui01/healthgraph/testutil/graphmem"
	"github.com/BaSui01/healthgraph/testutil/mocks"
	"github.com/BaSui01/healthgraph/types"
)

type evidenceRecorder struct {
	nopRecorder
	mu      sync.Mutex
	results []string
}

func (r *evidenceRecorder) RecordEvidence(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func newTestRetriever(g *graphmem.Graph, provider llm.Provider, embedder Embedder, cfg RetrieverConfig, opts ...RetrieverOption) *HealthRetriever {
	extractor := NewEntityExtractor(provider, EntityConfig{Retries: 0}, nil)
	planner := NewPlanner(g, PlannerConfig{}, nil, nil)
	vector := NewVectorRetriever(g, embedder, VectorConfig{IndexName: "health_vector", TopK: 4}, nil)
	return NewHealthRetriever(extractor, planner, vector, cfg, nil, opts...)
}

func seededGraph(t *testing.T) (*graphmem.Graph, *mocks.HashEmbedder) {
	t.Helper()
	g := graphmem.New()
	seedGraph(t, g, 1, "alice",
		[3]string{"Food", "Rice", "2025-03-01"},
		[3]string{"Food", "Apple", "2025-03-02"},
	)
	embedder := mocks.NewHashEmbedder(1024)
	buildIndex(t, g, embedder, "health_vector")
	return g, embedder
}

func TestHealthRetriever_Complete(t *testing.T) {
	g, embedder := seededGraph(t)
	provider := mocks.NewMockProvider().WithResponse(`{"names":["Rice"]}`)
	rec := &evidenceRecorder{}
	h := newTestRetriever(g, provider, embedder, RetrieverConfig{}, WithRecorder(rec))

	ev, err := h.AnswerEvidence(testutil.TestContext(t), "Did I eat rice on 2025-03-01?", 1, nil)
	require.NoError(t, err)

	assert.Equal(t, ShapeCategoryDate, ev.Shape)
	assert.Equal(t, []string{"Rice"}, ev.Entities)
	assert.Equal(t, "alice - HAS_ATE -> Rice", ev.Structured)
	require.NotEmpty(t, ev.Unstructured)
	assert.Equal(t, "Rice", ev.Unstructured[0])
	testutil.AssertLinesContain(t, ev.Unstructured, "Apple")
	assert.False(t, ev.Degraded)
	assert.False(t, ev.Empty())
	assert.True(t, strings.HasPrefix(ev.Text, "Structured Data:\nalice - HAS_ATE -> Rice\n\nUnstructured Data:\n#Document Rice"))
	assert.Equal(t, []string{EvidenceComplete}, rec.results)
}

func TestHealthRetriever_DegradesToVectorOnly(t *testing.T) {
	g, embedder := seededGraph(t)
	provider := mocks.NewMockProvider().WithResponse("I cannot help with that")
	rec := &evidenceRecorder{}
	h := newTestRetriever(g, provider, embedder, RetrieverConfig{}, WithRecorder(rec))

	ev, err := h.AnswerEvidence(testutil.TestContext(t), "What did I eat on 2025-03-01?", 1, nil)
	require.NoError(t, err)

	assert.True(t, ev.Degraded)
	assert.Empty(t, ev.Structured)
	assert.NotEmpty(t, ev.Unstructured)
	assert.NotNil(t, ev.Entities)
	require.Len(t, ev.Warnings, 1)
	assert.Contains(t, ev.Warnings[0], string(types.ErrExtractionFailure))
	assert.Contains(t, ev.Text, StructuredHeader)
	assert.Equal(t, []string{EvidenceDegraded}, rec.results)
}

func TestHealthRetriever_EmptyResult(t *testing.T) {
	g := graphmem.New()
	seedGraph(t, g, 1, "alice", [3]string{"Food", "Rice", "2025-03-01"})
	provider := mocks.NewMockProvider().WithResponse(`{"names":[]}`)
	rec := &evidenceRecorder{}
	h := newTestRetriever(g, provider, mocks.NewHashEmbedder(8), RetrieverConfig{}, WithRecorder(rec))

	ev, err := h.AnswerEvidence(testutil.TestContext(t), "How am I doing?", 1, nil)
	require.NoError(t, err)

	assert.True(t, ev.Empty())
	assert.False(t, ev.Degraded)
	assert.Equal(t, "Structured Data:\n\n\nUnstructured Data:\n", ev.Text)
	assert.Equal(t, []string{EvidenceEmpty}, rec.results)
}

func TestHealthRetriever_BothBranchesFail(t *testing.T) {
	g, embedder := seededGraph(t)
	g.FailAll(types.NewStoreUnavailable("neo4j down", nil))
	provider := mocks.NewMockProvider().WithResponse(`{"names":["Rice"]}`)
	h := newTestRetriever(g, provider, embedder, RetrieverConfig{})

	ev, err := h.AnswerEvidence(testutil.TestContext(t), "rice?", 1, nil)
	require.Error(t, err)
	assert.Nil(t, ev)
	assert.True(t, types.IsCode(err, types.ErrStoreUnavailable))
}

func TestHealthRetriever_TimeoutsAreEmptyEvidence(t *testing.T) {
	g, embedder := seededGraph(t)
	g.FailAll(context.DeadlineExceeded)
	provider := mocks.NewMockProvider().
		WithResponse(`{"names":["Rice"]}`).
		WithDelay(time.Second)
	h := newTestRetriever(g, provider, embedder, RetrieverConfig{BranchTimeout: 20 * time.Millisecond})

	ev, err := h.AnswerEvidence(testutil.TestContext(t), "rice?", 1, nil)
	require.NoError(t, err)
	assert.True(t, ev.Empty())
	assert.True(t, ev.Degraded)
	assert.Len(t, ev.Warnings, 2)
}

func TestHealthRetriever_Rephrase(t *testing.T) {
	g, embedder := seededGraph(t)
	provider := mocks.NewMockProvider().WithCompletionFunc(func(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		content := `{"names":["Rice"]}`
		if req.Messages[0].Content == rephraseInstruction {
			content = "Did I eat rice on 2025-03-01?"
		}
		return &llm.ChatResponse{Choices: []llm.ChatChoice{{Message: types.NewAssistantMessage(content)}}}, nil
	})
	h := newTestRetriever(g, provider, embedder, RetrieverConfig{}, WithRephraser(NewRephraser(provider, "", nil)))

	history := []types.Message{
		types.NewUserMessage("What did I eat on 2025-03-01?"),
		types.NewAssistantMessage("You ate rice."),
	}
	ev, err := h.AnswerEvidence(testutil.TestContext(t), "and on that day?", 1, history)
	require.NoError(t, err)

	assert.Equal(t, "Did I eat rice on 2025-03-01?", ev.Question)
	assert.Equal(t, "2025-03-01", ev.Signals.ExplicitDate)
	assert.Equal(t, "alice - HAS_ATE -> Rice", ev.Structured)

	rephrase := provider.Calls()[0].Request
	assert.Contains(t, rephrase.Messages[1].Content, "assistant: You ate rice.")
	assert.Contains(t, rephrase.Messages[1].Content, "Question: and on that day?")
}

func TestHealthRetriever_RephraseFailureUsesRawQuestion(t *testing.T) {
	g, embedder := seededGraph(t)
	provider := mocks.NewMockProvider().WithResponses(`{"names":["Apple"]}`)
	failing := mocks.NewMockProvider().WithError(types.NewError(types.ErrLLMFailure, "boom"))
	h := newTestRetriever(g, provider, embedder, RetrieverConfig{}, WithRephraser(NewRephraser(failing, "", nil)))

	ev, err := h.AnswerEvidence(testutil.TestContext(t), "did I eat an apple?", 1, []types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "did I eat an apple?", ev.Question)
	assert.Equal(t, "alice - HAS_ATE -> Apple", ev.Structured)
}

func TestHealthRetriever_InvalidQuestion(t *testing.T) {
	h := newTestRetriever(graphmem.New(), mocks.NewMockProvider(), mocks.NewHashEmbedder(8), RetrieverConfig{})

	_, err := h.AnswerEvidence(testutil.TestContext(t), "  ", 1, nil)
	assert.True(t, types.IsCode(err, types.ErrInvalidRequest))
}
