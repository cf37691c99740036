package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/healthgraph/testutil"
	"github.com/BaSui01/healthgraph/testutil/mocks"
	"github.com/BaSui01/healthgraph/types"
)

func TestRephraser_NoHistoryKeepsQuestion(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("should not be used")
	r := NewRephraser(provider, "", nil)

	got, err := r.Rephrase(testutil.TestContext(t), "How much did I sleep?", nil)
	require.NoError(t, err)
	assert.Equal(t, "How much did I sleep?", got)
	assert.Empty(t, provider.Calls())
}

func TestRephraser_Standalone(t *testing.T) {
	provider := mocks.NewMockProvider().WithResponse("  How many steps did I take on 2025-03-02?  ")
	r := NewRephraser(provider, "gpt-4o-mini", nil)

	history := []types.Message{
		types.NewSystemMessage("ignored"),
		types.NewUserMessage("How many steps on 2025-03-01?"),
		types.NewAssistantMessage(""),
		types.NewAssistantMessage("8500 steps."),
	}
	got, err := r.Rephrase(testutil.TestContext(t), "and the day after?", history)
	require.NoError(t, err)
	assert.Equal(t, "How many steps did I take on 2025-03-02?", got)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	req := calls[0].Request
	assert.Equal(t, "gpt-4o-mini", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, rephraseInstruction, req.Messages[0].Content)
	assert.Equal(t,
		"Chat History: \nuser: How many steps on 2025-03-01?\nassistant: 8500 steps.\nQuestion: and the day after?\nStandalone question:",
		req.Messages[1].Content)
}

func TestRephraser_EmptyReplyFallsBack(t *testing.T) {
	r := NewRephraser(mocks.NewMockProvider().WithResponse("   "), "", nil)

	got, err := r.Rephrase(testutil.TestContext(t), "and then?", []types.Message{types.NewUserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "and then?", got)
}

func TestRephraser_ProviderError(t *testing.T) {
	r := NewRephraser(mocks.NewMockProvider().WithError(types.NewError(types.ErrLLMFailure, "boom")), "", nil)

	_, err := r.Rephrase(testutil.TestContext(t), "and then?", []types.Message{types.NewUserMessage("hi")})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrLLMFailure))
}
