package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrLLMFailure, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	assert.Equal(t, ErrLLMFailure, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Contains(t, err.Error(), "LLM_FAILURE")
	assert.Contains(t, err.Error(), "root")
}

func TestError_TaxonomyConstructors(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")

	extraction := NewExtractionFailure("bad payload", cause)
	assert.Equal(t, ErrExtractionFailure, extraction.Code)
	assert.True(t, extraction.Retryable)
	assert.Equal(t, http.StatusBadGateway, extraction.HTTPStatus)

	store := NewStoreUnavailable("neo4j down", cause)
	assert.Equal(t, ErrStoreUnavailable, store.Code)
	assert.True(t, store.Retryable)
	assert.Equal(t, http.StatusServiceUnavailable, store.HTTPStatus)

	ingest := NewIngestValidation("missing date column")
	assert.Equal(t, ErrIngestValidation, ingest.Code)
	assert.False(t, ingest.Retryable)
	assert.Nil(t, ingest.Cause)
}

func TestError_WrappedInspection(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("query food: %w", NewStoreUnavailable("down", nil))

	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsCode(wrapped, ErrStoreUnavailable))
	assert.False(t, IsCode(wrapped, ErrExtractionFailure))
	assert.False(t, IsCode(nil, ErrStoreUnavailable))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestMeasurementKind_Metadata(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind    MeasurementKind
		rel     string
		dataset string
	}{
		{KindFood, "HAS_ATE", "food_intake"},
		{KindWater, "HAS_DRUNK", "water_intake"},
		{KindSleep, "HAS_SLEPT", "sleep_hours"},
		{KindStep, "HAS_WALKED", "step_count"},
	}
	for _, tc := range cases {
		assert.True(t, tc.kind.Valid())
		assert.Equal(t, tc.rel, tc.kind.Relationship())
		assert.Equal(t, tc.dataset, tc.kind.DatasetKey())

		k, ok := KindForDataset(tc.dataset)
		require.True(t, ok)
		assert.Equal(t, tc.kind, k)
	}

	assert.Equal(t, []MeasurementKind{KindFood, KindWater, KindSleep, KindStep}, AllKinds)
	assert.False(t, MeasurementKind("Heart").Valid())

	_, ok := KindForDataset("heart_rate")
	assert.False(t, ok)

	k, ok := ParseKind(" sleep ")
	require.True(t, ok)
	assert.Equal(t, KindSleep, k)
}

func TestMeasurementKind_KeywordsAreCopies(t *testing.T) {
	t.Parallel()

	kw := KindFood.Keywords()
	kw[0] = "mutated"
	assert.Equal(t, []string{"food", "eat"}, KindFood.Keywords())
}

func TestRole_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("tool").Valid())

	m := NewUserMessage("hi")
	assert.Equal(t, RoleUser, m.Role)
	assert.False(t, m.Timestamp.IsZero())
}
