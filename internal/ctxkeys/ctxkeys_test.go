package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	_, ok := RequestID(ctx)
	assert.False(t, ok)

	_, ok = RequestID(WithRequestID(ctx, ""))
	assert.False(t, ok)

	v, ok := RequestID(WithRequestID(ctx, "req-1"))
	assert.True(t, ok)
	assert.Equal(t, "req-1", v)
}

func TestUserAndSessionID(t *testing.T) {
	ctx := WithSessionID(WithUserID(context.Background(), 7), 42)

	uid, ok := UserID(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(7), uid)

	sid, ok := SessionID(ctx)
	assert.True(t, ok)
	assert.Equal(t, int64(42), sid)

	_, ok = UserID(WithUserID(context.Background(), 0))
	assert.False(t, ok)
}

func TestLogFields(t *testing.T) {
	assert.Empty(t, LogFields(context.Background()))

	ctx := WithUserID(WithRequestID(context.Background(), "req-9"), 3)
	fields := LogFields(ctx)
	if assert.Len(t, fields, 2) {
		assert.Equal(t, "request_id", fields[0].Key)
		assert.Equal(t, "user_id", fields[1].Key)
	}
}
