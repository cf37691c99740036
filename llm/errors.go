package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BaSui01/healthgraph/types"
)

// MapHTTPError 按上游 HTTP 状态码构造 LLM_FAILURE 错误。
// 429 与 5xx 视为可重试，其余 4xx 不可重试。
func MapHTTPError(provider string, status int, cause error) *types.Error {
	retryable := status == http.StatusTooManyRequests || status >= 500 || status == 0
	return types.NewError(types.ErrLLMFailure, fmt.Sprintf("%s request failed (status %d)", provider, status)).
		WithCause(cause).
		WithRetryable(retryable).
		WithHTTPStatus(http.StatusBadGateway).
		WithProvider(provider)
}

// WrapError 把 SDK 之外的错误（超时、取消、网络）归一化为 LLM_FAILURE
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var typed *types.Error
	if errors.As(err, &typed) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, provider+" request timed out").
			WithCause(err).
			WithRetryable(true).
			WithHTTPStatus(http.StatusGatewayTimeout).
			WithProvider(provider)
	}
	return MapHTTPError(provider, 0, err)
}
