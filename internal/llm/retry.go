package llm

import (
	"context"

	"github.com/fintalk/fintalk/internal/common"
	"github.com/fintalk/fintalk/internal/service"
)

// retryingClient wraps a Client with retry behavior for transient failures.
type retryingClient struct {
	inner Client
	opts  service.RetryOptions
}

// WithRetries decorates a client so rate limits and transient outages are
// retried with backoff before surfacing to the caller.
func WithRetries(inner Client, opts service.RetryOptions) Client {
	return &retryingClient{inner: inner, opts: opts}
}

func (c *retryingClient) Complete(ctx context.Context, prompt string) (string, error) {
	var reply string
	err := common.WithRetry(ctx, func() error {
		var callErr error
		reply, callErr = c.inner.Complete(ctx, prompt)
		return wrapRetryable(callErr)
	}, c.opts)
	return reply, err
}

func (c *retryingClient) CompleteWithImage(ctx context.Context, prompt, imageBase64, mimetype string) (string, error) {
	var reply string
	err := common.WithRetry(ctx, func() error {
		var callErr error
		reply, callErr = c.inner.CompleteWithImage(ctx, prompt, imageBase64, mimetype)
		return wrapRetryable(callErr)
	}, c.opts)
	return reply, err
}

func (c *retryingClient) CompleteWithAudio(ctx context.Context, prompt, audioBase64, format string) (string, error) {
	var reply string
	err := common.WithRetry(ctx, func() error {
		var callErr error
		reply, callErr = c.inner.CompleteWithAudio(ctx, prompt, audioBase64, format)
		return wrapRetryable(callErr)
	}, c.opts)
	return reply, err
}

// wrapRetryable tags errors so WithRetry only retries the transient ones. A
// malformed reply is deterministic and retrying it would just burn quota.
func wrapRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &common.RetryableError{Err: err, Retryable: common.IsRetryable(err)}
}
