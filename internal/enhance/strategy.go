package enhance

import (
	"context"
	"errors"
	"time"

	"server/internal/providers/genai"
)

// InputMode selects how the source image travels in a generation request.
type InputMode string

const (
	ModeInline InputMode = "inline"
	ModeFile   InputMode = "file"
)

// Strategy is one (model, input mode) combination. Strategies are tried in
// order until one succeeds; each gets the same bounded retry treatment.
type Strategy struct {
	Model string
	Mode  InputMode
}

func strategiesFor(primary, fallback string) []Strategy {
	return []Strategy{
		{Model: primary, Mode: ModeInline},
		{Model: primary, Mode: ModeFile},
		{Model: fallback, Mode: ModeInline},
		{Model: fallback, Mode: ModeFile},
	}
}

const retryAttempts = 3

// withRetry runs fn up to retryAttempts times, backing off exponentially
// from baseDelay between attempts. Only transient API failures (rate limits,
// server errors) are retried; anything else fails immediately.
func withRetry(ctx context.Context, baseDelay time.Duration, fn func() (*genai.EditResult, error)) (*genai.EditResult, error) {
	delay := baseDelay
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var apiErr *genai.APIError
		if !errors.As(err, &apiErr) || !apiErr.Transient() {
			return nil, err
		}
		if attempt == retryAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, lastErr
}
