package gemini

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-go-golems/loomchat/pkg/client"
	"github.com/go-go-golems/loomchat/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// withRetry runs op under the retry policy of s. Server errors and transport failures are
// retried with exponential backoff when enabled. A 429 is returned at once as a
// *client.RateLimitError when the keys can be rotated, and retried like a server error
// otherwise.
func withRetry[T any](ctx context.Context, s *settings.Settings, credential settings.APIKey, op func() (T, error)) (T, error) {
	h := s.APIErrorHandling
	tries := uint(1)
	if h.ExponentialBackoff && h.MaxRetries > 0 {
		tries = uint(h.MaxRetries)
	}

	b := backoff.NewExponentialBackOff()
	if w := h.InitialWait(); w > 0 {
		b.InitialInterval = w
	}
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second

	attempt := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempt++
		res, err := op()
		if err == nil {
			return res, nil
		}
		return res, classifyForRetry(err, s, credential)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("next", next).Msg("Retrying gemini request")
		}),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return res, classify(err, credential)
	}
	return res, nil
}

func classifyForRetry(err error, s *settings.Settings, credential settings.APIKey) error {
	if code, ok := statusCode(err); ok {
		switch {
		case code == http.StatusTooManyRequests:
			if s.CanRotate() {
				return backoff.Permanent(&client.RateLimitError{KeyID: credential.ID, Err: err})
			}
			return err
		case retryableStatus(code):
			return err
		default:
			return backoff.Permanent(err)
		}
	}
	if isTransportError(err) {
		return err
	}
	return backoff.Permanent(err)
}

// classify wraps a final 429 into a *client.RateLimitError.
func classify(err error, credential settings.APIKey) error {
	if err == nil {
		return nil
	}
	var rl *client.RateLimitError
	if errors.As(err, &rl) {
		return err
	}
	if code, ok := statusCode(err); ok && code == http.StatusTooManyRequests {
		return &client.RateLimitError{KeyID: credential.ID, Err: err}
	}
	return err
}

func statusCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	}
	return false
}

func isTransportError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
