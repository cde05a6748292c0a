package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	maxAttempts    = 3
	attemptTimeout = 10 * time.Second
	backoffStep    = time.Second
)

// Deliverer posts envelopes to the webhook consumer with bounded retries:
// up to 3 attempts, waiting attempt*1s between failures, 10s per request.
type Deliverer struct {
	client *resty.Client
	sleep  func(time.Duration)
}

func NewDeliverer() *Deliverer {
	return &Deliverer{
		client: resty.New().SetTimeout(attemptTimeout),
		sleep:  time.Sleep,
	}
}

// Deliver posts the envelope, returning the last error once the attempt
// budget is exhausted.
func (d *Deliverer) Deliver(ctx context.Context, url, token string, env *Envelope) error {
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := d.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetAuthToken(token).
			SetBody(env).
			Post(url)

		if err == nil && resp.IsSuccess() {
			log.Debug().
				Str("event", env.Event).
				Str("chatId", env.Message.ChatID).
				Int("status", resp.StatusCode()).
				Int("attempt", attempt).
				Msg("Webhook delivered")
			return nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode())
		}

		if attempt < maxAttempts {
			log.Warn().
				Err(lastErr).
				Str("event", env.Event).
				Int("attempt", attempt).
				Msg("Webhook attempt failed, retrying")
			d.sleep(time.Duration(attempt) * backoffStep)
		}
	}

	return fmt.Errorf("webhook delivery failed after %d attempts: %w", maxAttempts, lastErr)
}
