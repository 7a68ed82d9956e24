// Package webhook delivers normalized event batches to the configured
// receiver endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stela-network/stela-indexer/modules/stela/entity"
	"github.com/stela-network/stela-indexer/pkg/httpclient"
	"github.com/stela-network/stela-indexer/pkg/logger"
	"github.com/stela-network/stela-indexer/pkg/logger/slogx"
)

type Config struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
}

const (
	maxAttempts        = 3
	defaultBackoffBase = time.Second
)

// ErrPermanent marks delivery failures that retrying cannot fix. The
// receiver rejected the payload itself, so the batch is surfaced to the
// caller instead of retried.
var ErrPermanent = errors.New("webhook delivery permanently rejected")

type Sender struct {
	client *httpclient.Client
	secret string

	// backoffBase is the first retry delay; each retry doubles it.
	backoffBase time.Duration
}

func NewSender(config Config) (*Sender, error) {
	if config.URL == "" {
		return nil, errors.New("webhook url is required")
	}
	client, err := httpclient.New(config.URL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid webhook url")
	}
	return &Sender{
		client:      client,
		secret:      config.Secret,
		backoffBase: defaultBackoffBase,
	}, nil
}

// Send posts one payload, retrying transient failures up to maxAttempts
// with exponential backoff. A 4xx response other than 429 fails
// immediately; callers must not advance their cursor on any error.
func (s *Sender) Send(ctx context.Context, payload entity.WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to marshal webhook payload")
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := s.backoffBase << (attempt - 1)
			logger.DebugContext(ctx, "retrying webhook delivery",
				slogx.Int("attempt", attempt),
				slogx.Duration("backoff", backoff),
				slogx.Uint64("block_number", payload.BlockNumber),
			)
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "webhook delivery cancelled")
			case <-time.After(backoff):
			}
		}

		lastErr = s.post(ctx, body)
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrPermanent) {
			return lastErr
		}
		logger.WarnContext(ctx, "webhook delivery attempt failed",
			slogx.Error(lastErr),
			slogx.Int("attempt", attempt+1),
			slogx.Uint64("block_number", payload.BlockNumber),
		)
	}
	return errors.Wrapf(lastErr, "webhook delivery failed after %d attempts", maxAttempts)
}

func (s *Sender) post(ctx context.Context, body []byte) error {
	resp, err := s.client.Post(ctx, "", httpclient.RequestOptions{
		Body: body,
		Header: map[string]string{
			"Authorization": "Bearer " + s.secret,
		},
	})
	if err != nil {
		return errors.Wrap(err, "webhook request failed")
	}

	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
		return nil
	case status >= 400 && status < 500 && status != 429:
		return errors.Wrapf(ErrPermanent, "receiver returned status %d", status)
	default:
		return errors.Errorf("receiver returned status %d", status)
	}
}
