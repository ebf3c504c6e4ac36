package verifier

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/status-im/status-aopp-go/pkg/aopp"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultRetryCount   = 3
	defaultRetryWait    = 500 * time.Millisecond
	defaultRetryMaxWait = 5 * time.Second
)

var ErrRejected = errors.New("proof rejected by verifier")

type Option func(*Client)

func WithRetryCount(count int) Option {
	return func(c *Client) {
		if count >= 0 {
			c.http.SetRetryCount(count)
		}
	}
}

func WithRetryWait(wait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.SetRetryWaitTime(wait)
		c.http.SetRetryMaxWaitTime(maxWait)
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http.SetTimeout(timeout)
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("verifier")
		}
	}
}

// Client posts proofs to verifier callbacks. Transport failures and 5xx/429 answers are retried
// with backoff; other non-2xx answers are final.
type Client struct {
	logger *zap.Logger
	http   *resty.Client
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		logger: zap.L().Named("verifier"),
		http:   resty.New(),
	}

	c.http.
		SetTimeout(defaultTimeout).
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(defaultRetryWait).
		SetRetryMaxWaitTime(defaultRetryMaxWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(retryable)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func retryable(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
}

// Submit sends the proof as JSON; the signature travels base64 encoded.
func (c *Client) Submit(ctx context.Context, callbackURL string, proof aopp.Proof) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(proof).
		Post(callbackURL)
	if err != nil {
		return errors.Wrap(err, "failed to submit proof")
	}

	c.logger.Debug("verifier answered",
		zap.String("callback", callbackURL),
		zap.Int("status", resp.StatusCode()),
		zap.Int("attempts", resp.Request.Attempt))

	if resp.IsError() {
		return errors.Wrapf(ErrRejected, "status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}
