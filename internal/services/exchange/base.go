package exchange

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"SRLevels/internal/service/ratelimit"
	xhttp "SRLevels/pkg/http"
	applogger "SRLevels/pkg/logger"
)

// ErrUnsupportedMarket is returned for market types an exchange does not list.
var ErrUnsupportedMarket = errors.New("unsupported market type")

// RetryPolicy bounds retries of transient request failures.
type RetryPolicy struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration
}

// backoff grows exponentially from MinWait and is capped at MaxWait, with a
// little jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.MinWait << (attempt - 1)
	if d <= 0 || d > p.MaxWait {
		d = p.MaxWait
	}
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int63n(int64(d)/10 + 1))
	if d+jitter > p.MaxWait {
		return p.MaxWait
	}
	return d + jitter
}

// RateLimit is a token bucket budget for one exchange.
type RateLimit struct {
	RPS   float64
	Burst int
}

// httpBase centralizes the rate limited, retried GET used by the exchange
// clients.
type httpBase struct {
	name    string
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	limit   RateLimit
	retry   RetryPolicy
	logger  *applogger.Logger
}

func newHTTPBase(name string, timeout time.Duration, limiter *ratelimit.Limiter, limit RateLimit, retry RetryPolicy, l *applogger.Logger) httpBase {
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return httpBase{
		name:    name,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter: limiter,
		limit:   limit,
		retry:   retry,
		logger:  l.With(name),
	}
}

func (b *httpBase) wait(ctx context.Context) error {
	if b.limit.RPS <= 0 {
		return nil
	}
	burst := float64(b.limit.Burst)
	if burst < 1 {
		burst = 1
	}
	return b.limiter.Wait(ctx, b.name, burst, b.limit.RPS)
}

// getJSON issues a GET and decodes the body into dest, retrying transport
// errors, 429 and 5xx responses.
func (b *httpBase) getJSON(ctx context.Context, url string, query map[string][]string, dest interface{}) error {
	var err error
	for attempt := 1; attempt <= b.retry.Attempts; attempt++ {
		if err = b.wait(ctx); err != nil {
			return err
		}
		err = b.client.GetJSON(ctx, url, query, dest)
		if err == nil || !xhttp.IsRetryable(err) || attempt == b.retry.Attempts {
			break
		}

		delay := b.retry.backoff(attempt)
		b.logger.Warn("request failed, retrying",
			applogger.String("url", url),
			applogger.Int("attempt", attempt),
			applogger.Duration("backoff", delay),
			applogger.Error(err))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return fmt.Errorf("%s get %s: %w", b.name, url, err)
	}
	return nil
}
