package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	// retryAfterDefault applies when a 429 carries no usable Retry-After.
	retryAfterDefault = 2 * time.Second
	// retryAfterMax caps how long a Retry-After header can stall us.
	retryAfterMax = 5 * time.Second
)

// Request describes one provider call.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Body   any // JSON-encoded when non-nil

	// Authenticate attaches a bearer token from the token source.
	Authenticate bool
}

// Response is a successful provider reply.
type Response struct {
	Status int
	Body   []byte
	Header http.Header
}

// Options configures a Fetcher. Zero-value fields fall back to sane
// defaults; Limiter and Tokens may be nil.
type Options struct {
	Client  *http.Client
	Limiter *Limiter
	Tokens  TokenSource
	Policy  RetryPolicy
	Timeout time.Duration // per-attempt deadline
	Logger  zerolog.Logger
}

// Fetcher executes provider HTTP requests with pacing, authentication,
// status classification, and retry. All outbound calls for a provider
// flow through one Fetcher so the rate limit and request count hold.
type Fetcher struct {
	client   *http.Client
	limiter  *Limiter
	tokens   TokenSource
	policy   RetryPolicy
	timeout  time.Duration
	log      zerolog.Logger
	requests atomic.Int64
}

// New builds a Fetcher from opts.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client:  client,
		limiter: opts.Limiter,
		tokens:  opts.Tokens,
		policy:  opts.Policy,
		timeout: timeout,
		log:     opts.Logger,
	}
}

// RequestCount returns the number of HTTP attempts actually sent,
// retries included.
func (f *Fetcher) RequestCount() int64 { return f.requests.Load() }

// Do executes req until it succeeds or is classified as a terminal
// failure. 429 gets a single retry honoring Retry-After; 401 gets a
// single retry after invalidating the token; other 4xx fail
// immediately; 5xx, timeouts, and transport errors retry per the
// policy with exponential backoff.
func (f *Fetcher) Do(ctx context.Context, req Request) (*Response, error) {
	var (
		rateRetried bool
		authRetried bool
		transient   int
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := f.attempt(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var fe *Error
			if errors.As(err, &fe) && fe.Kind == KindAuthFailed {
				return nil, err
			}
			kind := KindUpstream
			if errors.Is(err, context.DeadlineExceeded) {
				kind = KindTimeout
			}
			if transient >= f.policy.MaxRetries {
				return nil, NewError(kind, 0, "request failed after retries", err)
			}
			if werr := f.sleep(ctx, f.policy.Backoff(transient)); werr != nil {
				return nil, werr
			}
			transient++
			continue
		}

		switch {
		case resp.Status >= 200 && resp.Status < 300:
			return resp, nil

		case resp.Status == http.StatusTooManyRequests:
			if rateRetried {
				return nil, NewError(KindRateLimited, resp.Status, "rate limited by provider", nil)
			}
			rateRetried = true
			delay := retryAfter(resp.Header)
			f.log.Warn().Str("url", req.URL).Dur("retry_after", delay).Msg("rate limited, retrying once")
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}

		case resp.Status == http.StatusUnauthorized:
			if authRetried || f.tokens == nil {
				return nil, NewError(KindAuthFailed, resp.Status, "credentials rejected", nil)
			}
			authRetried = true
			f.tokens.Invalidate()
			f.log.Warn().Str("url", req.URL).Msg("token rejected, refreshing and retrying once")

		case resp.Status == http.StatusForbidden:
			return nil, NewError(KindQuotaExceeded, resp.Status, "provider quota exceeded", nil)

		case resp.Status >= 400 && resp.Status < 500:
			return nil, NewError(KindBadRequest, resp.Status, string(truncate(resp.Body, 256)), nil)

		default:
			if transient >= f.policy.MaxRetries {
				return nil, NewError(KindUpstream, resp.Status, "provider error after retries", nil)
			}
			delay := f.policy.Backoff(transient)
			f.log.Warn().Str("url", req.URL).Int("status", resp.Status).Dur("backoff", delay).Msg("provider error, backing off")
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
			transient++
		}
	}
}

func (f *Fetcher) attempt(ctx context.Context, req Request) (*Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	target := req.URL
	if len(req.Query) > 0 {
		target = target + "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	actx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(actx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")

	if req.Authenticate && f.tokens != nil {
		token, err := f.tokens.Token(ctx)
		if err != nil {
			var fe *Error
			if errors.As(err, &fe) {
				return nil, err
			}
			return nil, NewError(KindAuthFailed, 0, "token acquisition failed", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	f.requests.Add(1)

	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{Status: httpResp.StatusCode, Body: raw, Header: httpResp.Header}, nil
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfter parses a Retry-After header in seconds, clamped to
// [0, retryAfterMax], defaulting when absent or unparseable.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return retryAfterDefault
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return retryAfterDefault
	}
	d := time.Duration(secs) * time.Second
	if d > retryAfterMax {
		d = retryAfterMax
	}
	return d
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
