// Package httpclient wraps hashicorp/go-retryablehttp with the retry
// policy, backoff formula, and JSON-or-text response contract (§5):
// idempotent-only retries, exponential backoff with jitter honoring
// Retry-After, and a structured error on non-2xx after retries exhaust.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/banasa44/fxsignal/internal/errs"
)

// BodySnippetLimit bounds the response body excerpt carried on HTTPError.
const BodySnippetLimit = 512

// Options configures a Client per §5.
type Options struct {
	Timeout         time.Duration
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	MaxRetryAfter   time.Duration
	Logger          zerolog.Logger
}

// Client is a JSON-or-text HTTP client with the §5 retry policy built in.
type Client struct {
	inner         *retryablehttp.Client
	maxRetryAfter time.Duration
}

// New builds a Client from Options.
func New(opts Options) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.MaxRetries
	rc.RetryWaitMin = opts.BaseDelay
	rc.RetryWaitMax = opts.MaxDelay
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = nil // structured logging goes through our own RequestLogHook below
	rc.CheckRetry = checkRetry
	rc.Backoff = backoffFor(opts.MaxRetryAfter)
	// Hand the last response back once retries are exhausted so Do can
	// build an HTTPError from it instead of a bare "giving up" error.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	logger := opts.Logger
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logger.Debug().Str("url", req.URL.String()).Int("attempt", attempt).Msg("retrying http request")
		}
	}

	return &Client{inner: rc, maxRetryAfter: opts.MaxRetryAfter}
}

// Request describes a single call. Query values are appended as
// repeated params when a key has more than one value.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Headers http.Header
	JSONBody interface{}
}

// Response is the JSON-or-text result. Exactly one of JSON or Text is
// populated, unless the response was 204 or had an empty body, in which
// case both are zero.
type Response struct {
	StatusCode int
	Headers    http.Header
	JSON       interface{}
	Text       string
}

// HTTPError is raised on a non-2xx response surviving all retries (§5).
type HTTPError struct {
	Status      int
	StatusText  string
	URL         string
	BodySnippet string
	Header      http.Header
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.StatusText, e.URL)
}

// HTTPStatus lets callers (e.g. the ingestion pipeline's auth-failure
// check) recover the status code through errors.As without importing
// this package's concrete type.
func (e *HTTPError) HTTPStatus() int { return e.Status }

// Do executes req against ctx, applying the retry policy, and decodes
// the response per its Content-Type.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	fullURL := req.URL
	if len(req.Query) > 0 {
		u, err := url.Parse(req.URL)
		if err != nil {
			return nil, errs.Config("parse request url", err)
		}
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		fullURL = u.String()
	}

	var bodyReader io.Reader
	if req.JSONBody != nil {
		buf, err := json.Marshal(req.JSONBody)
		if err != nil {
			return nil, errs.Mapping("marshal request body", err)
		}
		bodyReader = bytes.NewReader(buf)
	}

	ctx = context.WithValue(ctx, methodContextKey{}, req.Method)

	rreq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, errs.Config("build http request", err)
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			rreq.Header.Add(k, v)
		}
	}
	if req.JSONBody != nil {
		rreq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.inner.Do(rreq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Cancellation(fullURL, ctx.Err())
		}
		return nil, errs.Transport(fullURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Transport(fullURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Protocol(fullURL, &HTTPError{
			Status:      resp.StatusCode,
			StatusText:  http.StatusText(resp.StatusCode),
			URL:         fullURL,
			BodySnippet: snippet(body),
			Header:      resp.Header,
		})
	}

	out := &Response{StatusCode: resp.StatusCode, Headers: resp.Header}
	if resp.StatusCode == http.StatusNoContent || len(body) == 0 {
		return out, nil
	}

	if isJSON(resp.Header.Get("Content-Type")) {
		var v interface{}
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, errs.Mapping(fullURL, err)
		}
		out.JSON = v
		return out, nil
	}

	out.Text = string(body)
	return out, nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func snippet(body []byte) string {
	if len(body) <= BodySnippetLimit {
		return string(body)
	}
	return string(body[:BodySnippetLimit])
}

// methodContextKey stashes the request method on the context passed to
// retryablehttp, since checkRetry's resp argument is nil on a
// network-level failure (connection refused, DNS failure, timeout
// before any response) and resp.Request is unavailable to consult.
type methodContextKey struct{}

// checkRetry retries only idempotent methods on network errors, timeouts,
// 408, 429, and 5xx. Everything else propagates immediately (§5).
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if method, ok := ctx.Value(methodContextKey{}).(string); ok && !isIdempotent(method) {
		return false, nil
	}

	if err != nil {
		return true, nil
	}

	if resp == nil {
		return false, nil
	}

	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return true, nil
	}
	return false, nil
}

func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// backoffFor implements §5's formula: min(maxDelay, base*2^(attempt-1)) *
// U[0.5, 1.0], honoring Retry-After on 429/503 clamped to maxRetryAfter.
func backoffFor(maxRetryAfter time.Duration) retryablehttp.Backoff {
	return func(base, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
		if resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable) {
			if d, ok := retryAfter(resp); ok {
				if d > maxRetryAfter {
					d = maxRetryAfter
				}
				return d
			}
		}

		// retryablehttp passes a 0-based attemptNum for the first retry,
		// which is attempt 1 in the formula above.
		delay := base * (1 << uint(attemptNum))
		if delay > max || delay <= 0 {
			delay = max
		}
		jitter := 0.5 + rand.Float64()*0.5
		return time.Duration(float64(delay) * jitter)
	}
}

func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
