// Shared HTTP plumbing for the platform clients
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"

	"github.com/desertthunder/chatmigrate/internal/shared"
)

// ErrTagTransport tags errors raised before a response was received.
var ErrTagTransport = goerr.NewTag("transport")

// APIService performs rate limited JSON requests against a single base URL.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	headers    http.Header
	authorize  func(*http.Request)
	logger     *log.Logger
}

// APIOptions configures an [APIService].
type APIOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	RateLimit  float64 // requests per second, non-positive disables limiting
	Headers    http.Header
	Authorize  func(*http.Request)
	Logger     *log.Logger
}

// NewAPIService creates an [APIService]. A nil client falls back to [http.DefaultClient].
func NewAPIService(opts APIOptions) *APIService {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}

	return &APIService{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: client,
		limiter:    rate.NewLimiter(limit, 1),
		headers:    opts.Headers,
		authorize:  opts.Authorize,
		logger:     logger,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *APIResponse) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return goerr.Wrap(err, "failed to decode response", goerr.V("status", r.StatusCode))
	}
	return nil
}

// resolve joins path onto the base URL unless path is already absolute (pagination links).
func (a *APIService) resolve(path string, query url.Values) string {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = a.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query.Encode()
	}
	return target
}

// Do sends a request with an optional JSON body and returns the raw response.
//
// Errors are only returned when no response was received; they carry the [ErrTagTransport] tag.
func (a *APIService) Do(ctx context.Context, method, path string, query url.Values, body any) (*APIResponse, error) {
	target := a.resolve(path, query)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to encode request body", goerr.V("url", target))
		}
		reader = bytes.NewReader(data)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, goerr.Wrap(err, "rate limiter wait failed", goerr.T(ErrTagTransport))
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request", goerr.V("method", method), goerr.V("url", target))
	}

	for k, vs := range a.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf8")
	}
	req.Header.Set("Accept", "application/json")
	if a.authorize != nil {
		a.authorize(req)
	}

	a.logger.Debug("api request", "method", method, "url", target)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "request failed", goerr.V("method", method), goerr.V("url", target), goerr.T(ErrTagTransport))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read response", goerr.V("url", target), goerr.T(ErrTagTransport))
	}

	a.logger.Debug("api response", "method", method, "url", target, "status", resp.StatusCode)
	return &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: data}, nil
}

// Get performs a GET request.
func (a *APIService) Get(ctx context.Context, path string, query url.Values) (*APIResponse, error) {
	return a.Do(ctx, http.MethodGet, path, query, nil)
}

// Post performs a POST request with a JSON body.
func (a *APIService) Post(ctx context.Context, path string, body any) (*APIResponse, error) {
	return a.Do(ctx, http.MethodPost, path, nil, body)
}

// Put performs a PUT request with a JSON body.
func (a *APIService) Put(ctx context.Context, path string, body any) (*APIResponse, error) {
	return a.Do(ctx, http.MethodPut, path, nil, body)
}

// transportStatus maps a failure to reach the platform to a status code.
// Context cancellation is reported as 499, anything else as 503.
func transportStatus(err error) int {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 499
	}
	return http.StatusServiceUnavailable
}
