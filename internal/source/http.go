package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"

	"transferScope/internal/errs"
	"transferScope/internal/model"
)

// DefaultAPIURL is the filter API endpoint used when none is configured.
const DefaultAPIURL = "https://api.syve.ai/v1/filter-api/logs"

const errorBodyExcerpt = 256

// httpConfig holds internal settings for the HTTP source.
type httpConfig struct {
	timeout      time.Duration
	retryWaitMin time.Duration
	retryWaitMax time.Duration
	retryMax     int
	headers      map[string]string
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*httpConfig)

// WithTimeout sets the maximum duration of a single request. Default: 60 seconds.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.timeout = d
	}
}

// WithRetryWait sets the minimum and maximum transport-level retry delays.
func WithRetryWait(minWait, maxWait time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.retryWaitMin = minWait
		c.retryWaitMax = maxWait
	}
}

// WithRetryMax sets how many times the transport retries a failed request. Default: 2.
func WithRetryMax(n int) HTTPOption {
	return func(c *httpConfig) {
		c.retryMax = n
	}
}

// WithHeader adds a header to every request.
func WithHeader(name, value string) HTTPOption {
	return func(c *httpConfig) {
		if name != "" && value != "" {
			c.headers[name] = value
		}
	}
}

// HTTPSource fetches logs from a filter API over HTTP.
type HTTPSource struct {
	endpoint *url.URL
	client   *retryablehttp.Client
	headers  map[string]string
}

var _ LogSource = (*HTTPSource)(nil)

// NewHTTPSource builds an HTTPSource for the given endpoint.
func NewHTTPSource(endpoint string, opts ...HTTPOption) (*HTTPSource, error) {
	if endpoint == "" {
		endpoint = DefaultAPIURL
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "can't parse api url")
	}

	cfg := httpConfig{
		timeout:      60 * time.Second,
		retryWaitMin: 1 * time.Second,
		retryWaitMax: 5 * time.Second,
		retryMax:     2,
		headers:      make(map[string]string),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	client.HTTPClient.Timeout = cfg.timeout
	client.RetryWaitMin = cfg.retryWaitMin
	client.RetryWaitMax = cfg.retryWaitMax
	client.RetryMax = cfg.retryMax

	return &HTTPSource{
		endpoint: parsed,
		client:   client,
		headers:  cfg.headers,
	}, nil
}

// FetchLogs requests one page of logs, newest first.
func (s *HTTPSource) FetchLogs(ctx context.Context, req Request) ([]model.RawLog, error) {
	if req.PageSize <= 0 {
		return nil, errors.New("page size must be greater than zero")
	}

	target := *s.endpoint
	target.RawQuery = buildQuery(req).Encode()

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	for name, value := range s.headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", s.endpoint.Redacted())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := errors.Newf("unexpected status %d: %q", resp.StatusCode, excerpt(body))
		if permanentStatus(resp.StatusCode) {
			err = errors.Mark(err, errs.PermanentFailure)
		}
		return nil, err
	}

	var logs []model.RawLog
	if err := json.Unmarshal(body, &logs); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "can't unmarshal logs response %q", excerpt(body)), errs.PermanentFailure)
	}
	return logs, nil
}

// permanentStatus reports client errors that a retry would repeat.
func permanentStatus(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout
}

func buildQuery(req Request) url.Values {
	query := url.Values{}
	query.Set("eq:address", req.Address)
	query.Set("eq:topic_0", req.Topic0)
	query.Set("sort", "desc")
	query.Set("size", strconv.Itoa(req.PageSize))
	if req.UntilBlock != nil {
		query.Set("lte:block_number", strconv.FormatUint(*req.UntilBlock, 10))
	}
	return query
}

func excerpt(body []byte) string {
	if len(body) > errorBodyExcerpt {
		return string(body[:errorBodyExcerpt]) + "..."
	}
	return string(body)
}
