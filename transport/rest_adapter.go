package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payhooks/core"
)

const KindREST = "rest"

const (
	defaultClientTimeout     = 30 * time.Second
	defaultResponseBodyLimit = int64(1 << 20)
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter is the outbound HTTP client shared by the Paystack, DataMart,
// Formspree and Hubtel integrations. A request timeout narrows the client's.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	DefaultTimeout       time.Duration
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{"Accept": "application/json"},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, failure(nil, goerrors.CategoryInternal,
			"transport: rest adapter requires an http client", map[string]any{"adapter": KindREST})
	}
	if ctx == nil {
		ctx = context.Background()
	}

	target, err := requestURL(req)
	if err != nil {
		return core.TransportResponse{}, failure(err, goerrors.CategoryBadInput,
			"transport: invalid request url", callMetadata(req, nil))
	}

	if timeout := a.timeoutFor(req); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := a.newHTTPRequest(ctx, req, target)
	if err != nil {
		return core.TransportResponse{}, failure(err, goerrors.CategoryBadInput,
			"transport: create http request", callMetadata(req, target))
	}

	startedAt := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		meta := callMetadata(req, target)
		meta["timed_out"] = ctx.Err() != nil
		return core.TransportResponse{}, failure(err, goerrors.CategoryExternal,
			"transport: execute http request", meta)
	}
	defer httpRes.Body.Close()

	limit := a.bodyLimit(req)
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, limit+1))
	if err != nil {
		meta := callMetadata(req, target)
		meta["status_code"] = httpRes.StatusCode
		return core.TransportResponse{}, failure(err, goerrors.CategoryExternal,
			"transport: read response body", meta)
	}
	if int64(len(body)) > limit {
		meta := callMetadata(req, target)
		meta["status_code"] = httpRes.StatusCode
		meta["response_limit_bytes"] = limit
		return core.TransportResponse{}, failure(nil, goerrors.CategoryExternal,
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit), meta)
	}

	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Metadata: map[string]any{
			"kind":        KindREST,
			"duration_ms": time.Since(startedAt).Milliseconds(),
		},
	}, nil
}

func (a *RESTAdapter) newHTTPRequest(ctx context.Context, req core.TransportRequest, target *url.URL) (*http.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	setHeaders(httpReq.Header, a.DefaultHeaders)
	setHeaders(httpReq.Header, req.Headers)
	if key := strings.TrimSpace(req.Idempotency); key != "" {
		httpReq.Header.Set("Idempotency-Key", key)
	}
	return httpReq, nil
}

func (a *RESTAdapter) timeoutFor(req core.TransportRequest) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return a.DefaultTimeout
}

func (a *RESTAdapter) bodyLimit(req core.TransportRequest) int64 {
	switch {
	case req.MaxResponseBodyBytes > 0:
		return req.MaxResponseBodyBytes
	case a.MaxResponseBodyBytes > 0:
		return a.MaxResponseBodyBytes
	default:
		return defaultResponseBodyLimit
	}
}

func requestURL(req core.TransportRequest) (*url.URL, error) {
	target, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil {
		return nil, err
	}
	if target.Host == "" {
		return nil, fmt.Errorf("missing host in %q", req.URL)
	}
	if len(req.Query) > 0 {
		query := target.Query()
		for key, value := range req.Query {
			if key = strings.TrimSpace(key); key != "" {
				query.Set(key, strings.TrimSpace(value))
			}
		}
		target.RawQuery = query.Encode()
	}
	return target, nil
}

// callMetadata tags an error with the request's own metadata (provider,
// action, reference) plus the redacted target. Query values are dropped
// because they can carry phone numbers.
func callMetadata(req core.TransportRequest, target *url.URL) map[string]any {
	meta := map[string]any{"adapter": KindREST}
	maps.Copy(meta, req.Metadata)
	if target != nil {
		safe := *target
		safe.RawQuery = ""
		meta["url"] = safe.Redacted()
	}
	return meta
}

func setHeaders(dst http.Header, src map[string]string) {
	for key, value := range src {
		if key = strings.TrimSpace(key); key != "" {
			dst.Set(key, strings.TrimSpace(value))
		}
	}
}

func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
