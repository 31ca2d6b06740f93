package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payhooks/core"
)

type JSONRequest struct {
	Method      string
	URL         string
	BearerToken string
	Headers     map[string]string
	Payload     any
	Timeout     time.Duration
	Idempotency string
	Metadata    map[string]any
}

// DoJSON encodes Payload, executes the call and decodes a 2xx body into out.
// Non-2xx responses become external errors carrying the status and a body
// excerpt; out is still decoded when possible so callers can inspect it.
func DoJSON(ctx context.Context, adapter core.TransportAdapter, req JSONRequest, out any) (core.TransportResponse, error) {
	if adapter == nil {
		return core.TransportResponse{}, failure(nil, goerrors.CategoryInternal, "transport: adapter is required", nil)
	}
	headers := map[string]string{}
	for key, value := range req.Headers {
		headers[key] = value
	}
	var body []byte
	if req.Payload != nil {
		encoded, err := json.Marshal(req.Payload)
		if err != nil {
			return core.TransportResponse{}, failure(err, goerrors.CategoryBadInput, "transport: encode json payload", nil)
		}
		body = encoded
		headers["Content-Type"] = "application/json"
	}
	if token := strings.TrimSpace(req.BearerToken); token != "" {
		headers["Authorization"] = "Bearer " + token
	}

	res, err := adapter.Do(ctx, core.TransportRequest{
		Method:      req.Method,
		URL:         req.URL,
		Headers:     headers,
		Body:        body,
		Timeout:     req.Timeout,
		Idempotency: req.Idempotency,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return core.TransportResponse{}, err
	}

	decodeErr := decodeBody(res.Body, out)
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return res, failure(nil, goerrors.CategoryExternal,
			fmt.Sprintf("transport: unexpected status %d", res.StatusCode),
			map[string]any{
				"status_code": res.StatusCode,
				"body":        excerpt(res.Body, 256),
			},
		)
	}
	if decodeErr != nil {
		return res, failure(decodeErr, goerrors.CategoryExternal, "transport: decode json response",
			map[string]any{"status_code": res.StatusCode})
	}
	return res, nil
}

// StatusCodeOf returns the upstream status recorded on a DoJSON error, or 0.
func StatusCodeOf(err error) int {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Metadata == nil {
		return 0
	}
	if code, ok := rich.Metadata["status_code"].(int); ok {
		return code
	}
	return 0
}

func decodeBody(body []byte, out any) error {
	if out == nil || len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func excerpt(body []byte, limit int) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
