package tool

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/blockflow/blockflow/internal/ctxlog"
)

// HTTPToolID is the tool id the api handler and generic http blocks dispatch to.
const HTTPToolID = "http.request"

// responseErrorLimit caps how much response body is copied into an error
// message for a non-2xx response.
const responseErrorLimit = 512

// RegisterHTTP wires the http.request tool into the registry using the
// given resty client. Non-2xx responses become failed Results with a
// transformed error message rather than invocation errors.
func RegisterHTTP(r *Registry, client *resty.Client) {
	r.Register(HTTPToolID, func(ctx context.Context, params map[string]any) (Result, error) {
		return runHTTP(ctx, client, params)
	})
}

// NewHTTPClient builds the resty client used by the http.request tool.
func NewHTTPClient(timeout time.Duration) *resty.Client {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return client
}

func runHTTP(ctx context.Context, client *resty.Client, params map[string]any) (Result, error) {
	logger := ctxlog.FromContext(ctx).With("tool", HTTPToolID)

	url, _ := params["url"].(string)
	if url == "" {
		return Failure("http.request requires a url"), nil
	}
	method, _ := params["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	req := client.R().SetContext(ctx)
	if headers, ok := params["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.SetHeader(k, s)
			}
		}
	}
	if body, ok := params["body"]; ok && body != nil {
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(body)
	}

	logger.Debug("Dispatching HTTP request.", "method", method, "url", url)
	resp, err := req.Execute(method, url)
	if err != nil {
		return Result{}, err
	}

	raw := resp.String()
	if !resp.IsSuccess() {
		msg := strings.TrimSpace(raw)
		if len(msg) > responseErrorLimit {
			msg = msg[:responseErrorLimit]
		}
		logger.Warn("HTTP request failed.", "status", resp.Status())
		return Result{
			Success: false,
			Output: map[string]any{
				"status": resp.StatusCode(),
				"body":   raw,
			},
			Error: strings.TrimSpace(resp.Status() + ": " + msg),
		}, nil
	}

	output := map[string]any{
		"status":  resp.StatusCode(),
		"body":    raw,
		"headers": flattenHeaders(resp.Header()),
	}
	// Expose parsed JSON when the body is JSON, so downstream references can
	// descend into fields instead of re-parsing strings.
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		output["data"] = parsed
	}

	logger.Debug("HTTP request succeeded.", "status", resp.StatusCode())
	return Result{Success: true, Output: output}, nil
}

func flattenHeaders(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
