package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nodeflow/api/services/jobs"
	"nodeflow/api/services/realtime"
)

// HTTPDoer sends HTTP requests. *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns the client used by HTTP request nodes.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// httpRequestConfig is the editor-provided data of an HTTP_REQUEST node.
type httpRequestConfig struct {
	Endpoint     string
	Method       string
	VariableName string
	Body         string
}

func parseHTTPRequestConfig(data map[string]any) httpRequestConfig {
	str := func(key string) string {
		s, _ := data[key].(string)
		return strings.TrimSpace(s)
	}
	return httpRequestConfig{
		Endpoint:     str("endpoint"),
		Method:       strings.ToUpper(str("method")),
		VariableName: str("variableName"),
		Body:         str("body"),
	}
}

var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodPatch:  true,
}

func methodHasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// HTTPRequestExecutor handles the HTTP_REQUEST node type. It calls the
// configured endpoint and stores the response under variableName.
type HTTPRequestExecutor struct {
	client HTTPDoer
}

// NewHTTPRequestExecutor creates an executor that sends requests with client.
func NewHTTPRequestExecutor(client HTTPDoer) *HTTPRequestExecutor {
	return &HTTPRequestExecutor{client: client}
}

func (e *HTTPRequestExecutor) Execute(ctx context.Context, req Request) (*Context, error) {
	channel := Channel(NodeTypeHTTPRequest)
	nodeID := req.Node.ID
	realtime.Notify(ctx, req.Publisher, channel, nodeID, realtime.StatusLoading)

	fail := func(err error) (*Context, error) {
		realtime.Notify(ctx, req.Publisher, channel, nodeID, realtime.StatusError)
		return nil, err
	}

	cfg := parseHTTPRequestConfig(req.Node.Data)
	if cfg.Endpoint == "" {
		return fail(configError(nodeID, "no endpoint configured"))
	}
	if cfg.VariableName == "" {
		return fail(configError(nodeID, "variable name not configured"))
	}
	if cfg.Method == "" {
		return fail(configError(nodeID, "method not configured"))
	}
	if !supportedMethods[cfg.Method] {
		return fail(configError(nodeID, fmt.Sprintf("unsupported method %q", cfg.Method)))
	}

	out, err := jobs.RunStep(ctx, req.Steps, "http-request:"+nodeID, func(ctx context.Context) (*Context, error) {
		return e.call(ctx, nodeID, cfg, req.Context)
	})
	if err != nil {
		return fail(err)
	}

	realtime.Notify(ctx, req.Publisher, channel, nodeID, realtime.StatusSuccess)
	return out, nil
}

func (e *HTTPRequestExecutor) call(ctx context.Context, nodeID string, cfg httpRequestConfig, wctx *Context) (*Context, error) {
	vars := wctx.Map()

	endpoint, err := resolveTemplate(cfg.Endpoint, vars)
	if err != nil {
		return nil, templateError(nodeID, "endpoint", err)
	}

	var body io.Reader
	if methodHasBody(cfg.Method) {
		source := cfg.Body
		if source == "" {
			source = "{}"
		}
		resolved, err := resolveTemplate(source, vars)
		if err != nil {
			return nil, templateError(nodeID, "body", err)
		}
		var probe any
		if err := json.Unmarshal([]byte(resolved), &probe); err != nil {
			return nil, bodyError(nodeID, err)
		}
		body = strings.NewReader(resolved)
	}

	httpReq, err := http.NewRequestWithContext(ctx, cfg.Method, endpoint, body)
	if err != nil {
		return nil, configError(nodeID, fmt.Sprintf("invalid request: %v", err))
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("Sending HTTP request", "nodeId", nodeID, "method", cfg.Method, "endpoint", endpoint)
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, transientError(nodeID, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transientError(nodeID, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, transientError(nodeID, fmt.Errorf("request returned status %d", resp.StatusCode))
	}

	var data any = string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if err := json.Unmarshal(bytes.TrimSpace(raw), &parsed); err != nil {
			return nil, transientError(nodeID, fmt.Errorf("decode JSON response: %w", err))
		}
		data = parsed
	}

	result := map[string]any{
		"data": data,
		"httpResponse": map[string]any{
			"status":     resp.StatusCode,
			"statusText": statusText(resp),
			"data":       data,
		},
	}
	return wctx.With(cfg.VariableName, result, nodeID), nil
}

// statusText strips the numeric code from resp.Status ("200 OK" -> "OK").
func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
