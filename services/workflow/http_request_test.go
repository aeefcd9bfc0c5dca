package workflow

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodeflow/api/services/jobs"
)

type capturedRequest struct {
	method      string
	path        string
	body        string
	contentType string
}

func captureServer(t *testing.T, status int, contentType, response string) (*httptest.Server, *atomic.Int32, chan capturedRequest) {
	t.Helper()
	var hits atomic.Int32
	seen := make(chan capturedRequest, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := io.ReadAll(r.Body)
		seen <- capturedRequest{method: r.Method, path: r.URL.Path, body: string(body), contentType: r.Header.Get("Content-Type")}
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits, seen
}

func runHTTPNode(t *testing.T, client HTTPDoer, data map[string]any, wctx *Context) (*Context, *recordingPublisher, error) {
	t.Helper()
	pub := &recordingPublisher{}
	out, err := NewHTTPRequestExecutor(client).Execute(context.Background(), Request{
		Node:      Node{ID: "http-1", Type: NodeTypeHTTPRequest, Data: data},
		Context:   wctx,
		Steps:     jobs.NewMemoSteps(),
		Publisher: pub,
	})
	return out, pub, err
}

func TestHTTPRequest_GetResolvesEndpoint(t *testing.T) {
	srv, _, seen := captureServer(t, http.StatusOK, "application/json; charset=utf-8", `{"title":"buy milk"}`)

	in := NewContext(map[string]any{"id": 7})
	out, pub, err := runHTTPNode(t, srv.Client(), map[string]any{
		"endpoint":     srv.URL + "/todos/{{id}}",
		"method":       "get",
		"variableName": "todo",
	}, in)
	require.NoError(t, err)

	got := <-seen
	assert.Equal(t, "GET", got.method)
	assert.Equal(t, "/todos/7", got.path)
	assert.Empty(t, got.body)
	assert.Empty(t, got.contentType)

	id, _ := out.Get("id")
	assert.Equal(t, 7, id)

	todo, ok := out.Get("todo")
	require.True(t, ok)
	m := todo.(map[string]any)
	assert.Equal(t, map[string]any{"title": "buy milk"}, m["data"])
	resp := m["httpResponse"].(map[string]any)
	assert.Equal(t, 200, resp["status"])
	assert.Equal(t, "OK", resp["statusText"])

	writer, _ := out.WrittenBy("todo")
	assert.Equal(t, "http-1", writer)
	assert.Equal(t, []string{"http-request-execution/http-1:loading", "http-request-execution/http-1:success"}, pub.statuses())

	_, ok = in.Get("todo")
	assert.False(t, ok, "input context is not mutated")
}

func TestHTTPRequest_PostSendsResolvedBody(t *testing.T) {
	srv, _, seen := captureServer(t, http.StatusCreated, "application/json", `{"id":101}`)

	out, _, err := runHTTPNode(t, srv.Client(), map[string]any{
		"endpoint":     srv.URL + "/posts",
		"method":       "POST",
		"body":         `{"title": "{{title}}", "user": {{json user}} }`,
		"variableName": "created",
	}, NewContext(map[string]any{"title": "hello", "user": map[string]any{"id": 1}}))
	require.NoError(t, err)

	got := <-seen
	assert.Equal(t, "application/json", got.contentType)
	assert.JSONEq(t, `{"title":"hello","user":{"id":1}}`, got.body)

	created, _ := out.Get("created")
	assert.Equal(t, 201, created.(map[string]any)["httpResponse"].(map[string]any)["status"])
}

func TestHTTPRequest_EmptyBodyDefaultsToObject(t *testing.T) {
	srv, _, seen := captureServer(t, http.StatusOK, "application/json", `{}`)

	_, _, err := runHTTPNode(t, srv.Client(), map[string]any{
		"endpoint":     srv.URL,
		"method":       "PUT",
		"variableName": "v",
	}, NewContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "{}", (<-seen).body)
}

func TestHTTPRequest_TextResponseKeptAsString(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusOK, "text/plain", "pong")

	out, _, err := runHTTPNode(t, srv.Client(), map[string]any{
		"endpoint":     srv.URL,
		"method":       "GET",
		"variableName": "v",
	}, NewContext(nil))
	require.NoError(t, err)

	v, _ := out.Get("v")
	assert.Equal(t, "pong", v.(map[string]any)["data"])
}

func TestHTTPRequest_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"missing endpoint", map[string]any{"method": "GET", "variableName": "v"}, "no endpoint configured"},
		{"blank endpoint", map[string]any{"endpoint": "  ", "method": "GET", "variableName": "v"}, "no endpoint configured"},
		{"missing variable", map[string]any{"endpoint": "http://x", "method": "GET"}, "variable name not configured"},
		{"missing method", map[string]any{"endpoint": "http://x", "variableName": "v"}, "method not configured"},
		{"endpoint checked first", map[string]any{}, "no endpoint configured"},
		{"unsupported method", map[string]any{"endpoint": "http://x", "method": "TRACE", "variableName": "v"}, "unsupported method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, hits, _ := captureServer(t, http.StatusOK, "", "")

			_, pub, err := runHTTPNode(t, srv.Client(), tt.data, NewContext(nil))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			kind, _ := KindOf(err)
			assert.Equal(t, KindConfiguration, kind)
			assert.True(t, jobs.IsNonRetriable(err))
			assert.Zero(t, hits.Load())
			assert.Equal(t, []string{"http-request-execution/http-1:loading", "http-request-execution/http-1:error"}, pub.statuses())
		})
	}
}

func TestHTTPRequest_InvalidBodyIsNotSent(t *testing.T) {
	srv, hits, _ := captureServer(t, http.StatusOK, "", "")

	_, _, err := runHTTPNode(t, srv.Client(), map[string]any{
		"endpoint":     srv.URL,
		"method":       "POST",
		"body":         "not json {{name}}",
		"variableName": "v",
	}, NewContext(map[string]any{"name": "x"}))
	require.Error(t, err)

	kind, _ := KindOf(err)
	assert.Equal(t, KindBodyValidation, kind)
	assert.True(t, jobs.IsNonRetriable(err))
	assert.Zero(t, hits.Load())
}

func TestHTTPRequest_TemplateError(t *testing.T) {
	srv, hits, _ := captureServer(t, http.StatusOK, "", "")

	_, _, err := runHTTPNode(t, srv.Client(), map[string]any{
		"endpoint":     srv.URL + "/{{#if}}",
		"method":       "GET",
		"variableName": "v",
	}, NewContext(nil))
	require.Error(t, err)

	kind, _ := KindOf(err)
	assert.Equal(t, KindTemplate, kind)
	assert.Zero(t, hits.Load())
}

func TestHTTPRequest_Non2xxIsRetriable(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusServiceUnavailable, "", "down")

	_, pub, err := runHTTPNode(t, srv.Client(), map[string]any{
		"endpoint":     srv.URL,
		"method":       "DELETE",
		"variableName": "v",
	}, NewContext(nil))
	require.Error(t, err)

	kind, _ := KindOf(err)
	assert.Equal(t, KindTransient, kind)
	assert.False(t, jobs.IsNonRetriable(err))
	assert.Contains(t, err.Error(), "503")
	assert.Equal(t, "http-request-execution/http-1:error", pub.statuses()[1])
}

func TestHTTPRequest_UnreachableHostIsRetriable(t *testing.T) {
	srv, _, _ := captureServer(t, http.StatusOK, "", "")
	url := srv.URL
	srv.Close()

	_, _, err := runHTTPNode(t, http.DefaultClient, map[string]any{
		"endpoint":     url,
		"method":       "GET",
		"variableName": "v",
	}, NewContext(nil))
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, KindTransient, kind)
}

func TestHTTPRequest_BodyEndingInTripleBraceIsTemplateError(t *testing.T) {
	srv, hits, _ := captureServer(t, http.StatusOK, "", "")

	_, pub, err := runHTTPNode(t, srv.Client(), map[string]any{
		"endpoint":     srv.URL,
		"method":       "POST",
		"body":         `{"x": {{x}}}`,
		"variableName": "v",
	}, NewContext(map[string]any{"x": 1}))
	require.Error(t, err)

	kind, _ := KindOf(err)
	assert.Equal(t, KindTemplate, kind)
	assert.True(t, jobs.IsNonRetriable(err))
	assert.Zero(t, hits.Load())
	assert.Equal(t, "http-request-execution/http-1:error", pub.statuses()[1])
}
