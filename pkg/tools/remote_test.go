package tools

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointer/pkg/api"
)

func TestRemoteExecutor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/tools/call", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var req remoteRequest
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "search_codebase", req.ToolName)
		assert.Equal(t, "auth", req.Params["query"])

		_, _ = w.Write([]byte(`{"success": true, "results": [{"file": "auth.go"}]}`))
	}))
	defer srv.Close()

	r := NewRemoteExecutor(srv.URL+"/", 0)
	out, err := r.Execute(context.Background(), "search_codebase", map[string]any{"query": "auth"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Contains(t, out.Content.(map[string]any), "results")
}

func TestRemoteExecutorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"error": "Unknown tool: nope"}`))
	}))
	defer srv.Close()

	out, err := NewRemoteExecutor(srv.URL, 0).Execute(context.Background(), "nope", nil)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, "Unknown tool: nope", out.Error)

	_, err = NewRemoteExecutor(srv.URL+"?fail=1#", 0).Execute(context.Background(), "nope", nil)
	assert.Error(t, err)
}

func TestChainFallsThroughUnsupported(t *testing.T) {
	var calls []string
	first := api.ToolExecutorFunc(func(ctx context.Context, name string, args map[string]any) (*api.ToolOutcome, error) {
		calls = append(calls, "first")
		if name == "search_codebase" {
			return nil, ErrNotSupported
		}
		return &api.ToolOutcome{Success: true, Content: "local"}, nil
	})
	second := api.ToolExecutorFunc(func(ctx context.Context, name string, args map[string]any) (*api.ToolOutcome, error) {
		calls = append(calls, "second")
		return &api.ToolOutcome{Success: true, Content: "remote"}, nil
	})
	chain := NewChainExecutor(first, nil, second)

	out, err := chain.Execute(context.Background(), "read_file", nil)
	require.NoError(t, err)
	assert.Equal(t, "local", out.Content)

	out, err = chain.Execute(context.Background(), "search_codebase", nil)
	require.NoError(t, err)
	assert.Equal(t, "remote", out.Content)
	assert.Equal(t, []string{"first", "first", "second"}, calls)

	_, err = NewChainExecutor(first).Execute(context.Background(), "search_codebase", nil)
	assert.ErrorIs(t, err, ErrNotSupported)
}
