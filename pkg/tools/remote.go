package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"pointer/pkg/api"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RemoteExecutor forwards calls to a tool backend over HTTP:
// POST {baseURL}/api/tools/call with {"tool_name", "params"}.
type RemoteExecutor struct {
	baseURL string
	client  *http.Client
}

type remoteRequest struct {
	ToolName string         `json:"tool_name"`
	Params   map[string]any `json:"params"`
}

func NewRemoteExecutor(baseURL string, timeout time.Duration) *RemoteExecutor {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteExecutor{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *RemoteExecutor) Execute(ctx context.Context, name string, args map[string]any) (*api.ToolOutcome, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(remoteRequest{ToolName: name, Params: args})
	if err != nil {
		return nil, fmt.Errorf("encode tool request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/api/tools/call", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool backend request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tool backend response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Not an object: pass the body through as the result.
		return &api.ToolOutcome{Success: true, Content: string(raw)}, nil
	}
	return outcomeFromMap(payload), nil
}

// outcomeFromMap splits a backend response into success, error and the
// remaining fields.
func outcomeFromMap(payload map[string]any) *api.ToolOutcome {
	out := &api.ToolOutcome{Success: true}
	if v, ok := payload["success"].(bool); ok {
		out.Success = v
	}
	if v, ok := payload["error"]; ok && v != nil {
		out.Error = fmt.Sprint(v)
		if _, explicit := payload["success"]; !explicit {
			out.Success = false
		}
	}

	rest := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == "success" || k == "error" {
			continue
		}
		rest[k] = v
	}
	if len(rest) > 0 {
		out.Content = rest
	}
	return out
}
