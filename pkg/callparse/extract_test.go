package callparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointer/pkg/llm"
	"pointer/pkg/tools"
)

func newExtractor() *Extractor {
	return NewExtractor(tools.DefaultCatalog())
}

func TestExtractKeepsValidID(t *testing.T) {
	text := `function_call: {"id":"abc123xyz","name":"read_file","arguments":{"file_path":"a.py"}}`

	calls, invalid := newExtractor().Extract(text)
	assert.Empty(t, invalid)
	require.Len(t, calls, 1)
	assert.Equal(t, "abc123xyz", calls[0].ID)
	assert.Equal(t, "read_file", calls[0].Name)
}

func TestExtractAssignsStableIDs(t *testing.T) {
	text := `first function_call: {"id":"BAD","name":"read_file","arguments":{"file_path":"a"}}
then function_call: {"name":"list_directory","arguments":{"directory_path":"."}}`
	x := newExtractor()

	first, _ := x.Extract(text)
	second, _ := x.Extract(text)
	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	for _, c := range first {
		assert.True(t, ValidID(c.ID), c.ID)
	}
	assert.NotEqual(t, first[0].ID, first[1].ID)
}

func TestExtractIsStableAcrossGrowingText(t *testing.T) {
	call := `function_call: {"name":"read_file","arguments":{"file_path":"a"}}`
	x := newExtractor()

	early, _ := x.Extract("intro " + call)
	later, _ := x.Extract("intro " + call + " and some more text function_call: {")
	require.Len(t, early, 1)
	require.Len(t, later, 1)
	assert.Equal(t, early[0].ID, later[0].ID)
}

func TestExtractRejectsUnknownTool(t *testing.T) {
	text := `function_call: {"id":"abc123xyz","name":"read_fil","arguments":{"file_path":"a"}}`

	calls, invalid := newExtractor().Extract(text)
	assert.Empty(t, calls)
	require.Len(t, invalid, 1)
	assert.ErrorIs(t, invalid[0].Err, tools.ErrUnknownTool)
	assert.Contains(t, invalid[0].Feedback(), `"read_file"`)
}

func TestExtractRejectsMissingArgument(t *testing.T) {
	text := `function_call: {"id":"abc123xyz","name":"read_file","arguments":{"filename":"a"}}`

	calls, invalid := newExtractor().Extract(text)
	assert.Empty(t, calls)
	require.Len(t, invalid, 1)
	assert.Contains(t, invalid[0].Feedback(), "file_path")
	assert.Contains(t, invalid[0].Feedback(), "target_file")
}

func TestExtractAcceptsAliases(t *testing.T) {
	text := `function_call: {"name":"functions.view_file","arguments":{"path":"a"}}`
	calls, invalid := newExtractor().Extract(text)
	assert.Empty(t, invalid)
	require.Len(t, calls, 1)
	assert.Equal(t, "functions.view_file", calls[0].Name)
}

func TestExtractMergesNativeCalls(t *testing.T) {
	text := `function_call: {"id":"abc123xyz","name":"read_file","arguments":{"file_path":"a"}}`
	native := []llm.ToolCall{
		{ID: "abc123xyz", Name: "read_file", Arguments: `{"file_path":"a"}`},
		{ID: "call_9f8e7d", Name: "grep_search", Arguments: `{"query":"TODO"}`},
		{ID: "", Name: "web_search", Arguments: ""},
	}

	calls, invalid := newExtractor().Extract(text, native...)
	require.Len(t, calls, 2)
	assert.Equal(t, "abc123xyz", calls[0].ID)
	assert.Equal(t, "grep_search", calls[1].Name)
	assert.True(t, ValidID(calls[1].ID))

	require.Len(t, invalid, 1)
	assert.Equal(t, "web_search", invalid[0].Call.Name)
}

func TestExtractSkipsMalformed(t *testing.T) {
	calls, invalid := newExtractor().Extract(`function_call: {"oops": true} function_call: {"name":"read_file","arguments":{"file_path":"a"`)
	assert.Empty(t, calls)
	assert.Empty(t, invalid)
}
