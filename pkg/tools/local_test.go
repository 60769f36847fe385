package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, opts ...LocalOption) (*LocalExecutor, string) {
	t.Helper()
	dir := t.TempDir()
	e, err := NewLocalExecutor(dir, DefaultCatalog(), opts...)
	require.NoError(t, err)
	return e, e.Root()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadFileAcceptsAliasPath(t *testing.T) {
	e, root := newTestExecutor(t)
	writeFile(t, filepath.Join(root, "src", "a.txt"), "one\ntwo\n")

	out, err := e.Execute(context.Background(), "open_file", map[string]any{"path": "src/a.txt"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)

	content := out.Content.(map[string]any)
	assert.Equal(t, "one\ntwo\n", content["content"])
	assert.Equal(t, "src/a.txt", content["file_path"])
}

func TestReadFileMissingSuggestsSimilar(t *testing.T) {
	e, root := newTestExecutor(t)
	writeFile(t, filepath.Join(root, "pkg", "config.go"), "package pkg")

	out, err := e.Execute(context.Background(), "read_file", map[string]any{"file_path": "config.go"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "File not found")
	assert.Contains(t, out.Error, "pkg/config.go")
}

func TestPathsCannotEscapeWorkspace(t *testing.T) {
	e, _ := newTestExecutor(t)

	out, err := e.Execute(context.Background(), "read_file", map[string]any{"file_path": "../../etc/passwd"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "outside the workspace")
}

func TestMoveCopyDelete(t *testing.T) {
	e, root := newTestExecutor(t)
	ctx := context.Background()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")

	out, err := e.Execute(ctx, "copy_file", map[string]any{"source": "a.txt", "destination": "nested/b.txt"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	data, err := os.ReadFile(filepath.Join(root, "nested", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	out, err = e.Execute(ctx, "move_file", map[string]any{"source_path": "a.txt", "destination_path": "c.txt"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	assert.NoFileExists(t, filepath.Join(root, "a.txt"))
	assert.FileExists(t, filepath.Join(root, "c.txt"))

	out, err = e.Execute(ctx, "delete_file", map[string]any{"target_file": "c.txt"})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)
	assert.NoFileExists(t, filepath.Join(root, "c.txt"))
}

func TestListDirectoryPutsDirectoriesFirst(t *testing.T) {
	e, root := newTestExecutor(t)
	writeFile(t, filepath.Join(root, "b.txt"), "b")
	writeFile(t, filepath.Join(root, "a", "x.txt"), "x")

	out, err := e.Execute(context.Background(), "list_dir", map[string]any{"dir": "."})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)

	contents := out.Content.(map[string]any)["contents"].([]map[string]any)
	require.Len(t, contents, 2)
	assert.Equal(t, "a", contents[0]["name"])
	assert.Equal(t, "directory", contents[0]["type"])
	assert.Equal(t, "b.txt", contents[1]["name"])
}

func TestGrepSearch(t *testing.T) {
	e, root := newTestExecutor(t)
	writeFile(t, filepath.Join(root, "main.go"), "package main\n\nfunc Handler() {}\n")
	writeFile(t, filepath.Join(root, "notes.md"), "the handler is here\n")
	writeFile(t, filepath.Join(root, "node_modules", "dep.go"), "func Handler() {}\n")

	out, err := e.Execute(context.Background(), "grep_search", map[string]any{"query": "handler"})
	require.NoError(t, err)
	matches := out.Content.(map[string]any)["matches"].([]map[string]any)
	assert.Len(t, matches, 2)

	out, err = e.Execute(context.Background(), "grep_search", map[string]any{
		"query":           "Handler",
		"case_sensitive":  true,
		"include_pattern": "*.go",
	})
	require.NoError(t, err)
	matches = out.Content.(map[string]any)["matches"].([]map[string]any)
	require.Len(t, matches, 1)
	assert.Equal(t, "main.go", matches[0]["file"])
	assert.Equal(t, 3, matches[0]["line_number"])
}

func TestCodebaseToolsAreNotSupportedLocally(t *testing.T) {
	e, _ := newTestExecutor(t)
	_, err := e.Execute(context.Background(), "get_codebase_overview", nil)
	assert.ErrorIs(t, err, ErrNotSupported)

	_, err = e.Execute(context.Background(), "summon_demon", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestFetchWebpage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`<html><head><title> Docs </title><script>var x=1;</script></head>
<body><h1>Hello</h1>   <p>world
of   text</p></body></html>`))
	}))
	defer srv.Close()

	e, _ := newTestExecutor(t)
	out, err := e.Execute(context.Background(), "fetch_webpage", map[string]any{"url": srv.URL})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)

	content := out.Content.(map[string]any)
	assert.Equal(t, "Docs", content["title"])
	assert.Equal(t, "Hello world of text", content["content"])
}

func TestFetchWebpageRejectsBadURL(t *testing.T) {
	e, _ := newTestExecutor(t)
	out, err := e.Execute(context.Background(), "fetch_webpage", map[string]any{"url": "not a url"})
	require.NoError(t, err)
	assert.False(t, out.Success)
}

func TestWebSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang generics", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`<html><body>
<div class="result"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc&rut=x">Go Docs</a>
<a class="result__snippet">Generics   tutorial</a></div>
<div class="result"><a class="result__a" href="https://example.com">Example</a></div>
<div class="result"><a class="result__a" href="https://third.example">Third</a></div>
</body></html>`))
	}))
	defer srv.Close()

	e, _ := newTestExecutor(t, WithSearchURL(srv.URL))
	out, err := e.Execute(context.Background(), "search_web", map[string]any{"query": "golang generics", "num_results": 2})
	require.NoError(t, err)
	require.True(t, out.Success, out.Error)

	results := out.Content.(map[string]any)["results"].([]map[string]string)
	require.Len(t, results, 2)
	assert.Equal(t, "https://go.dev/doc", results[0]["url"])
	assert.Equal(t, "Generics tutorial", results[0]["snippet"])
	assert.Equal(t, "https://example.com", results[1]["url"])
}
