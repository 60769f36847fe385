package insert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointer/pkg/api"
	"pointer/pkg/llm"
	"pointer/pkg/sched"
)

type fakeModel struct {
	reply string
	err   error
	calls atomic.Int32
}

func (f *fakeModel) StreamChat(ctx context.Context, msgs []llm.Message, opts llm.ChatOptions) (<-chan llm.StreamChunk, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.NewTextChunk(f.reply)
	ch <- llm.NewFinalChunk(llm.StopReasonStop, nil)
	close(ch)
	return ch, nil
}

func (f *fakeModel) IsTransientError(error) bool { return false }
func (f *fakeModel) Provider() string            { return "fake" }

type recordingSink struct {
	mu      sync.Mutex
	changes []api.FileChange
}

func (r *recordingSink) EmitChange(ctx context.Context, c api.FileChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
	return nil
}

func (r *recordingSink) all() []api.FileChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]api.FileChange(nil), r.changes...)
}

type harness struct {
	p       *Pipeline
	clock   *sched.Fake
	root    string
	sink    *recordingSink
	mu      sync.Mutex
	reports []Report
}

func newHarness(t *testing.T, merger *Merger) *harness {
	t.Helper()
	h := &harness{clock: sched.NewFake(time.Unix(0, 0)), root: t.TempDir(), sink: &recordingSink{}}
	p, err := NewPipeline(Options{
		Workspace: h.root,
		Merger:    merger,
		Sink:      MultiSink{NewFileSink(h.root), h.sink},
		Scheduler: h.clock,
		Settle:    200 * time.Millisecond,
		OnReport: func(r Report) {
			h.mu.Lock()
			h.reports = append(h.reports, r)
			h.mu.Unlock()
		},
	})
	require.NoError(t, err)
	h.p = p
	t.Cleanup(p.Close)
	return h
}

func (h *harness) settle() {
	h.clock.Advance(200 * time.Millisecond)
	h.p.Wait()
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	full := filepath.Join(h.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func (h *harness) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.root, rel))
	require.NoError(t, err)
	return string(data)
}

func TestNewFileIsWrittenWithoutMerge(t *testing.T) {
	model := &fakeModel{reply: "unused"}
	h := newHarness(t, NewMerger(model, nil))

	h.p.Begin()
	h.p.OnIncrement(fence + "python:pkg/new.py\nprint('hi')\n" + fence)
	assert.Equal(t, 1, h.p.Pending())
	h.settle()

	assert.Equal(t, "print('hi')\n", h.read(t, "pkg/new.py"))
	assert.Equal(t, int32(0), model.calls.Load())
	changes := h.sink.all()
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Created)
	assert.NotEmpty(t, changes[0].ID)
}

func TestExistingFileIsMerged(t *testing.T) {
	model := &fakeModel{reply: fence + "go\npackage main\n\nfunc main() {}\n" + fence}
	h := newHarness(t, NewMerger(model, nil))
	h.write(t, "main.go", "package main\n")

	h.p.Begin()
	h.p.OnIncrement(fence + "go:main.go\nfunc main() {}\n" + fence)
	h.settle()

	assert.Equal(t, int32(1), model.calls.Load())
	assert.Equal(t, "package main\n\nfunc main() {}\n", h.read(t, "main.go"))
	changes := h.sink.all()
	require.Len(t, changes, 1)
	assert.Equal(t, "package main\n", changes[0].Before)
	assert.Contains(t, changes[0].Diff, "+func main() {}")
}

func TestMergeFallsBack(t *testing.T) {
	primary := &fakeModel{err: errors.New("merge model down")}
	fallback := &fakeModel{reply: "merged\n"}
	h := newHarness(t, NewMerger(primary, fallback))
	h.write(t, "a.txt", "old\n")

	h.p.Begin()
	h.p.OnIncrement(fence + "txt:a.txt\nnew\n" + fence)
	h.settle()

	assert.Equal(t, int32(1), primary.calls.Load())
	assert.Equal(t, int32(1), fallback.calls.Load())
	assert.Equal(t, "merged\n", h.read(t, "a.txt"))
}

func TestMergeFailureDropsEntry(t *testing.T) {
	h := newHarness(t, NewMerger(&fakeModel{err: errors.New("a")}, &fakeModel{err: errors.New("b")}))
	h.write(t, "a.txt", "old\n")

	h.p.Begin()
	h.p.OnIncrement(fence + "txt:a.txt\nnew\n" + fence)
	h.settle()

	assert.Equal(t, "old\n", h.read(t, "a.txt"))
	assert.Equal(t, 0, h.p.Pending())
	require.Len(t, h.reports, 1)
	assert.Error(t, h.reports[0].Err)
	assert.Nil(t, h.reports[0].Change)
}

func TestLineRangeEdit(t *testing.T) {
	model := &fakeModel{reply: "unused"}
	h := newHarness(t, NewMerger(model, nil))
	h.write(t, "a.txt", "1\n2\n3\n4\n")

	h.p.Begin()
	h.p.OnIncrement(fence + "2:3:a.txt\ntwo\nthree\n" + fence)
	h.settle()

	assert.Equal(t, "1\ntwo\nthree\n4\n", h.read(t, "a.txt"))
	assert.Equal(t, int32(0), model.calls.Load())
	changes := h.sink.all()
	require.Len(t, changes, 1)
	assert.Equal(t, "1\n2\n3\n4\n", changes[0].Before)
}

func TestInvalidLineRangeIsReported(t *testing.T) {
	h := newHarness(t, nil)
	h.write(t, "a.txt", "1\n2\n")

	h.p.Begin()
	h.p.OnIncrement(fence + "2:1:a.txt\nx\n" + fence)
	h.settle()

	assert.Equal(t, "1\n2\n", h.read(t, "a.txt"))
	require.Len(t, h.reports, 1)
	assert.ErrorIs(t, h.reports[0].Err, ErrInvalidRange)
	assert.Empty(t, h.sink.all())
}

func TestPathDedupWithinResponse(t *testing.T) {
	h := newHarness(t, nil)

	h.p.Begin()
	block := fence + "txt:a.txt\nfirst\n" + fence
	h.p.OnIncrement(block)
	h.p.OnIncrement(block + "\nmore text")
	h.p.OnIncrement(block + "\n" + fence + "1:1:a.txt\nsecond\n" + fence)
	assert.Equal(t, 1, h.p.Pending())
	h.settle()
	assert.Equal(t, "first\n", h.read(t, "a.txt"))

	// a new response may edit the same path again
	h.p.Begin()
	h.p.OnIncrement(fence + "1:1:a.txt\nsecond\n" + fence)
	h.settle()
	assert.Equal(t, "second\n", h.read(t, "a.txt"))
}

func TestPathOutsideWorkspaceIsRejected(t *testing.T) {
	h := newHarness(t, nil)

	h.p.Begin()
	h.p.OnIncrement(fence + "txt:../../escape.txt\nx\n" + fence)
	h.settle()

	require.Len(t, h.reports, 1)
	assert.Error(t, h.reports[0].Err)
	assert.NoFileExists(t, filepath.Join(h.root, "..", "..", "escape.txt"))
}

func TestCloseDiscardsQueue(t *testing.T) {
	h := newHarness(t, nil)
	h.p.Begin()
	h.p.OnIncrement(fence + "txt:a.txt\nx\n" + fence)
	h.p.Close()
	h.clock.Advance(time.Second)

	assert.NoFileExists(t, filepath.Join(h.root, "a.txt"))
	h.p.OnIncrement(fence + "txt:b.txt\nx\n" + fence)
	assert.Equal(t, 0, h.p.Pending())
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "a\nb\n", StripFences("```go\na\nb\n```"))
	assert.Equal(t, "plain", StripFences("plain"))
}
