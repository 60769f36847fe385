package insert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pmezard/go-difflib/difflib"

	"pointer/pkg/api"
)

// NewChange builds a FileChange with a fresh id and its unified diff.
func NewChange(path, before, after string, created bool) api.FileChange {
	return api.FileChange{
		ID:      uuid.NewString(),
		Path:    path,
		Before:  before,
		After:   after,
		Diff:    UnifiedDiff(path, before, after),
		Created: created,
	}
}

// UnifiedDiff renders before -> after with three lines of context.
func UnifiedDiff(path, before, after string) string {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return out
}

// FileSink writes changes under a workspace root.
type FileSink struct {
	root string
}

func NewFileSink(root string) *FileSink {
	return &FileSink{root: root}
}

func (s *FileSink) EmitChange(ctx context.Context, change api.FileChange) error {
	full, err := resolveIn(s.root, change.Path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(change.After), 0o644)
}

// MultiSink fans a change out to every sink and joins their errors.
type MultiSink []api.DiffSink

func (m MultiSink) EmitChange(ctx context.Context, change api.FileChange) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.EmitChange(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resolveIn maps p into root, refusing paths that leave it.
func resolveIn(root, p string) (string, error) {
	full := p
	if !filepath.IsAbs(p) {
		full = filepath.Join(root, p)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || (len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the workspace", p)
	}
	return full, nil
}
