package tools

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxReadBytes = 1 << 20

func (e *LocalExecutor) readFile(args map[string]any) (any, error) {
	// target_file wins over file_path when both are given
	p := stringArg(args, "target_file")
	if strings.TrimSpace(p) == "" {
		p = stringArg(args, "file_path")
	}
	full, err := e.resolve(p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			msg := fmt.Sprintf("File not found: %s", p)
			if similar := e.similarFiles(filepath.Base(p), 3); len(similar) > 0 {
				msg += ". Similar files found: " + strings.Join(similar, ", ")
			}
			return nil, errors.New(msg)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}

	f, err := os.Open(full)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxReadBytes+1))
	if err != nil {
		return nil, err
	}
	truncated := len(data) > maxReadBytes
	if truncated {
		data = data[:maxReadBytes]
	}

	return map[string]any{
		"file_path": e.rel(full),
		"content":   string(data),
		"size":      info.Size(),
		"lines":     strings.Count(string(data), "\n") + 1,
		"truncated": truncated,
	}, nil
}

// similarFiles returns up to limit workspace files whose name contains, or
// is contained in, name.
func (e *LocalExecutor) similarFiles(name string, limit int) []string {
	name = strings.ToLower(name)
	var out []string
	_ = filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDir(d.Name()) && path != e.root {
				return filepath.SkipDir
			}
			return nil
		}
		base := strings.ToLower(d.Name())
		if strings.Contains(base, name) || strings.Contains(name, base) {
			out = append(out, e.rel(path))
			if len(out) >= limit {
				return filepath.SkipAll
			}
		}
		return nil
	})
	return out
}

func (e *LocalExecutor) deleteFile(args map[string]any) (any, error) {
	p := stringArg(args, "target_file")
	if strings.TrimSpace(p) == "" {
		p = stringArg(args, "file_path")
	}
	full, err := e.resolve(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", p)
	}
	if err := os.Remove(full); err != nil {
		return nil, err
	}
	return map[string]any{"file_path": e.rel(full), "deleted": true}, nil
}

func (e *LocalExecutor) transferFile(args map[string]any, keepSource bool) (any, error) {
	src, err := e.resolve(stringArg(args, "source_path"))
	if err != nil {
		return nil, err
	}
	dst, err := e.resolve(stringArg(args, "destination_path"))
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("source file not found: %s", e.rel(src))
	}
	if boolArg(args, "create_directories", true) {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, err
		}
	}

	if keepSource {
		err = copyFile(src, dst)
	} else {
		err = os.Rename(src, dst)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"source_path":      e.rel(src),
		"destination_path": e.rel(dst),
	}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (e *LocalExecutor) listDirectory(args map[string]any) (any, error) {
	p := stringArg(args, "directory_path")
	full, err := e.resolve(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("Directory not found: %s", p)
		}
		return nil, err
	}

	contents := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"name": entry.Name(),
			"path": e.rel(filepath.Join(full, entry.Name())),
			"type": "file",
		}
		if entry.IsDir() {
			item["type"] = "directory"
		} else if info, err := entry.Info(); err == nil {
			item["size"] = info.Size()
		}
		contents = append(contents, item)
	}
	sort.SliceStable(contents, func(i, j int) bool {
		// directories first
		di, dj := contents[i]["type"] == "directory", contents[j]["type"] == "directory"
		if di != dj {
			return di
		}
		return contents[i]["name"].(string) < contents[j]["name"].(string)
	})

	return map[string]any{
		"directory": e.rel(full),
		"contents":  contents,
	}, nil
}

func skipDir(name string) bool {
	switch name {
	case ".git", "node_modules", ".venv", "__pycache__", ".pointer_cache":
		return true
	}
	return false
}
