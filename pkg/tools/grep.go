package tools

import (
	"bufio"
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	grepMaxPerFile  = 50
	grepMaxMatches  = 200
	grepMaxFileSize = 2 << 20
)

func (e *LocalExecutor) grepSearch(ctx context.Context, args map[string]any) (any, error) {
	query := stringArg(args, "query")
	include := stringArg(args, "include_pattern")
	exclude := stringArg(args, "exclude_pattern")

	pattern := query
	if _, err := regexp.Compile(pattern); err != nil {
		pattern = regexp.QuoteMeta(query)
	}
	if !boolArg(args, "case_sensitive", false) {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	matches := make([]map[string]any, 0)
	walkErr := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() {
			if path != e.root && (skipDir(name) || matchGlob(exclude, name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchGlob(exclude, name) || (include != "" && !matchGlob(include, name)) {
			return nil
		}

		found, err := grepFile(path, re)
		if err != nil {
			return nil
		}
		for _, m := range found {
			m["file"] = e.rel(path)
			matches = append(matches, m)
			if len(matches) >= grepMaxMatches {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	return map[string]any{
		"query":           query,
		"include_pattern": include,
		"exclude_pattern": exclude,
		"matches":         matches,
	}, nil
}

func matchGlob(pattern, name string) bool {
	if pattern == "" {
		return false
	}
	if ok, _ := filepath.Match(pattern, name); ok {
		return true
	}
	return pattern == name
}

func grepFile(path string, re *regexp.Regexp) ([]map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > grepMaxFileSize {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	head := data
	if len(head) > 8000 {
		head = head[:8000]
	}
	if bytes.IndexByte(head, 0) >= 0 {
		return nil, nil // binary
	}

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), grepMaxFileSize)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if re.MatchString(line) {
			out = append(out, map[string]any{"line_number": lineNo, "line": strings.TrimSpace(line)})
			if len(out) >= grepMaxPerFile {
				break
			}
		}
	}
	return out, nil
}
