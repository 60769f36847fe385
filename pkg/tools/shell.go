package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// cwdMarker separates command output from the trailing working directory
// line the shell prints after every command.
const cwdMarker = "__POINTER_CWD__"

// Shell runs commands one at a time and remembers the working directory
// between them, so "cd" in one call affects the next.
type Shell struct {
	mu         sync.Mutex
	workingDir string
}

func NewShell(dir string) *Shell {
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return &Shell{workingDir: dir}
}

// Dir returns the current working directory.
func (s *Shell) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingDir
}

// Run executes cmdStr and returns its combined output with the cwd marker
// stripped. The exit code is -1 when the process did not start.
// A non-empty dir runs the command there without moving the shell.
func (s *Shell) Run(ctx context.Context, dir, cmdStr string) (string, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oneOff := dir != ""
	if !oneOff {
		dir = s.workingDir
	}
	slog.InfoContext(ctx, "Executing command", "dir", dir, "command", cmdStr)

	raw, exitCode, err := runPlatform(ctx, dir, cmdStr)
	output := strings.TrimRight(raw, "\r\n")
	if idx := strings.LastIndex(raw, cwdMarker); idx >= 0 {
		newCwd := strings.TrimSpace(raw[idx+len(cwdMarker):])
		output = strings.TrimRight(raw[:idx], "\r\n")
		if info, statErr := os.Stat(newCwd); statErr == nil && info.IsDir() && !oneOff {
			s.workingDir = newCwd
		}
	}
	return output, exitCode, err
}

func (e *LocalExecutor) runTerminalCmd(ctx context.Context, args map[string]any) (any, error) {
	command := strings.TrimSpace(stringArg(args, "command"))
	if command == "" {
		return nil, errors.New("no command provided")
	}
	timeout := e.cmdTimeout
	if secs := intArg(args, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	var dir string
	if wd := stringArg(args, "working_directory"); strings.TrimSpace(wd) != "" {
		full, err := e.resolve(wd)
		if err != nil {
			return nil, err
		}
		dir = full
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, exitCode, err := e.shell.Run(cctx, dir, command)
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("command timed out after %s", timeout)
	}
	if err != nil && exitCode < 0 {
		return nil, err
	}

	return map[string]any{
		"command":   command,
		"output":    output,
		"exit_code": exitCode,
		"cwd":       e.shell.Dir(),
	}, nil
}
