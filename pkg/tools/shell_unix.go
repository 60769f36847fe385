//go:build !windows

package tools

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

func runPlatform(ctx context.Context, dir, cmdStr string) (string, int, error) {
	// the EXIT trap also reports the directory when the command calls exit
	fullCmd := fmt.Sprintf("trap 'printf \"\\n%s%%s\\n\" \"$(pwd)\"' EXIT\n%s", cwdMarker, cmdStr)

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", fullCmd)
	cmd.Dir = dir
	cmd.WaitDelay = 500 * time.Millisecond
	out, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return string(out), 0, nil
	case errors.As(err, &exitErr):
		return string(out), exitErr.ExitCode(), err
	default:
		return string(out), -1, err
	}
}
