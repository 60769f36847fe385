//go:build windows

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"time"
)

var envVarPattern = regexp.MustCompile(`%([^%]+)%`)

func runPlatform(ctx context.Context, dir, cmdStr string) (string, int, error) {
	// %VAR% -> $env:VAR
	expanded := envVarPattern.ReplaceAllString(cmdStr, `$$env:$1`)

	utf8Cmd := "[Console]::OutputEncoding = [System.Text.Encoding]::UTF8; $OutputEncoding = [System.Text.Encoding]::UTF8; " + expanded
	fullCmd := fmt.Sprintf("%s; Write-Output ('%s' + $ExecutionContext.SessionState.Path.CurrentLocation.Path)", utf8Cmd, cwdMarker)

	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command", fullCmd)
	cmd.Dir = dir
	cmd.WaitDelay = 500 * time.Millisecond
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return out.String(), 0, nil
	case errors.As(err, &exitErr):
		return out.String(), exitErr.ExitCode(), err
	default:
		return out.String(), -1, err
	}
}
