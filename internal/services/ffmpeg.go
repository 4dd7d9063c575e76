package services

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// FFmpegError carries the failed invocation and its captured stderr so worker
// logs show what the subprocess actually complained about.
type FFmpegError struct {
	Bin    string
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Bin, strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + lastStderrLine(e.Stderr)
	}
	return msg
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// runCommand executes bin with args and returns stdout. Failures come back as
// *FFmpegError with stderr attached.
func runCommand(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &FFmpegError{Bin: bin, Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// lastStderrLine trims ffmpeg's banner noise down to the line that usually
// holds the actual failure.
func lastStderrLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
