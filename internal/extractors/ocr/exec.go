// Package ocr runs external text recognition and document tools.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

// DefaultCommandTimeout bounds a single external command.
const DefaultCommandTimeout = 2 * time.Minute

var _ driven.CommandRunner = (*ExecRunner)(nil)

// ExecRunner runs programs with os/exec under a per-command timeout.
type ExecRunner struct {
	Timeout time.Duration
}

// NewExecRunner creates a runner. A zero timeout uses DefaultCommandTimeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &ExecRunner{Timeout: timeout}
}

// Run executes name with args and returns stdout.
// A non-zero exit status is returned as an error carrying stderr.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s failed: %w", name, err)
		}
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// LookPath reports whether program resolves on PATH or as a path.
func LookPath(program string) bool {
	_, err := exec.LookPath(program)
	return err == nil
}
