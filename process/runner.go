package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
)

// ErrExternalTool is returned when a command is missing or exits non-zero.
var ErrExternalTool = errors.New("external tool failed")

// DefaultMaxOutput bounds how much of each stream a Result keeps.
const DefaultMaxOutput = 64 * 1024

// Result is the outcome of a finished command.
type Result struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Truncated bool
	Duration  time.Duration
}

// Runner runs a command to completion.
type Runner interface {
	Run(ctx context.Context, argv []string) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Dir       string
	Env       []string
	MaxOutput int
	Logger    logger.Logger
}

// NewExecRunner creates an ExecRunner working in dir.
func NewExecRunner(dir string, log logger.Logger) *ExecRunner {
	return &ExecRunner{Dir: dir, MaxOutput: DefaultMaxOutput, Logger: log}
}

// Run executes argv and waits for it. A non-zero exit returns the Result together
// with an error wrapping ErrExternalTool.
func (r *ExecRunner) Run(ctx context.Context, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrExternalTool)
	}

	max := r.MaxOutput
	if max <= 0 {
		max = DefaultMaxOutput
	}
	stdout := &boundedBuffer{max: max}
	stderr := &boundedBuffer{max: max}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if r.Logger != nil {
		r.Logger.Debug(ctx, "running command", map[string]interface{}{"argv": strings.Join(argv, " ")})
	}

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, fmt.Errorf("%w: %s exited with %d: %s", ErrExternalTool, argv[0], res.ExitCode, lastLine(res.Stderr))
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s not found", ErrExternalTool, argv[0])
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrExternalTool, argv[0], err)
	}

	return res, nil
}

// boundedBuffer keeps the first max bytes written to it.
type boundedBuffer struct {
	mu        sync.Mutex
	max       int
	buf       bytes.Buffer
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ io.Writer = (*boundedBuffer)(nil)

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
