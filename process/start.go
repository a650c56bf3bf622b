package process

import (
	"bufio"
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

// ErrStartTimeout is returned when a long-running process does not print its
// readiness line in time.
var ErrStartTimeout = errors.New("process did not become ready")

// StartSpec describes a long-running process and how to tell it is ready.
type StartSpec struct {
	Argv        []string
	Dir         string
	ReadyLine   string        // substring of a stdout line that signals readiness
	ErrorMarker string        // substring of a stderr line that aborts startup
	Timeout     time.Duration // bound on reaching readiness
}

const killGrace = 5 * time.Second

// Process is a started command that keeps running until Kill.
type Process struct {
	cmd      *exec.Cmd
	name     string
	done     chan struct{}
	waitErr  error
	killOnce sync.Once
}

// Start launches spec.Argv and blocks until the ready line appears, an error
// line appears, the process exits, spec.Timeout passes or ctx ends. On any
// failure the process is killed before returning.
func Start(ctx context.Context, spec StartSpec, log logger.Logger) (*Process, error) {
	if len(spec.Argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrExternalTool)
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s not found", ErrExternalTool, spec.Argv[0])
		}
		return nil, fmt.Errorf("%w: start %s: %v", ErrExternalTool, spec.Argv[0], err)
	}

	p := &Process{cmd: cmd, name: spec.Argv[0], done: make(chan struct{})}
	log = log.WithField("process", p.name)

	ready := make(chan struct{}, 1)
	failed := make(chan string, 1)

	var streams sync.WaitGroup
	streams.Add(2)
	go func() {
		defer streams.Done()
		scan(stdout, func(line string) {
			log.Debug(ctx, line, nil)
			if spec.ReadyLine == "" || strings.Contains(line, spec.ReadyLine) {
				select {
				case ready <- struct{}{}:
				default:
				}
			}
		})
	}()
	go func() {
		defer streams.Done()
		scan(stderr, func(line string) {
			log.Debug(ctx, line, map[string]interface{}{"stream": "stderr"})
			if spec.ErrorMarker != "" && strings.Contains(line, spec.ErrorMarker) {
				select {
				case failed <- line:
				default:
				}
			}
		})
	}()
	go func() {
		streams.Wait()
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	var timeout <-chan time.Time
	if spec.Timeout > 0 {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ready:
		log.Info(ctx, "process ready", map[string]interface{}{"pid": cmd.Process.Pid})
		return p, nil
	case line := <-failed:
		p.Kill()
		return nil, fmt.Errorf("%w: %s reported: %s", ErrExternalTool, p.name, line)
	case <-p.done:
		return nil, fmt.Errorf("%w: %s exited before becoming ready: %v", ErrExternalTool, p.name, p.waitErr)
	case <-timeout:
		p.Kill()
		return nil, fmt.Errorf("%w: %s after %s", ErrStartTimeout, p.name, spec.Timeout)
	case <-ctx.Done():
		p.Kill()
		return nil, fmt.Errorf("%w: %s: %v", ErrStartTimeout, p.name, ctx.Err())
	}
}

func scan(r io.Reader, fn func(line string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		fn(sc.Text())
	}
	// Drain so the child never blocks on a full pipe.
	io.Copy(io.Discard, r)
}

// Kill stops the process and waits for it to be reaped. Safe to call repeatedly.
func (p *Process) Kill() {
	p.killOnce.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		// Grandchildren may keep the pipes open after the kill.
		select {
		case <-p.done:
		case <-time.After(killGrace):
		}
	})
}

// Exited reports whether the process has terminated.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Group tracks started processes so they can all be stopped at cleanup.
type Group struct {
	mu    sync.Mutex
	procs []*Process
}

// Add registers p for KillAll.
func (g *Group) Add(p *Process) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.procs = append(g.procs, p)
}

// KillAll kills every registered process and returns how many were still running.
func (g *Group) KillAll() int {
	g.mu.Lock()
	procs := g.procs
	g.procs = nil
	g.mu.Unlock()

	var running int
	for _, p := range procs {
		if !p.Exited() {
			running++
		}
		p.Kill()
	}
	return running
}
