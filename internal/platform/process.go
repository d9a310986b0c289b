package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"

	ps "github.com/mitchellh/go-ps"
)

// Process is a running child process.
type Process interface {
	PID() int
	// Alive reports whether the process is still running.
	Alive() bool
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// Err is the exit error. Only meaningful after Done is closed.
	Err() error
	Kill() error
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

// findProcess is swapped out in tests.
var findProcess = ps.FindProcess

func newExecProcess(cmd *exec.Cmd) *execProcess {
	p := &execProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()
	return p
}

func (p *execProcess) PID() int {
	return p.cmd.Process.Pid
}

// Alive checks the reaper first and then the process table, so a child
// that was never reaped but vanished is still reported as gone.
func (p *execProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
	}
	proc, err := findProcess(p.PID())
	if err != nil {
		// The process table could not be read; trust the reaper.
		return true
	}
	return proc != nil
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process %d: %w", p.PID(), err)
	}
	return nil
}

// Stop kills p and waits until it has been reaped or ctx expires.
func Stop(ctx context.Context, p Process) error {
	if p == nil {
		return nil
	}
	if err := p.Kill(); err != nil {
		return err
	}
	select {
	case <-p.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("process %d did not exit: %w", p.PID(), ctx.Err())
	}
}
