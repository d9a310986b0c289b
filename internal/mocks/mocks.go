// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/tebeka/selenium"

	"github.com/xkilldash9x/undetected-chromedriver/internal/launcher"
	"github.com/xkilldash9x/undetected-chromedriver/internal/platform"
)

// -- Platform Mock --

// MockPlatform mocks the platform.Platform interface.
type MockPlatform struct {
	mock.Mock
}

var _ platform.Platform = (*MockPlatform)(nil)

func (m *MockPlatform) CurrentOS() (platform.OS, error) {
	args := m.Called()
	return args.Get(0).(platform.OS), args.Error(1)
}

func (m *MockPlatform) SpawnProcess(ctx context.Context, name string, args ...string) (platform.Process, error) {
	ret := m.Called(ctx, name, args)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(platform.Process), ret.Error(1)
}

func (m *MockPlatform) SetExecutable(path string) error {
	return m.Called(path).Error(0)
}

// -- Process Fake --

// FakeProcess is a controllable platform.Process. It starts alive; Exit
// simulates the child terminating on its own.
type FakeProcess struct {
	Pid int

	mu      sync.Mutex
	done    chan struct{}
	err     error
	kills   int
	exitNow bool
}

var _ platform.Process = (*FakeProcess)(nil)

func NewFakeProcess(pid int) *FakeProcess {
	return &FakeProcess{Pid: pid, done: make(chan struct{})}
}

// Exit marks the process as exited with err.
func (p *FakeProcess) Exit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exitNow {
		return
	}
	p.exitNow = true
	p.err = err
	close(p.done)
}

func (p *FakeProcess) PID() int { return p.Pid }

func (p *FakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exitNow
}

func (p *FakeProcess) Done() <-chan struct{} { return p.done }

func (p *FakeProcess) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *FakeProcess) Kill() error {
	p.mu.Lock()
	p.kills++
	p.mu.Unlock()
	p.Exit(nil)
	return nil
}

// Kills reports how many times Kill was called.
func (p *FakeProcess) Kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kills
}

// -- Session Starter Mock --

// MockSessionStarter mocks the launcher.SessionStarter interface.
type MockSessionStarter struct {
	mock.Mock
}

var _ launcher.SessionStarter = (*MockSessionStarter)(nil)

func (m *MockSessionStarter) Start(ctx context.Context, urlPrefix string, caps selenium.Capabilities) (launcher.Driver, error) {
	args := m.Called(ctx, urlPrefix, caps)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(launcher.Driver), args.Error(1)
}

// -- Driver Mock --

// MockDriver mocks the launcher.Driver interface.
type MockDriver struct {
	mock.Mock
}

var _ launcher.Driver = (*MockDriver)(nil)

func (m *MockDriver) SessionID() string { return m.Called().String(0) }
func (m *MockDriver) Get(url string) error { return m.Called(url).Error(0) }
func (m *MockDriver) Quit() error { return m.Called().Error(0) }
func (m *MockDriver) PageSource() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}
func (m *MockDriver) Capabilities() (selenium.Capabilities, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(selenium.Capabilities), args.Error(1)
}
