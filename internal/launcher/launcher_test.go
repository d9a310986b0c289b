package launcher_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/undetected-chromedriver/internal/launcher"
	"github.com/xkilldash9x/undetected-chromedriver/internal/mocks"
)

// fixedPort always picks the same offset into the port range.
type fixedPort struct{ n int }

func (f fixedPort) Intn(int) int { return f.n }

func testConfig() launcher.Config {
	return launcher.Config{
		Executable:  "./chromedriver_PATCHED",
		MaxAttempts: launcher.DefaultMaxAttempts,
		Backoff:     time.Millisecond,
		PortMin:     launcher.DefaultPortMin,
		PortMax:     launcher.DefaultPortMax,
	}
}

func setupLauncher(t *testing.T, cfg launcher.Config) (*launcher.Launcher, *mocks.MockPlatform, *mocks.MockSessionStarter, *mocks.FakeProcess) {
	t.Helper()
	proc := mocks.NewFakeProcess(4242)
	plat := new(mocks.MockPlatform)
	plat.On("SpawnProcess", mock.Anything, cfg.Executable, []string{"--port=3210"}).Return(proc, nil)
	starter := new(mocks.MockSessionStarter)

	l, err := launcher.New(plat, starter, zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	l.SetPortSource(fixedPort{n: 3210 - cfg.PortMin})
	return l, plat, starter, proc
}

func TestLaunch_ConnectsAfterRetries(t *testing.T) {
	l, plat, starter, proc := setupLauncher(t, testConfig())
	caps := selenium.Capabilities{"browserName": "chrome"}

	driver := new(mocks.MockDriver)
	driver.On("SessionID").Return("abc123")
	driver.On("Quit").Return(nil)

	refused := errors.New("connection refused")
	starter.On("Start", mock.Anything, "http://localhost:3210", caps).Return(nil, refused).Times(3)
	starter.On("Start", mock.Anything, "http://localhost:3210", caps).Return(driver, nil).Once()

	session, err := l.Launch(context.Background(), caps)
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, 3210, session.Port)
	assert.Equal(t, "http://localhost:3210", session.URL)
	assert.Equal(t, 4, session.Attempts)
	assert.NotEmpty(t, session.ID)
	assert.Same(t, proc, session.Process)
	assert.Equal(t, 0, proc.Kills(), "a connected driver must keep running")

	starter.AssertNumberOfCalls(t, "Start", 4)
	plat.AssertNumberOfCalls(t, "SpawnProcess", 1)

	require.NoError(t, session.Quit(context.Background()))
	require.NoError(t, session.Quit(context.Background()), "quit is idempotent")
	driver.AssertNumberOfCalls(t, "Quit", 1)
	assert.Equal(t, 1, proc.Kills())
}

func TestLaunch_RetryBound(t *testing.T) {
	l, plat, starter, proc := setupLauncher(t, testConfig())

	starter.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	var session *launcher.DriverSession
	var err error
	require.NotPanics(t, func() {
		session, err = l.Launch(context.Background(), selenium.Capabilities{})
	})
	assert.Nil(t, session)

	require.ErrorIs(t, err, launcher.ErrLaunchTimeout)
	var lte *launcher.LaunchTimeoutError
	require.ErrorAs(t, err, &lte)
	assert.Equal(t, launcher.DefaultMaxAttempts, lte.Attempts)
	assert.Equal(t, 3210, lte.Port)
	assert.EqualError(t, lte.LastErr, "connection refused")

	starter.AssertNumberOfCalls(t, "Start", launcher.DefaultMaxAttempts)
	plat.AssertNumberOfCalls(t, "SpawnProcess", 1)
	assert.Equal(t, 1, proc.Kills(), "the orphaned driver must be stopped")
}

func TestLaunch_ProcessExitedFailsFast(t *testing.T) {
	l, _, starter, proc := setupLauncher(t, testConfig())

	exitErr := errors.New("exit status 127")
	starter.On("Start", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { proc.Exit(exitErr) }).
		Return(nil, errors.New("connection refused"))

	_, err := l.Launch(context.Background(), selenium.Capabilities{})
	require.ErrorIs(t, err, launcher.ErrProcessExited)
	assert.NotErrorIs(t, err, launcher.ErrLaunchTimeout)

	var pee *launcher.ProcessExitedError
	require.ErrorAs(t, err, &pee)
	assert.Equal(t, 4242, pee.PID)
	assert.ErrorIs(t, err, exitErr)
	starter.AssertNumberOfCalls(t, "Start", 1)
}

func TestLaunch_ProcessDeadBeforeFirstAttempt(t *testing.T) {
	l, _, starter, proc := setupLauncher(t, testConfig())
	proc.Exit(nil)

	_, err := l.Launch(context.Background(), selenium.Capabilities{})
	assert.ErrorIs(t, err, launcher.ErrProcessExited)
	starter.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
}

func TestLaunch_SpawnFailure(t *testing.T) {
	cfg := testConfig()
	plat := new(mocks.MockPlatform)
	plat.On("SpawnProcess", mock.Anything, cfg.Executable, mock.Anything).Return(nil, errors.New("no such file"))
	starter := new(mocks.MockSessionStarter)

	l, err := launcher.New(plat, starter, zaptest.NewLogger(t), cfg)
	require.NoError(t, err)

	_, err = l.Launch(context.Background(), selenium.Capabilities{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start chromedriver")
	starter.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
}

func TestLaunch_Cancellation(t *testing.T) {
	cfg := testConfig()
	cfg.Backoff = time.Hour
	l, _, starter, proc := setupLauncher(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	starter.On("Start", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, errors.New("connection refused"))

	done := make(chan error, 1)
	go func() {
		_, err := l.Launch(ctx, selenium.Capabilities{})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("launch did not observe cancellation during backoff")
	}
	starter.AssertNumberOfCalls(t, "Start", 1)
	assert.Equal(t, 1, proc.Kills())
}

func TestLaunch_WallClockTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.Backoff = time.Hour
	cfg.Timeout = 20 * time.Millisecond
	l, _, starter, _ := setupLauncher(t, cfg)
	starter.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	start := time.Now()
	_, err := l.Launch(context.Background(), selenium.Capabilities{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestNew_Validation(t *testing.T) {
	plat := new(mocks.MockPlatform)
	starter := new(mocks.MockSessionStarter)

	_, err := launcher.New(plat, starter, nil, launcher.Config{})
	assert.Error(t, err, "executable is required")

	_, err = launcher.New(plat, starter, nil, launcher.Config{Executable: "./x", PortMin: 5000, PortMax: 4000})
	assert.Error(t, err)

	_, err = launcher.New(plat, starter, nil, launcher.Config{Executable: "./x", PortMin: 1, PortMax: 70000})
	assert.Error(t, err)

	l, err := launcher.New(plat, starter, nil, launcher.Config{Executable: "./x"})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestLaunch_PortWithinRange(t *testing.T) {
	cfg := testConfig()
	proc := mocks.NewFakeProcess(1)
	plat := new(mocks.MockPlatform)

	var spawned []string
	plat.On("SpawnProcess", mock.Anything, cfg.Executable, mock.Anything).
		Run(func(args mock.Arguments) { spawned = args.Get(2).([]string) }).
		Return(proc, nil)

	driver := new(mocks.MockDriver)
	driver.On("SessionID").Return("s")
	starter := new(mocks.MockSessionStarter)
	starter.On("Start", mock.Anything, mock.Anything, mock.Anything).Return(driver, nil)

	l, err := launcher.New(plat, starter, zaptest.NewLogger(t), cfg)
	require.NoError(t, err)

	session, err := l.Launch(context.Background(), selenium.Capabilities{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, session.Port, launcher.DefaultPortMin)
	assert.Less(t, session.Port, launcher.DefaultPortMax)
	require.Len(t, spawned, 1)
	assert.Equal(t, "--port="+strconv.Itoa(session.Port), spawned[0])
}

func TestLaunch_ConstantBackoffBetweenAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 5
	cfg.Backoff = 40 * time.Millisecond
	l, _, starter, _ := setupLauncher(t, cfg)

	var calls []time.Time
	starter.On("Start", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { calls = append(calls, time.Now()) }).
		Return(nil, errors.New("connection refused"))

	start := time.Now()
	_, err := l.Launch(context.Background(), selenium.Capabilities{})
	elapsed := time.Since(start)
	require.ErrorIs(t, err, launcher.ErrLaunchTimeout)
	require.Len(t, calls, cfg.MaxAttempts)

	assert.GreaterOrEqual(t, elapsed, time.Duration(cfg.MaxAttempts-1)*cfg.Backoff)
	for i := 1; i < len(calls); i++ {
		gap := calls[i].Sub(calls[i-1])
		assert.GreaterOrEqual(t, gap, cfg.Backoff, "gap before attempt %d", i+1)
		// A doubling backoff would reach 8x by the last gap.
		assert.Less(t, gap, 6*cfg.Backoff, "gap before attempt %d", i+1)
	}
	assert.Less(t, calls[len(calls)-1].Sub(start), time.Duration(cfg.MaxAttempts)*cfg.Backoff*3,
		"no sleep after the final attempt and no growth between attempts")
}
