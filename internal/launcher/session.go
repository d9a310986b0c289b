package launcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/undetected-chromedriver/internal/platform"
)

// DriverSession pairs a driver process with the WebDriver session opened on
// it. The session owns the process and its port until Quit.
type DriverSession struct {
	ID        string
	Port      int
	URL       string
	Attempts  int
	StartedAt time.Time

	Process platform.Process
	Driver  Driver

	logger  *zap.Logger
	once    sync.Once
	quitErr error
}

func newDriverSession(port int, url string, proc platform.Process, driver Driver, attempts int, logger *zap.Logger) *DriverSession {
	id := uuid.New().String()
	return &DriverSession{
		ID:        id,
		Port:      port,
		URL:       url,
		Attempts:  attempts,
		StartedAt: time.Now(),
		Process:   proc,
		Driver:    driver,
		logger:    logger.With(zap.String("driver_session", id), zap.Int("port", port)),
	}
}

// Quit ends the WebDriver session and stops the driver process. It is safe to
// call more than once; later calls return the first result.
func (s *DriverSession) Quit(ctx context.Context) error {
	s.once.Do(func() {
		var errs []error
		if err := s.Driver.Quit(); err != nil {
			errs = append(errs, fmt.Errorf("failed to quit webdriver session: %w", err))
		}
		if err := platform.Stop(ctx, s.Process); err != nil {
			errs = append(errs, err)
		}
		s.quitErr = errors.Join(errs...)
		if s.quitErr != nil {
			s.logger.Warn("Driver session did not shut down cleanly.", zap.Error(s.quitErr))
		} else {
			s.logger.Info("Driver session closed.", zap.Duration("uptime", time.Since(s.StartedAt)))
		}
	})
	return s.quitErr
}
