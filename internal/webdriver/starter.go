package webdriver

import (
	"context"
	"fmt"

	"github.com/tebeka/selenium"
	"go.uber.org/zap"

	"github.com/xkilldash9x/undetected-chromedriver/internal/launcher"
)

// RemoteStarter opens sessions with the selenium remote client.
type RemoteStarter struct {
	logger    *zap.Logger
	newRemote func(caps selenium.Capabilities, urlPrefix string) (selenium.WebDriver, error)
}

var _ launcher.SessionStarter = (*RemoteStarter)(nil)

// NewRemoteStarter creates a RemoteStarter.
func NewRemoteStarter(logger *zap.Logger) *RemoteStarter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteStarter{
		logger:    logger.Named("webdriver"),
		newRemote: selenium.NewRemote,
	}
}

type remoteResult struct {
	wd  selenium.WebDriver
	err error
}

// Start sends one new-session request. The selenium client has no context
// support, so the request runs in its own goroutine; if ctx ends first, a
// session that still arrives later is quit instead of leaked.
func (s *RemoteStarter) Start(ctx context.Context, urlPrefix string, caps selenium.Capabilities) (launcher.Driver, error) {
	ch := make(chan remoteResult, 1)
	go func() {
		wd, err := s.newRemote(caps, urlPrefix)
		ch <- remoteResult{wd: wd, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				if err := r.wd.Quit(); err != nil {
					s.logger.Debug("Failed to quit abandoned session.", zap.Error(err))
				}
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("failed to create session at %s: %w", urlPrefix, r.err)
		}
		return r.wd, nil
	}
}
