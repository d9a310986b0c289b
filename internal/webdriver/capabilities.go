// Package webdriver builds the Chrome capabilities used for new sessions and
// opens W3C WebDriver sessions against a running chromedriver.
package webdriver

import (
	"fmt"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"

	"github.com/xkilldash9x/undetected-chromedriver/internal/config"
)

// DefaultUserAgent is sent when the configuration does not name one.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/102.0.0.0 Safari/537.36"

// DefaultCapabilities returns the Chrome capabilities for an undetected session.
// The result can be modified before it is passed to the launcher.
func DefaultCapabilities(cfg config.BrowserConfig) selenium.Capabilities {
	width, height := cfg.WindowWidth, cfg.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	args := []string{
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-blink-features=AutomationControlled",
		fmt.Sprintf("window-size=%d,%d", width, height),
		"user-agent=" + userAgent,
		"disable-infobars",
	}
	if cfg.Headless {
		args = append(args, "--headless=new")
	}
	args = append(args, cfg.Args...)

	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{
		Path:            cfg.Binary,
		Args:            args,
		ExcludeSwitches: []string{"enable-automation"},
		W3C:             true,
	})
	return caps
}
