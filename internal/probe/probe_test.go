package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/undetected-chromedriver/internal/mocks"
)

const headlessPage = `<html><body>
<div id="res">
  <p>
    You are not Chrome headless
  </p>
</div>
</body></html>`

func TestCheckHeadless(t *testing.T) {
	driver := new(mocks.MockDriver)
	driver.On("Get", "https://example.test/headless").Return(nil)
	driver.On("PageSource").Return(headlessPage, nil)

	text, err := CheckHeadless(context.Background(), driver, "https://example.test/headless", `//*[@id="res"]/p`)
	require.NoError(t, err)
	assert.Equal(t, "You are not Chrome headless", text)
	driver.AssertExpectations(t)
}

func TestCheckHeadless_Errors(t *testing.T) {
	t.Run("navigation failure", func(t *testing.T) {
		driver := new(mocks.MockDriver)
		navErr := errors.New("net::ERR_NAME_NOT_RESOLVED")
		driver.On("Get", "https://nowhere.test").Return(navErr)

		_, err := CheckHeadless(context.Background(), driver, "https://nowhere.test", "//p")
		assert.ErrorIs(t, err, navErr)
		driver.AssertNotCalled(t, "PageSource")
	})

	t.Run("page source failure", func(t *testing.T) {
		driver := new(mocks.MockDriver)
		srcErr := errors.New("no such window")
		driver.On("Get", "https://example.test").Return(nil)
		driver.On("PageSource").Return("", srcErr)

		_, err := CheckHeadless(context.Background(), driver, "https://example.test", "//p")
		assert.ErrorIs(t, err, srcErr)
	})

	t.Run("cancelled before navigation", func(t *testing.T) {
		driver := new(mocks.MockDriver)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := CheckHeadless(ctx, driver, "https://example.test", "//p")
		assert.ErrorIs(t, err, context.Canceled)
		driver.AssertNotCalled(t, "Get", "https://example.test")
	})
}

func TestResultText(t *testing.T) {
	_, err := ResultText(headlessPage, `//*[@id="missing"]`)
	assert.ErrorIs(t, err, ErrResultNotFound)

	_, err = ResultText(headlessPage, `//*[@id=`)
	assert.ErrorContains(t, err, "invalid xpath")

	text, err := ResultText(`<p>  headless  </p>`, "//p")
	require.NoError(t, err)
	assert.Equal(t, "headless", text)
}

func TestDebuggerAddress(t *testing.T) {
	addr, err := DebuggerAddress(selenium.Capabilities{
		"goog:chromeOptions": map[string]interface{}{"debuggerAddress": "localhost:41235"},
	})
	require.NoError(t, err)
	assert.Equal(t, "localhost:41235", addr)

	for name, caps := range map[string]selenium.Capabilities{
		"no chrome options": {},
		"no address":        {"goog:chromeOptions": map[string]interface{}{}},
		"blank address":     {"goog:chromeOptions": map[string]interface{}{"debuggerAddress": " "}},
		"wrong type":        {"goog:chromeOptions": "localhost:1"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := DebuggerAddress(caps)
			assert.ErrorIs(t, err, ErrNoDebuggerAddress)
		})
	}
}

func TestMarkerReport_Clean(t *testing.T) {
	assert.True(t, MarkerReport{}.Clean())
	assert.False(t, MarkerReport{Webdriver: true}.Clean())
	assert.False(t, MarkerReport{Properties: []string{"document.$cdc_asdjflasutopfhvcZLmcfl_"}}.Clean())
}

func TestFirstPage(t *testing.T) {
	targets := []*target.Info{
		{TargetID: "sw", Type: "service_worker"},
		nil,
		{TargetID: "tab", Type: "page"},
		{TargetID: "tab2", Type: "page"},
	}
	assert.Equal(t, target.ID("tab"), firstPage(targets).TargetID)
	assert.Nil(t, firstPage(targets[:2]))
}

func TestCDP_Markers_Unreachable(t *testing.T) {
	c := NewCDP(zaptest.NewLogger(t), 2*time.Second)
	_, err := c.Markers(context.Background(), "127.0.0.1:1")
	assert.Error(t, err)
}
