package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
)

// Page is the part of a WebDriver session the headless check drives.
type Page interface {
	Get(url string) error
	PageSource() (string, error)
}

// ErrResultNotFound is returned when the result XPath matches nothing.
var ErrResultNotFound = errors.New("result element not found")

// CheckHeadless navigates page to url and returns the trimmed text of the
// first node matching xpath.
func CheckHeadless(ctx context.Context, page Page, url, xpath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := page.Get(url); err != nil {
		return "", fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	source, err := page.PageSource()
	if err != nil {
		return "", fmt.Errorf("failed to read page source: %w", err)
	}
	return ResultText(source, xpath)
}

// ResultText evaluates xpath over an HTML document.
func ResultText(source, xpath string) (string, error) {
	doc, err := htmlquery.Parse(strings.NewReader(source))
	if err != nil {
		return "", fmt.Errorf("failed to parse page source: %w", err)
	}
	node, err := htmlquery.Query(doc, xpath)
	if err != nil {
		return "", fmt.Errorf("invalid xpath %q: %w", xpath, err)
	}
	if node == nil {
		return "", fmt.Errorf("%w: %s", ErrResultNotFound, xpath)
	}
	return strings.TrimSpace(htmlquery.InnerText(node)), nil
}
