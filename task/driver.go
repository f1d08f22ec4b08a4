// Package task composes the correlation bridge, traversal engine,
// pacing, and storage into complete platform runs.
package task

import (
	"context"
	"time"

	"github.com/drover-io/drover/cli/config"
	"github.com/drover-io/drover/log"
	"github.com/drover-io/drover/pace"
	"github.com/drover-io/drover/types"
)

// Commander is the command/result surface the driver needs. Satisfied
// by *bridge.Bridge; tests substitute a scripted fake.
type Commander interface {
	Do(ctx context.Context, action types.Action, params map[string]any, timeout time.Duration) (*types.Result, error)
}

const (
	// resultsWait bounds waiting for the results container to render.
	resultsWait = 10 * time.Second
	// nextPageProbe bounds checking whether a next-page control exists.
	// Deliberately short: on the last page the control is simply absent
	// and a long wait here would stall every run's final page.
	nextPageProbe = 2 * time.Second
	// defaultPageLoadDelay is the settle time after navigation.
	defaultPageLoadDelay = 2 * time.Second
)

// Driver executes page-level actions against the browser executor using
// a platform's configured selectors. It implements engine.PageDriver.
type Driver struct {
	br       Commander
	platform *config.Platform
	timeout  time.Duration
	sleep    pace.SleepFunc
	logger   *log.Logger
}

// NewDriver creates a driver for one platform.
func NewDriver(br Commander, platform *config.Platform, logger *log.Logger) *Driver {
	return &Driver{
		br:       br,
		platform: platform,
		timeout:  platform.CommandTimeout(),
		sleep:    pace.Sleep,
		logger:   logger,
	}
}

func (d *Driver) do(ctx context.Context, action types.Action, params map[string]any) (*types.Result, error) {
	return d.br.Do(ctx, action, params, d.timeout)
}

// Navigate loads url and waits out the configured page-load delay.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	if _, err := d.do(ctx, types.ActionNavigate, map[string]any{"url": url}); err != nil {
		return err
	}
	return d.settle(ctx)
}

// Type enters value into the element at selector.
func (d *Driver) Type(ctx context.Context, selector, value string) error {
	_, err := d.do(ctx, types.ActionType, map[string]any{
		"selector": selector,
		"value":    value,
	})
	return err
}

// Click clicks the element at selector.
func (d *Driver) Click(ctx context.Context, selector string) error {
	_, err := d.do(ctx, types.ActionClick, map[string]any{"selector": selector})
	return err
}

// WaitFor blocks until the element at selector renders, up to wait.
// The wait runs executor-side; the bridge timeout still backstops it.
func (d *Driver) WaitFor(ctx context.Context, selector string, wait time.Duration) error {
	_, err := d.do(ctx, types.ActionWaitForSelector, map[string]any{
		"selector": selector,
		"timeout":  wait.Milliseconds(),
	})
	return err
}

// ExtractPage waits for the results container (when configured) and
// returns the items currently visible on the page.
func (d *Driver) ExtractPage(ctx context.Context) ([]map[string]any, error) {
	if selector := d.platform.Selector("results_container"); selector != "" {
		if err := d.WaitFor(ctx, selector, resultsWait); err != nil {
			return nil, err
		}
	}

	result, err := d.do(ctx, types.ActionExtractPage, nil)
	if err != nil {
		return nil, err
	}
	return itemsFromData(result.Data), nil
}

// NextPage advances to the next result page. A missing next-page
// control means the last page was reached and is not a failure.
func (d *Driver) NextPage(ctx context.Context) (bool, error) {
	selector := d.platform.Selector("next_page_button")
	if selector == "" {
		return false, nil
	}

	if err := d.WaitFor(ctx, selector, nextPageProbe); err != nil {
		switch types.CodeOf(err) {
		case types.CodeElementNotFound, types.CodeTimeout, types.CodeExecutionError:
			d.logger.Debug("no next-page control, assuming last page", map[string]any{
				"selector": selector,
			})
			return false, nil
		}
		return false, err
	}

	if err := d.Click(ctx, selector); err != nil {
		return false, err
	}
	return true, d.settle(ctx)
}

// ScrollToBottom scrolls the page to its bottom.
func (d *Driver) ScrollToBottom(ctx context.Context) error {
	_, err := d.do(ctx, types.ActionScroll, map[string]any{"to": "bottom"})
	return err
}

// ExtractLinks returns the outbound links on the current page.
func (d *Driver) ExtractLinks(ctx context.Context) ([]string, error) {
	selector := d.platform.Selector("links")
	if selector == "" {
		selector = "a[href]"
	}

	result, err := d.do(ctx, types.ActionExtractLinks, map[string]any{"selector": selector})
	if err != nil {
		return nil, err
	}
	return linksFromData(result.Data), nil
}

// settle waits out the configured page-load delay so content renders
// before the next action.
func (d *Driver) settle(ctx context.Context) error {
	delay := d.platform.Settings.RateLimiting.PageLoadDelay.Duration
	if delay <= 0 {
		delay = defaultPageLoadDelay
	}
	return d.sleep(ctx, delay)
}

// itemsFromData coerces an extraction payload into item maps. The
// executor reports a JSON array; anything else yields no items.
func itemsFromData(data any) []map[string]any {
	list, ok := data.([]any)
	if !ok {
		return nil
	}
	items := make([]map[string]any, 0, len(list))
	for _, element := range list {
		if item, ok := element.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}

// linksFromData coerces a link-extraction payload into URLs.
func linksFromData(data any) []string {
	list, ok := data.([]any)
	if !ok {
		return nil
	}
	links := make([]string, 0, len(list))
	for _, element := range list {
		if link, ok := element.(string); ok && link != "" {
			links = append(links, link)
		}
	}
	return links
}
