package engine

import (
	"context"
	"net/url"

	"github.com/drover-io/drover/types"
)

// runPagination loops extract -> sink -> advance until a cap is hit or
// the site reports no next page. Page and item counts are both hard
// caps; whichever is hit first ends the loop. A next-page action that
// fails even after retries is treated as "no next page", not as a run
// failure: many sites simply drop the control on the last page.
func (e *Engine) runPagination(ctx context.Context, opts Options, tc *TraversalContext) ([]map[string]any, error) {
	var results []map[string]any

	for page := 1; page <= opts.MaxPages; page++ {
		e.emit("page_progress", map[string]any{
			"current_page": page,
			"max_pages":    opts.MaxPages,
			"items_so_far": len(results),
		})

		items, err := e.extract(ctx)
		if err != nil {
			return results, err
		}
		tc.PagesVisited++
		e.collector.IncPagesVisited()

		if err := e.collect(tc, &results, items); err != nil {
			return results, err
		}
		if len(results) >= opts.MaxItems {
			break
		}

		var hasNext bool
		err = e.act(ctx, func(ctx context.Context) error {
			var opErr error
			hasNext, opErr = e.driver.NextPage(ctx)
			return opErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return results, err
			}
			e.logger.Warn("next-page action failed, ending pagination", map[string]any{
				"page":  page,
				"error": err.Error(),
			})
			break
		}
		if !hasNext {
			break
		}
	}

	return results, nil
}

// runInfiniteScroll alternates extract and scroll-to-bottom until the
// feed stops growing. Extracts are cumulative: the executor reports
// every item currently rendered, so only items beyond the count already
// collected are sunk.
//
// The feed counts as exhausted once StableStreak consecutive extracts
// report the same item count ([5,8,8,8] with streak 3 stops at the
// third 8).
func (e *Engine) runInfiniteScroll(ctx context.Context, opts Options, tc *TraversalContext) ([]map[string]any, error) {
	var results []map[string]any
	lastCount := -1

	for {
		items, err := e.extract(ctx)
		if err != nil {
			return results, err
		}
		tc.PagesVisited++
		e.collector.IncPagesVisited()

		if len(items) == lastCount {
			tc.StableStreak++
		} else {
			tc.StableStreak = 1
			lastCount = len(items)
		}

		if len(items) > len(results) {
			fresh := items[len(results):]
			if len(results)+len(fresh) > opts.MaxItems {
				fresh = fresh[:opts.MaxItems-len(results)]
			}
			if err := e.collect(tc, &results, fresh); err != nil {
				return results, err
			}
			e.emit("scroll_progress", map[string]any{
				"items_so_far": len(results),
				"max_items":    opts.MaxItems,
			})
		}

		if tc.StableStreak >= opts.StableStreak {
			break
		}
		if len(results) >= opts.MaxItems {
			break
		}

		err = e.act(ctx, func(ctx context.Context) error {
			return e.driver.ScrollToBottom(ctx)
		})
		if err != nil {
			return results, err
		}
		if err := e.sleep(ctx, opts.ScrollDelay); err != nil {
			return results, err
		}
	}

	return results, nil
}

// runDepth walks links breadth-first from the seed URL. BFS guarantees
// the shallowest matching content is returned first and bounds memory
// by the visited set rather than recursion depth.
func (e *Engine) runDepth(ctx context.Context, opts Options, tc *TraversalContext) ([]map[string]any, error) {
	if opts.StartURL == "" {
		return nil, types.NewTaskError(types.CodeConfigError, "depth traversal requires a start URL")
	}
	seedDomain := domainOf(opts.StartURL)

	type entry struct {
		url   string
		depth int
	}
	queue := []entry{{url: opts.StartURL, depth: 0}}
	enqueued := map[string]struct{}{opts.StartURL: {}}

	var results []map[string]any

	for len(queue) > 0 {
		if len(results) >= opts.MaxItems || len(tc.Visited) >= opts.MaxVisited {
			break
		}

		next := queue[0]
		queue = queue[1:]

		if _, seen := tc.Visited[next.url]; seen {
			continue
		}
		tc.Visited[next.url] = struct{}{}
		tc.CurrentDepth = next.depth

		if opts.SameDomainOnly && domainOf(next.url) != seedDomain {
			continue
		}

		err := e.act(ctx, func(ctx context.Context) error {
			return e.driver.Navigate(ctx, next.url)
		})
		if err != nil {
			return results, err
		}

		items, err := e.extract(ctx)
		if err != nil {
			return results, err
		}
		tc.PagesVisited++
		e.collector.IncPagesVisited()

		if err := e.collect(tc, &results, items); err != nil {
			return results, err
		}

		e.emit("depth_progress", map[string]any{
			"current_depth": next.depth,
			"max_depth":     opts.MaxDepth,
			"pages_visited": len(tc.Visited),
			"items_so_far":  len(results),
		})

		if next.depth < opts.MaxDepth {
			links, err := e.links(ctx)
			if err != nil {
				return results, err
			}
			for _, link := range links {
				if _, seen := tc.Visited[link]; seen {
					continue
				}
				if _, queued := enqueued[link]; queued {
					continue
				}
				enqueued[link] = struct{}{}
				queue = append(queue, entry{url: link, depth: next.depth + 1})
			}
		}
	}

	return results, nil
}

// links runs the link-extraction action under pacing and retry.
func (e *Engine) links(ctx context.Context) ([]string, error) {
	var links []string
	err := e.act(ctx, func(ctx context.Context) error {
		var opErr error
		links, opErr = e.driver.ExtractLinks(ctx)
		return opErr
	})
	return links, err
}

// domainOf extracts the host from a URL, empty on parse failure.
func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
