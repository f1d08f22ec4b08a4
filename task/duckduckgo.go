package task

import (
	"context"
	"net/url"
	"time"

	"github.com/drover-io/drover/pace"
	"github.com/drover-io/drover/types"
)

// DefaultRegistry returns a registry with the first-party tasks
// installed. Platforms without a dedicated task fall back to the
// generic search task.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("duckduckgo", NewDuckDuckGoTask)
	return r
}

// DuckDuckGoTask is the first-party DuckDuckGo search task. DuckDuckGo
// accepts the query as a URL parameter, so the task navigates straight
// to the results page instead of typing into the landing-page form.
// Everything after navigation is the standard search flow.
type DuckDuckGoTask struct {
	deps Deps
}

// NewDuckDuckGoTask creates the DuckDuckGo task.
func NewDuckDuckGoTask(deps Deps) Task {
	return &DuckDuckGoTask{deps: deps}
}

// Execute implements Task.
func (t *DuckDuckGoTask) Execute(ctx context.Context, query string) (*types.TaskOutcome, error) {
	deps := t.deps
	if query != "" {
		platform := *deps.Platform
		platform.BaseURL = searchURL(platform.BaseURL, query)
		deps.Platform = &platform
		// The URL already carries the query; run the search flow with
		// an empty one so the form submission step is skipped.
		query = ""
	}
	search := &SearchTask{deps: deps, sleep: pace.Sleep, now: time.Now}
	return search.Execute(ctx, query)
}

// searchURL encodes the query into base's q parameter.
func searchURL(base, query string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	values := u.Query()
	values.Set("q", query)
	u.RawQuery = values.Encode()
	return u.String()
}
