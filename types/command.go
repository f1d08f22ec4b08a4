// Package types defines core domain types for the Drover controller.
//
//nolint:revive // types is a common Go package naming convention
package types

// Action identifies an atomic UI action the browser executor can perform.
type Action string

// Action constants per the extension command contract.
const (
	ActionNavigate        Action = "navigate"
	ActionType            Action = "type"
	ActionClick           Action = "click"
	ActionWaitForSelector Action = "wait_for_selector"
	ActionExtractPage     Action = "extract_page"
	ActionExtractLinks    Action = "extract_links"
	ActionScroll          Action = "scroll"
	ActionPing            Action = "ping"
)

// Command is one atomic instruction sent to the browser executor.
// The ID is assigned by the bridge at send time and is unique for the
// process lifetime. Immutable once sent.
type Command struct {
	// ID is the correlation id tying this command to its result.
	ID int64 `json:"id"`
	// Action is the action discriminator.
	Action Action `json:"action"`
	// Params carries action-specific parameters (url, selector, value...).
	Params map[string]any `json:"-"`
}

// ResultStatus is the status reported in a result frame.
type ResultStatus string

const (
	// StatusSuccess indicates the action completed.
	StatusSuccess ResultStatus = "success"
	// StatusError indicates the action failed.
	StatusError ResultStatus = "error"
)

// Result is the executor's response to a single Command.
// Exactly one Result is ever delivered per Command id; a Result may
// never arrive, in which case the bridge synthesizes a TIMEOUT error.
type Result struct {
	// ID matches the Command this result answers.
	ID int64 `json:"id"`
	// Status is success or error.
	Status ResultStatus `json:"status"`
	// Data is the action payload (extracted items, links...).
	Data any `json:"data,omitempty"`
	// Message is a human-readable error description.
	Message string `json:"message,omitempty"`
	// Code classifies synthetic and executor-reported failures.
	Code ErrorCode `json:"code,omitempty"`
}

// OK returns true if the result reports success.
func (r *Result) OK() bool {
	return r != nil && r.Status == StatusSuccess
}

// Err converts an error result into a TaskError.
// Returns nil for success results.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	code := r.Code
	if code == "" {
		code = ClassifyMessage(r.Message)
	}
	return &TaskError{Code: code, Message: r.Message}
}
