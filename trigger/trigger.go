// Package trigger implements the local trigger channel: a line-based
// loopback socket accepting JSON requests that start task runs on an
// already-running controller.
//
// Protocol: one JSON object per line in each direction. A request is
// {"action": "start_task", "platform": "...", "query": "..."} and the
// server answers with a single JSON acknowledgement.
package trigger

import (
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultAddr is the conventional trigger endpoint.
const DefaultAddr = "127.0.0.1:9999"

// Actions accepted on the trigger channel.
const (
	ActionStartTask     = "start_task"
	ActionListPlatforms = "list_platforms"
	ActionPing          = "ping"
)

// Request is one trigger message.
type Request struct {
	Action   string `json:"action"`
	Platform string `json:"platform,omitempty"`
	Query    string `json:"query,omitempty"`
}

// Validate checks the request shape. start_task requires a platform.
func (r *Request) Validate() error {
	switch r.Action {
	case ActionStartTask:
		if r.Platform == "" {
			return errMissingPlatform
		}
		return nil
	case ActionListPlatforms, ActionPing:
		return nil
	default:
		return errUnknownAction
	}
}

// Ack is the single acknowledgement sent per request.
type Ack struct {
	Status    string   `json:"status"` // ok or error
	Message   string   `json:"message,omitempty"`
	Platforms []string `json:"platforms,omitempty"`
}

// OK builds a success acknowledgement.
func OK(message string) Ack {
	return Ack{Status: "ok", Message: message}
}

// Error builds an error acknowledgement.
func Error(message string) Ack {
	return Ack{Status: "error", Message: message}
}
