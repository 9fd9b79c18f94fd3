// Package nlu talks to the natural-language-understanding service that turns
// a message into an intent (a dotted action key) plus parameters.
//
// The gateway only translates; it never acts on the result. One call per
// message, no batching and no retries: a failed query drops that message.
package nlu

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Fulfillment is the service's default reply.
type Fulfillment struct {
	Speech string `json:"speech"`
}

// Result is the interpretation of one message.
type Result struct {
	Action      string         `json:"action"`
	Parameters  map[string]any `json:"parameters"`
	Fulfillment Fulfillment    `json:"fulfillment"`
}

// Gateway queries the NLU service.
type Gateway interface {
	Query(ctx context.Context, text, sessionID string) (*Result, error)
}

// RequestError reports any failure of a query: transport errors, non-2xx
// responses, errors reported by the service and undecodable payloads.
type RequestError struct {
	Backend string
	Status  int
	Err     error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("nlu %s: HTTP %d: %v", e.Backend, e.Status, e.Err)
	}
	return fmt.Sprintf("nlu %s: %v", e.Backend, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

var sessionNamespace = uuid.MustParse("5c6a8a0e-6f1d-4e55-9d0b-3f5e1c2a7b10")

// SessionID derives a stable session identifier for a conversation so the
// service keeps its context across messages and restarts. Messages outside a
// thread share the conversation's session.
func SessionID(expression, threadID string) string {
	return uuid.NewSHA1(sessionNamespace, []byte(expression+"\x00"+threadID)).String()
}
