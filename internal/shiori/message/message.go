// Package message defines the transport-neutral shapes of inbound events.
package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Part types.
const (
	TypeTextPlain = "text/plain"
	TypeTextHTML  = "text/html"
)

// Part is one typed representation of a message body.
type Part struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Incoming is a single inbound message. It lives for one event.
type Incoming struct {
	ID                     string
	SourceID               string
	DistributionExpression string
	ThreadID               string
	Parts                  []Part
}

// Text returns the value of the first text/plain part.
func (m *Incoming) Text() (string, bool) {
	for _, p := range m.Parts {
		if p.Type == TypeTextPlain {
			return p.Value, true
		}
	}
	return "", false
}

// TrustChange is raised when a peer's trust state changes and must be
// acknowledged before the conversation can continue.
type TrustChange struct {
	PeerID string
	Reason string
	Accept func(ctx context.Context) error
}

// ErrNoExchange means the payload is not an exchange document.
var ErrNoExchange = errors.New("message: payload is not an exchange")

type exchange struct {
	Version  int    `json:"version"`
	ThreadID string `json:"threadId"`
	MsgID    string `json:"messageId"`
	Sender   struct {
		UserID string `json:"userId"`
	} `json:"sender"`
	Distribution struct {
		Expression string `json:"expression"`
	} `json:"distribution"`
	Data struct {
		Body []Part `json:"body"`
	} `json:"data"`
}

// DecodeExchange parses a JSON exchange payload: an array whose first element
// is the logical message, carrying its typed body parts under data.body.
func DecodeExchange(raw []byte) (*Incoming, error) {
	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoExchange, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrNoExchange)
	}
	var ex exchange
	if err := json.Unmarshal(docs[0], &ex); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoExchange, err)
	}
	if ex.Version == 0 && len(ex.Data.Body) == 0 {
		return nil, fmt.Errorf("%w: missing version and body", ErrNoExchange)
	}
	return &Incoming{
		ID:                     ex.MsgID,
		SourceID:               ex.Sender.UserID,
		DistributionExpression: ex.Distribution.Expression,
		ThreadID:               ex.ThreadID,
		Parts:                  ex.Data.Body,
	}, nil
}
