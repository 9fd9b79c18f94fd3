// Package response builds the single reply sent for a qualifying message.
package response

import (
	"fmt"
	"html"

	"github.com/bdobrica/shiori/internal/shiori/distribution"
	"github.com/bdobrica/shiori/internal/shiori/intents"
)

// Message is an outgoing reply.
type Message struct {
	Distribution *distribution.Distribution
	ThreadID     string
	Text         string
	HTML         string
}

// ApologyPrefix starts the text of every reply to a failed handler.
const ApologyPrefix = "Sorry, something went wrong while handling that: "

// NothingToDo is the reply for intents without a handler.
func NothingToDo(action string) string {
	return fmt.Sprintf("I have nothing to do with: %q", action)
}

// Compose applies a handler result to base, which already carries the
// distribution, thread and the NLU service's default speech.
//
//   - err != nil: apology text with the error, plus a <pre> rendering in HTML
//   - !found: NothingToDo(action)
//   - text outcome: replaces Text
//   - patch outcome: sets the patched fields, everything else is kept
//   - empty outcome: base unchanged
func Compose(base Message, action string, out intents.Outcome, found bool, err error) Message {
	msg := base
	switch {
	case err != nil:
		msg.Text = ApologyPrefix + err.Error()
		msg.HTML = "<p>" + html.EscapeString(ApologyPrefix) + "</p><pre><code>" + html.EscapeString(err.Error()) + "</code></pre>"
	case !found:
		msg.Text = NothingToDo(action)
		msg.HTML = ""
	case out.Patch != nil:
		if out.Patch.Text != nil {
			msg.Text = *out.Patch.Text
		}
		if out.Patch.HTML != nil {
			msg.HTML = *out.Patch.HTML
		}
		if out.Text != "" && out.Patch.Text == nil {
			msg.Text = out.Text
		}
	case out.Text != "":
		msg.Text = out.Text
		msg.HTML = ""
	}
	return msg
}
