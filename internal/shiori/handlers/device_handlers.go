package handlers

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/bdobrica/shiori/internal/shiori/intents"
)

// HandleDeviceAgentList lists the devices registered for the bot account.
func (h *Handlers) HandleDeviceAgentList(ctx context.Context, _ intents.Params) (intents.Outcome, error) {
	devices, err := h.identity.Directory().ListDevices(ctx)
	if err != nil {
		return intents.Outcome{}, fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		return intents.Reply("I don't have any devices registered."), nil
	}

	var text, markup strings.Builder
	fmt.Fprintf(&text, "I'm registered on %d device(s):\n", len(devices))
	fmt.Fprintf(&markup, "<p>I'm registered on %d device(s):</p><ul>", len(devices))
	for _, d := range devices {
		fmt.Fprintf(&text, "• %s (#%d)\n", d.Name, d.ID)
		fmt.Fprintf(&markup, "<li>%s <code>#%d</code></li>", html.EscapeString(d.Name), d.ID)
	}
	markup.WriteString("</ul>")

	plain := strings.TrimRight(text.String(), "\n")
	rendered := markup.String()
	return intents.Outcome{Patch: &intents.Patch{Text: &plain, HTML: &rendered}}, nil
}
