// Package handlers implements the intents that read and change the bot's own
// identity.
package handlers

import (
	"strings"

	"github.com/bdobrica/shiori/internal/shiori/identity"
	"github.com/bdobrica/shiori/internal/shiori/intents"
)

// Chooser picks an index in [0, n). *math/rand/v2.Rand satisfies it.
type Chooser interface {
	IntN(n int) int
}

// Handlers holds the identity every handler reads and mutates.
type Handlers struct {
	identity *identity.Holder
	choose   Chooser
}

// New returns handlers bound to holder. choose drives the phrasing variety of
// the self description; tests pass a fixed chooser.
func New(holder *identity.Holder, choose Chooser) *Handlers {
	return &Handlers{identity: holder, choose: choose}
}

// Routes declares every intent served by Handlers.
func (h *Handlers) Routes() []intents.Route {
	return []intents.Route{
		{Capability: "HandleNameAgentGet", Handler: h.HandleNameAgentGet},
		{Capability: "HandleNameAgentChange", Handler: h.HandleNameAgentChange},
		{Capability: "HandleNameAgentDelete", Handler: h.HandleNameAgentDelete},
		{Capability: "HandleDeviceAgentList", Handler: h.HandleDeviceAgentList},
	}
}

type slot int

const (
	slotUnknown slot = iota
	slotFirst
	slotMiddle
	slotLast
	slotTag
)

var slotLabels = map[slot]string{
	slotFirst:  "first name",
	slotMiddle: "middle name",
	slotLast:   "last name",
	slotTag:    "tag",
}

// parseSlot maps the NLU "type" parameter onto a name slot.
func parseSlot(raw string) slot {
	switch strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(raw, "_", " "))), " ") {
	case "first name", "first", "given name", "firstname":
		return slotFirst
	case "middle name", "middle", "middlename":
		return slotMiddle
	case "last name", "last", "surname", "family name", "lastname":
		return slotLast
	case "tag", "handle", "username", "user name":
		return slotTag
	}
	return slotUnknown
}

func (s slot) value(id identity.Identity) string {
	switch s {
	case slotFirst:
		return id.FirstName
	case slotMiddle:
		return id.MiddleName
	case slotLast:
		return id.LastName
	case slotTag:
		if id.Tag.Slug == "" {
			return ""
		}
		return id.Handle()
	}
	return ""
}
