package handlers

import (
	"context"
	"strings"

	"github.com/bdobrica/shiori/internal/shiori/identity"
	"github.com/bdobrica/shiori/internal/shiori/intents"
)

// Prompts and refusals.
const (
	AskChangeTarget = "To what?"
	AskDeleteTarget = "Delete what?"
)

// HandleNameAgentGet answers "what is your (first/last/...) name".
func (h *Handlers) HandleNameAgentGet(ctx context.Context, p intents.Params) (intents.Outcome, error) {
	id := h.identity.Current()

	if typ := p.String("type"); typ != "" {
		s := parseSlot(typ)
		if v := s.value(id); v != "" {
			return intents.Reply("%s", v), nil
		}
		return intents.Reply("I don't have a %s.", label(s, typ)), nil
	}

	switch h.choose.IntN(3) {
	case 0:
		return intents.Reply("I'm %s.", id.FullName()), nil
	case 1:
		return intents.Reply("My name is %s, but you can call me %s.", id.FirstName, id.Handle()), nil
	default:
		return intents.Reply("Call me %s. My tag is %s.", id.FirstName, id.Handle()), nil
	}
}

// HandleNameAgentChange renames the bot or changes its tag.
func (h *Handlers) HandleNameAgentChange(ctx context.Context, p intents.Params) (intents.Outcome, error) {
	name := p.String("name")
	typ := p.String("type")

	if typ == "" && name == "" {
		return intents.Reply(AskChangeTarget), nil
	}

	var fields identity.UserFields
	if typ != "" {
		s := parseSlot(typ)
		if s == slotUnknown {
			return intents.Reply("I don't have a %s to change.", typ), nil
		}
		if name == "" {
			return intents.Reply(AskChangeTarget), nil
		}
		switch s {
		case slotTag:
			slug := identity.Slug(name)
			id, err := h.identity.PatchTag(ctx, identity.TagFields{Slug: slug})
			if err != nil {
				return intents.Outcome{}, err
			}
			return intents.Reply("Okay, my tag is now %s.", id.Handle()), nil
		case slotFirst:
			fields.FirstName = &name
		case slotMiddle:
			fields.MiddleName = &name
		case slotLast:
			fields.LastName = &name
		}
	} else {
		fields = splitName(name)
	}

	id, err := h.identity.PatchUser(ctx, fields)
	if err != nil {
		return intents.Outcome{}, err
	}
	return intents.Reply("Okay, my name is now %s.", id.FullName()), nil
}

// HandleNameAgentDelete clears a name slot. Only the middle name may go.
func (h *Handlers) HandleNameAgentDelete(ctx context.Context, p intents.Params) (intents.Outcome, error) {
	typ := p.String("type")
	if typ == "" {
		return intents.Reply(AskDeleteTarget), nil
	}

	s := parseSlot(typ)
	switch s {
	case slotFirst, slotLast, slotTag:
		return intents.Reply("I can't delete my %s.", slotLabels[s]), nil
	case slotUnknown:
		return intents.Reply("I don't have a %s.", typ), nil
	}

	empty := ""
	id, err := h.identity.PatchUser(ctx, identity.UserFields{MiddleName: &empty})
	if err != nil {
		return intents.Outcome{}, err
	}
	return intents.Reply("Okay, I no longer have a middle name. I'm %s now.", id.FullName()), nil
}

// splitName assigns up to three whitespace-separated tokens to the name
// slots: one token sets the first name, two set first and last, three set
// all of them. Anything past the second token belongs to the last name when
// there are more than three.
func splitName(name string) identity.UserFields {
	tokens := strings.Fields(name)
	var f identity.UserFields
	switch len(tokens) {
	case 0:
	case 1:
		f.FirstName = &tokens[0]
	case 2:
		f.FirstName, f.LastName = &tokens[0], &tokens[1]
	default:
		last := strings.Join(tokens[2:], " ")
		f.FirstName, f.MiddleName, f.LastName = &tokens[0], &tokens[1], &last
	}
	return f
}

func label(s slot, raw string) string {
	if l, ok := slotLabels[s]; ok {
		return l
	}
	return raw
}

