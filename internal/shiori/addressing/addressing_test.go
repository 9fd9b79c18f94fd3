package addressing_test

import (
	"testing"

	"github.com/bdobrica/shiori/internal/shiori/addressing"
	"github.com/bdobrica/shiori/internal/shiori/distribution"
	"github.com/bdobrica/shiori/internal/shiori/identity"
)

var bot = identity.Identity{
	ID:        "bot",
	FirstName: "Shiori",
	LastName:  "Kanzaki",
	Tag:       identity.Tag{ID: "t", Slug: "shiori.bot"},
}

func dist(members ...string) *distribution.Distribution {
	return &distribution.Distribution{Expression: "x", Members: members}
}

func TestNeedsResponse(t *testing.T) {
	tests := []struct {
		name    string
		members []string
		text    string
		want    bool
	}{
		{"direct message", []string{"bot", "alice"}, "what's the weather", true},
		{"only sender", []string{"alice"}, "hello", true},
		{"empty distribution", nil, "hello", true},
		{"group without mention", []string{"bot", "alice", "bob"}, "lunch anyone?", false},
		{"first name", []string{"bot", "alice", "bob"}, "hey shiori, what's your name", true},
		{"last name upper", []string{"bot", "alice", "bob"}, "KANZAKI are you there", true},
		{"slug substring", []string{"bot", "alice", "bob"}, "ping @Shiori.Bot please", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := addressing.NeedsResponse(bot, "alice", dist(tt.members...), tt.text)
			if got != tt.want {
				t.Errorf("NeedsResponse = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNeedsResponse_SlugDotIsLiteral(t *testing.T) {
	b := identity.Identity{ID: "bot", Tag: identity.Tag{Slug: "a.b"}}
	if addressing.NeedsResponse(b, "alice", dist("bot", "alice", "bob"), "axb") {
		t.Error("dot in slug matched an arbitrary character")
	}
	if !addressing.NeedsResponse(b, "alice", dist("bot", "alice", "bob"), "hi @A.B") {
		t.Error("slug mention not detected")
	}
}

func TestNeedsResponse_NoNamesNeverMatchesGroup(t *testing.T) {
	b := identity.Identity{ID: "bot"}
	if addressing.NeedsResponse(b, "alice", dist("bot", "alice", "bob"), "anything") {
		t.Error("empty identity matched group message")
	}
}
