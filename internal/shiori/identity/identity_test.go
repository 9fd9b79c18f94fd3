package identity_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bdobrica/shiori/internal/shiori/identity"
	"github.com/bdobrica/shiori/internal/shiori/identity/identitytest"
)

func bot() identity.Identity {
	return identity.Identity{
		ID:        "u-1",
		FirstName: "Shiori",
		LastName:  "Bot",
		Tag:       identity.Tag{ID: "t-1", Slug: "shiori"},
		Org:       identity.Org{Slug: "acme"},
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"New Name":          "new.name",
		"  Spaced   Out  ":  "spaced.out",
		"tab\tand\nnewline": "tab.and.newline",
		"single":            "single",
		"":                  "",
	}
	for in, want := range tests {
		if got := identity.Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFullName(t *testing.T) {
	id := bot()
	if got := id.FullName(); got != "Shiori Bot" {
		t.Errorf("FullName = %q", got)
	}
	id.MiddleName = "Q"
	if got := id.FullName(); got != "Shiori Q Bot" {
		t.Errorf("FullName with middle = %q", got)
	}
}

func TestLoad(t *testing.T) {
	dir := identitytest.New(bot())
	h, err := identity.Load(context.Background(), dir, "u-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.Current().Tag.Slug != "shiori" {
		t.Errorf("unexpected snapshot: %+v", h.Current())
	}

	if _, err := identity.Load(context.Background(), dir, "u-404"); !errors.Is(err, identity.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestHolder_PatchUserReplacesSnapshot(t *testing.T) {
	dir := identitytest.New(bot())
	h := identity.NewHolder(dir, bot())

	var notified identity.Identity
	h.OnChange(func(_ context.Context, id identity.Identity) { notified = id })

	first := "Ada"
	got, err := h.PatchUser(context.Background(), identity.UserFields{FirstName: &first})
	if err != nil {
		t.Fatalf("PatchUser: %v", err)
	}
	if got.FirstName != "Ada" || h.Current().FirstName != "Ada" {
		t.Errorf("snapshot not replaced: %+v", h.Current())
	}
	if notified.FirstName != "Ada" {
		t.Errorf("OnChange not called with new identity: %+v", notified)
	}
}

func TestHolder_PatchTag(t *testing.T) {
	dir := identitytest.New(bot())
	h := identity.NewHolder(dir, bot())

	got, err := h.PatchTag(context.Background(), identity.TagFields{Slug: "new.name"})
	if err != nil {
		t.Fatalf("PatchTag: %v", err)
	}
	if got.Tag.Slug != "new.name" || got.FirstName != "Shiori" {
		t.Errorf("unexpected identity after tag patch: %+v", got)
	}
}

func TestHolder_FailedPatchKeepsSnapshot(t *testing.T) {
	dir := identitytest.New(bot())
	dir.Fail = true
	h := identity.NewHolder(dir, bot())

	last := "Lovelace"
	if _, err := h.PatchUser(context.Background(), identity.UserFields{LastName: &last}); err == nil {
		t.Fatal("expected error")
	}
	if h.Current().LastName != "Bot" {
		t.Errorf("snapshot changed after failure: %+v", h.Current())
	}
}
