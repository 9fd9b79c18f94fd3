// Package identity owns the bot's own directory identity: the names and tag
// it answers to, and the only code path allowed to change them.
package identity

import (
	"context"
	"regexp"
	"strings"
)

// Tag is the addressable handle of a user (rendered "@slug").
type Tag struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

// Org is the organisation a user belongs to.
type Org struct {
	Slug string `json:"slug"`
}

// Identity is the directory representation of the bot user.
type Identity struct {
	ID         string `json:"id"`
	FirstName  string `json:"first_name"`
	MiddleName string `json:"middle_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Tag        Tag    `json:"tag"`
	Org        Org    `json:"org"`
}

// FullName joins the non-empty name slots with single spaces.
func (i Identity) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{i.FirstName, i.MiddleName, i.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Handle renders the tag as users type it.
func (i Identity) Handle() string {
	return "@" + i.Tag.Slug
}

// Device is a client registered for the bot account.
type Device struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	LastSeen string `json:"lastSeen,omitempty"`
}

// UserFields is a partial user update. Only non-nil fields are sent.
type UserFields struct {
	FirstName  *string `json:"first_name,omitempty"`
	MiddleName *string `json:"middle_name,omitempty"`
	LastName   *string `json:"last_name,omitempty"`
}

// Empty reports whether the update would change nothing.
func (f UserFields) Empty() bool {
	return f.FirstName == nil && f.MiddleName == nil && f.LastName == nil
}

// TagFields is a partial tag update.
type TagFields struct {
	Slug string `json:"slug"`
}

// Directory is the external identity service.
type Directory interface {
	PatchUser(ctx context.Context, id string, fields UserFields) (*Identity, error)
	PatchTag(ctx context.Context, id string, fields TagFields) (*Tag, error)
	ListDevices(ctx context.Context) ([]Device, error)
	ListUsers(ctx context.Context, ids []string) ([]Identity, error)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Slug normalises a display name into a tag slug: trimmed, lower-cased,
// whitespace runs collapsed into a single ".".
func Slug(name string) string {
	return strings.ToLower(whitespaceRun.ReplaceAllString(strings.TrimSpace(name), "."))
}
