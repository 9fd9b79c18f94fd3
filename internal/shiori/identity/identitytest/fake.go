// Package identitytest provides an in-memory identity.Directory for tests.
package identitytest

import (
	"context"
	"errors"
	"sync"

	"github.com/bdobrica/shiori/internal/shiori/identity"
)

// ErrUnavailable is what the fake returns when Fail is set.
var ErrUnavailable = errors.New("directory unavailable")

// Directory records every call and applies patches to its own copy of the
// user, like the real service would.
type Directory struct {
	mu        sync.Mutex
	User      identity.Identity
	Devices   []identity.Device
	Fail      bool
	UserPatch []identity.UserFields
	TagPatch  []identity.TagFields
}

// New returns a fake directory holding user.
func New(user identity.Identity) *Directory {
	return &Directory{User: user}
}

func (d *Directory) PatchUser(_ context.Context, id string, f identity.UserFields) (*identity.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.UserPatch = append(d.UserPatch, f)
	if d.Fail {
		return nil, ErrUnavailable
	}
	if f.FirstName != nil {
		d.User.FirstName = *f.FirstName
	}
	if f.MiddleName != nil {
		d.User.MiddleName = *f.MiddleName
	}
	if f.LastName != nil {
		d.User.LastName = *f.LastName
	}
	u := d.User
	return &u, nil
}

func (d *Directory) PatchTag(_ context.Context, id string, f identity.TagFields) (*identity.Tag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.TagPatch = append(d.TagPatch, f)
	if d.Fail {
		return nil, ErrUnavailable
	}
	d.User.Tag.Slug = f.Slug
	t := d.User.Tag
	return &t, nil
}

func (d *Directory) ListDevices(context.Context) ([]identity.Device, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail {
		return nil, ErrUnavailable
	}
	return append([]identity.Device(nil), d.Devices...), nil
}

func (d *Directory) ListUsers(_ context.Context, ids []string) ([]identity.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Fail {
		return nil, ErrUnavailable
	}
	var out []identity.Identity
	for _, id := range ids {
		if id == d.User.ID {
			out = append(out, d.User)
		}
	}
	return out, nil
}

// Calls returns the number of patch calls received.
func (d *Directory) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.UserPatch) + len(d.TagPatch)
}
