package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrNotFound is returned by Load when the directory does not know the bot.
var ErrNotFound = errors.New("identity: user not found in directory")

// Holder owns the in-memory identity snapshot. Readers never block; writers
// go through PatchUser/PatchTag, which are serialised and swap the snapshot
// for the server's representation only after the directory call succeeded.
type Holder struct {
	dir      Directory
	mu       sync.Mutex
	snapshot atomic.Pointer[Identity]
	onChange []func(context.Context, Identity)
}

// NewHolder returns a Holder seeded with initial.
func NewHolder(dir Directory, initial Identity) *Holder {
	h := &Holder{dir: dir}
	h.snapshot.Store(&initial)
	return h
}

// Load fetches the bot identity from the directory and returns a Holder for it.
func Load(ctx context.Context, dir Directory, id string) (*Holder, error) {
	users, err := dir.ListUsers(ctx, []string{id})
	if err != nil {
		return nil, fmt.Errorf("identity: load %s: %w", id, err)
	}
	for _, u := range users {
		if u.ID == id {
			return NewHolder(dir, u), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// OnChange registers fn to run after every successful update. Register
// before the holder is shared.
func (h *Holder) OnChange(fn func(context.Context, Identity)) {
	h.onChange = append(h.onChange, fn)
}

// Current returns a copy of the latest snapshot.
func (h *Holder) Current() Identity {
	return *h.snapshot.Load()
}

// Directory exposes the directory for read-only calls such as ListDevices.
func (h *Holder) Directory() Directory {
	return h.dir
}

// PatchUser updates name fields and replaces the snapshot with the result.
func (h *Holder) PatchUser(ctx context.Context, fields UserFields) (Identity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur := h.Current()
	updated, err := h.dir.PatchUser(ctx, cur.ID, fields)
	if err != nil {
		return cur, fmt.Errorf("patch user %s: %w", cur.ID, err)
	}
	next := *updated
	h.snapshot.Store(&next)
	h.notify(ctx, next)
	return next, nil
}

// PatchTag updates the tag and replaces the snapshot's tag with the result.
func (h *Holder) PatchTag(ctx context.Context, fields TagFields) (Identity, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur := h.Current()
	tag, err := h.dir.PatchTag(ctx, cur.Tag.ID, fields)
	if err != nil {
		return cur, fmt.Errorf("patch tag %s: %w", cur.Tag.ID, err)
	}
	next := cur
	next.Tag = *tag
	h.snapshot.Store(&next)
	h.notify(ctx, next)
	return next, nil
}

func (h *Holder) notify(ctx context.Context, id Identity) {
	for _, fn := range h.onChange {
		fn(ctx, id)
	}
}
