// Package intents routes NLU intent names to handlers.
//
// Handlers are declared statically as routes named after the capability they
// implement ("HandleNameAgentGet"); the intent key served by a route is
// derived from that name once, when the router is built ("name.agent.get").
package intents

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// HandlerPrefix is stripped from capability names when deriving keys.
const HandlerPrefix = "Handle"

// Params are the intent parameters extracted by the NLU service.
type Params map[string]any

// String returns the parameter as trimmed text; missing and null values are "".
func (p Params) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Patch carries response fields a handler wants to set. Nil fields are left
// as they are.
type Patch struct {
	Text *string
	HTML *string
}

// Outcome is what a handler produced: plain replacement text, a partial
// response, or nothing at all (zero value).
type Outcome struct {
	Text  string
	Patch *Patch
}

// Reply is shorthand for a text-only outcome.
func Reply(format string, args ...any) Outcome {
	if len(args) == 0 {
		return Outcome{Text: format}
	}
	return Outcome{Text: fmt.Sprintf(format, args...)}
}

// Empty reports whether the outcome leaves the default reply untouched.
func (o Outcome) Empty() bool {
	return o.Text == "" && o.Patch == nil
}

// Handler serves one intent.
type Handler func(ctx context.Context, params Params) (Outcome, error)

// HandlerError wraps a failure returned by a handler.
type HandlerError struct {
	Intent string
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("intent %s: %v", e.Intent, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Route binds a capability name to its handler.
type Route struct {
	Capability string
	Handler    Handler
}

// Router maps intent keys to handlers. It is immutable once built.
type Router struct {
	handlers map[string]Handler
}

// NewRouter builds the dispatch table. Two routes deriving the same key is a
// programming error and panics.
func NewRouter(routes ...Route) *Router {
	r := &Router{handlers: make(map[string]Handler, len(routes))}
	for _, rt := range routes {
		key := KeyFor(rt.Capability)
		if _, dup := r.handlers[key]; dup {
			panic(fmt.Sprintf("intents: duplicate route for %q (%s)", key, rt.Capability))
		}
		r.handlers[key] = rt.Handler
	}
	return r
}

// FindHandler returns the handler registered for key. A miss is not an
// error: the caller keeps the NLU service's default reply.
func (r *Router) FindHandler(key string) (Handler, bool) {
	h, ok := r.handlers[key]
	return h, ok
}

// Invoke runs the handler for key. found is false when nothing is registered.
// Handler failures come back as *HandlerError.
func (r *Router) Invoke(ctx context.Context, key string, params Params) (out Outcome, found bool, err error) {
	h, ok := r.FindHandler(key)
	if !ok {
		return Outcome{}, false, nil
	}
	if params == nil {
		params = Params{}
	}
	out, err = h(ctx, params)
	if err != nil {
		return Outcome{}, true, &HandlerError{Intent: key, Err: err}
	}
	return out, true, nil
}

// Keys lists the registered intent keys in sorted order.
func (r *Router) Keys() []string {
	keys := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KeyFor derives the intent key of a capability name: the Handle prefix is
// dropped, words are split on case boundaries, joined with "." and
// lower-cased. "HandleNameAgentGet" becomes "name.agent.get".
func KeyFor(capability string) string {
	name := []rune(strings.TrimPrefix(capability, HandlerPrefix))
	var b strings.Builder
	for i, r := range name {
		if i > 0 && unicode.IsUpper(r) {
			prev := name[i-1]
			nextLower := i+1 < len(name) && unicode.IsLower(name[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('.')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
