// Package nav provides the route stack that screens navigate through and the
// focused-route predicate the mini-player is suppressed by.
package nav

import (
	"sync"

	"github.com/osa030/trackbox/internal/app/notification"
	zlog "github.com/rs/zerolog/log"
)

// Route names.
const (
	RouteHome   = "home"
	RouteModule = "module"
)

// Route is a screen with its parameters.
type Route struct {
	Name      string
	ModuleID  string
	ContentID string
}

// ChangeKind represents how the stack changed.
type ChangeKind int

const (
	ChangePush    ChangeKind = iota // Route pushed on top
	ChangeReplace                   // Top route replaced
	ChangePop                       // Top route removed
)

// String returns the string representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangePush:
		return "push"
	case ChangeReplace:
		return "replace"
	case ChangePop:
		return "pop"
	default:
		return "unknown"
	}
}

// Change describes a navigation state change.
type Change struct {
	Kind    ChangeKind
	Focused Route // Focused route after the change
	Depth   int
}

// Router is a stack of routes. The top of the stack is focused.
type Router struct {
	mu     sync.RWMutex
	stack  []Route
	events *notification.Manager[Change]
}

// NewRouter creates a router with root as the bottom route.
func NewRouter(root Route) *Router {
	return &Router{
		stack:  []Route{root},
		events: notification.NewManager[Change](),
	}
}

// Push focuses a new route on top of the stack.
func (r *Router) Push(route Route) {
	r.mu.Lock()
	r.stack = append(r.stack, route)
	change := r.changeLocked(ChangePush)
	r.mu.Unlock()

	r.notify(change)
}

// Replace swaps the focused route without deepening the stack.
func (r *Router) Replace(route Route) {
	r.mu.Lock()
	r.stack[len(r.stack)-1] = route
	change := r.changeLocked(ChangeReplace)
	r.mu.Unlock()

	r.notify(change)
}

// Pop removes the focused route. The root route is never removed.
func (r *Router) Pop() (Route, bool) {
	r.mu.Lock()
	if len(r.stack) <= 1 {
		r.mu.Unlock()
		return Route{}, false
	}
	popped := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	change := r.changeLocked(ChangePop)
	r.mu.Unlock()

	r.notify(change)
	return popped, true
}

// Focused returns the focused route.
func (r *Router) Focused() Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stack[len(r.stack)-1]
}

// IsFocused reports whether the focused route has the given name.
func (r *Router) IsFocused(name string) bool {
	return r.Focused().Name == name
}

// FocusPredicate returns a predicate reporting whether name is focused.
func (r *Router) FocusPredicate(name string) func() bool {
	return func() bool { return r.IsFocused(name) }
}

// Depth returns the number of routes on the stack.
func (r *Router) Depth() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stack)
}

// Stack returns a copy of the route stack, bottom first.
func (r *Router) Stack() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, len(r.stack))
	copy(out, r.stack)
	return out
}

// Subscribe registers listener for navigation changes and returns a function
// that removes it.
func (r *Router) Subscribe(listener func(Change)) func() {
	id := r.events.Subscribe(listener)
	return func() { r.events.Unsubscribe(id) }
}

func (r *Router) changeLocked(kind ChangeKind) Change {
	return Change{
		Kind:    kind,
		Focused: r.stack[len(r.stack)-1],
		Depth:   len(r.stack),
	}
}

func (r *Router) notify(change Change) {
	zlog.Debug().Msgf("nav: %s: route=%s module_id=%s content_id=%s depth=%d",
		change.Kind, change.Focused.Name, change.Focused.ModuleID, change.Focused.ContentID, change.Depth)
	r.events.Broadcast(change)
}
