// Package navigation resolves client side route changes through a chain of
// guards before the target view is rendered.
package navigation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	authclient "github.com/goliatone/go-auth-client"
)

// MaxRedirects bounds how many times guards can bounce a single navigation
const MaxRedirects = 10

// ErrRouteNotFound no route matches the location
var ErrRouteNotFound = errors.New("route not found")

// ErrTooManyRedirects guards kept redirecting
var ErrTooManyRedirects = errors.New("too many redirects")

// ErrNavigationAborted a guard cancelled the navigation
var ErrNavigationAborted = errors.New("navigation aborted")

// Meta holds the per route flags guards look at
type Meta struct {
	RequiresAuth  bool
	RequiresGuest bool
}

// ViewFunc renders a route once navigation to it is confirmed
type ViewFunc func(ctx context.Context, nav Navigation) error

type Route struct {
	Name string
	Path string
	Meta Meta
	View ViewFunc
}

// Location points at a route by name or by path. Name wins.
type Location struct {
	Name string
	Path string
}

func Named(name string) Location {
	return Location{Name: name}
}

func Path(path string) Location {
	return Location{Path: path}
}

// ParseLocation accepts either a path ("/dashboard") or a route name ("dashboard")
func ParseLocation(s string) Location {
	if strings.HasPrefix(s, "/") {
		return Path(s)
	}
	return Named(s)
}

func (l Location) String() string {
	if l.Name != "" {
		return "name:" + l.Name
	}
	return "path:" + l.Path
}

// Navigation is the outcome of a Push
type Navigation struct {
	To         Route
	From       Route
	Requested  Route
	Redirected bool
}

// Decision is what a guard wants done with the navigation
type Decision struct {
	redirect *Location
	abort    bool
}

// Next lets the navigation continue
func Next() Decision {
	return Decision{}
}

// RedirectTo sends the navigation somewhere else
func RedirectTo(loc Location) Decision {
	return Decision{redirect: &loc}
}

// Abort stops the navigation, the current route stays
func Abort() Decision {
	return Decision{abort: true}
}

func (d Decision) IsRedirect() bool {
	return d.redirect != nil
}

// Guard runs before every navigation
type Guard func(ctx context.Context, to, from Route) (Decision, error)

// Hook runs after a navigation is confirmed and before the view
type Hook func(ctx context.Context, nav Navigation)

type Router struct {
	mu      sync.RWMutex
	routes  []Route
	byName  map[string]int
	byPath  map[string]int
	guards  []Guard
	hooks   []Hook
	current Route
	logger  authclient.Logger
}

// New builds a router over routes. Names and paths must be unique.
func New(routes ...Route) (*Router, error) {
	r := &Router{
		byName: make(map[string]int, len(routes)),
		byPath: make(map[string]int, len(routes)),
		logger: authclient.NewLogger(nil, false),
	}

	for i, route := range routes {
		if route.Name == "" || route.Path == "" {
			return nil, fmt.Errorf("route %d: name and path are required", i)
		}
		if _, ok := r.byName[route.Name]; ok {
			return nil, fmt.Errorf("duplicate route name %q", route.Name)
		}
		path := normalizePath(route.Path)
		if _, ok := r.byPath[path]; ok {
			return nil, fmt.Errorf("duplicate route path %q", route.Path)
		}
		route.Path = path
		r.byName[route.Name] = len(r.routes)
		r.byPath[path] = len(r.routes)
		r.routes = append(r.routes, route)
	}

	return r, nil
}

func (r *Router) WithLogger(logger authclient.Logger) *Router {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// BeforeEach registers a guard. Guards run in registration order,
// the first one that does not say Next decides.
func (r *Router) BeforeEach(g Guard) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards = append(r.guards, g)
	return r
}

// AfterEach registers a hook called after every confirmed navigation
func (r *Router) AfterEach(h Hook) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
	return r
}

// Routes returns the route table in declaration order
func (r *Router) Routes() []Route {
	out := make([]Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// Current returns the last confirmed route, zero before the first Push
func (r *Router) Current() Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Resolve finds the route for loc by name or path, ErrRouteNotFound otherwise
func (r *Router) Resolve(loc Location) (Route, error) {
	if loc.Name != "" {
		if i, ok := r.byName[loc.Name]; ok {
			return r.routes[i], nil
		}
		return Route{}, fmt.Errorf("%w: %s", ErrRouteNotFound, loc)
	}
	if i, ok := r.byPath[normalizePath(loc.Path)]; ok {
		return r.routes[i], nil
	}
	return Route{}, fmt.Errorf("%w: %s", ErrRouteNotFound, loc)
}

// Push navigates to loc. Guards run before anything else and may
// redirect, in which case they run again for the new target. The
// view of the final route is rendered, never the one of a route a
// guard redirected away from.
func (r *Router) Push(ctx context.Context, loc Location) (Navigation, error) {
	from := r.Current()

	requested, err := r.Resolve(loc)
	if err != nil {
		return Navigation{}, err
	}

	target := requested
	for hops := 0; ; hops++ {
		if hops > MaxRedirects {
			return Navigation{}, fmt.Errorf("%w: from %s", ErrTooManyRedirects, requested.Name)
		}

		decision, err := r.runGuards(ctx, target, from)
		if err != nil {
			return Navigation{}, err
		}
		if decision.abort {
			return Navigation{}, fmt.Errorf("%w: %s", ErrNavigationAborted, target.Name)
		}
		if decision.redirect == nil {
			break
		}

		next, err := r.Resolve(*decision.redirect)
		if err != nil {
			return Navigation{}, err
		}
		r.logger.Debug("navigation redirected from=%s to=%s", target.Name, next.Name)
		target = next
	}

	nav := Navigation{
		To:         target,
		From:       from,
		Requested:  requested,
		Redirected: target.Name != requested.Name,
	}

	r.mu.Lock()
	r.current = target
	hooks := append([]Hook(nil), r.hooks...)
	r.mu.Unlock()

	for _, h := range hooks {
		h(ctx, nav)
	}

	if target.View != nil {
		if err := target.View(ctx, nav); err != nil {
			return nav, fmt.Errorf("render %s: %w", target.Name, err)
		}
	}
	return nav, nil
}

func (r *Router) runGuards(ctx context.Context, to, from Route) (Decision, error) {
	r.mu.RLock()
	guards := append([]Guard(nil), r.guards...)
	r.mu.RUnlock()

	for _, g := range guards {
		d, err := g(ctx, to, from)
		if err != nil {
			return Decision{}, fmt.Errorf("guard %s: %w", to.Name, err)
		}
		if d.abort || d.redirect != nil {
			return d, nil
		}
	}
	return Next(), nil
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if p = strings.TrimRight(p, "/"); p == "" {
		return "/"
	}
	return p
}
