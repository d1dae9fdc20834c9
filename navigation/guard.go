package navigation

import (
	"context"

	authclient "github.com/goliatone/go-auth-client"
)

// Route names used by the default table and the auth guard
const (
	RouteHome      = "home"
	RouteLogin     = "login"
	RouteDashboard = "dashboard"
)

// Authenticator is the part of authclient.Store the guard needs
type Authenticator interface {
	Status() authclient.Status
	IsAuthenticated() bool
	Init(ctx context.Context)
}

var _ Authenticator = (*authclient.Store)(nil)

// DefaultRoutes is the stock table: a public home page, a guest only
// login page and a dashboard that needs a session.
func DefaultRoutes() []Route {
	return []Route{
		{Name: RouteHome, Path: "/"},
		{Name: RouteLogin, Path: "/login", Meta: Meta{RequiresGuest: true}},
		{Name: RouteDashboard, Path: "/dashboard", Meta: Meta{RequiresAuth: true}},
	}
}

type authGuardOptions struct {
	loginRoute         string
	authenticatedRoute string
}

type AuthGuardOption func(*authGuardOptions)

// WithLoginRoute sets where anonymous users are sent
func WithLoginRoute(name string) AuthGuardOption {
	return func(o *authGuardOptions) {
		o.loginRoute = name
	}
}

// WithAuthenticatedRoute sets where signed in users are sent
// when they hit a guest only route
func WithAuthenticatedRoute(name string) AuthGuardOption {
	return func(o *authGuardOptions) {
		o.authenticatedRoute = name
	}
}

// AuthGuard enforces Meta.RequiresAuth and Meta.RequiresGuest.
// A token without a loaded user is resolved with Init before any rule
// runs, so the rules never see the "token present, identity unknown" state.
func AuthGuard(auth Authenticator, opts ...AuthGuardOption) Guard {
	o := authGuardOptions{
		loginRoute:         RouteLogin,
		authenticatedRoute: RouteDashboard,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx context.Context, to, from Route) (Decision, error) {
		if auth.Status() == authclient.StatusPending {
			auth.Init(ctx)
		}

		authenticated := auth.IsAuthenticated()

		if to.Meta.RequiresAuth && !authenticated {
			return RedirectTo(Named(o.loginRoute)), nil
		}

		if to.Meta.RequiresGuest && authenticated {
			return RedirectTo(Named(o.authenticatedRoute)), nil
		}

		return Next(), nil
	}
}
