package main

import (
	"context"
	"fmt"

	"github.com/goliatone/go-auth-client/navigation"
	"github.com/goliatone/go-print"
)

func (a *app) routes() []navigation.Route {
	routes := navigation.DefaultRoutes()
	for i := range routes {
		switch routes[i].Name {
		case navigation.RouteHome:
			routes[i].View = a.homeView
		case navigation.RouteLogin:
			routes[i].View = a.loginView
		case navigation.RouteDashboard:
			routes[i].View = a.dashboardView
		}
	}
	return routes
}

func (a *app) header(nav navigation.Navigation, title string) {
	if nav.Redirected {
		fmt.Fprintf(a.out, "(redirected from %s)\n", nav.Requested.Path)
	}
	fmt.Fprintf(a.out, "== %s ==\n", title)
}

func (a *app) homeView(_ context.Context, nav navigation.Navigation) error {
	a.header(nav, "Home")
	if user := a.store.User(); a.store.IsAuthenticated() {
		fmt.Fprintf(a.out, "Signed in as %s.\n", displayName(user))
		return nil
	}
	fmt.Fprintln(a.out, "Not signed in.")
	return nil
}

func (a *app) loginView(_ context.Context, nav navigation.Navigation) error {
	a.header(nav, "Login")
	fmt.Fprintln(a.out, "Sign in with: authclient login -identifier <identifier>")
	return nil
}

func (a *app) dashboardView(_ context.Context, nav navigation.Navigation) error {
	a.header(nav, "Dashboard")
	user := a.store.User()
	fmt.Fprintf(a.out, "Welcome, %s.\n", displayName(user))
	fmt.Fprintln(a.out, print.MaybePrettyJSON(user))
	return nil
}

func displayName(user map[string]any) string {
	for _, key := range []string{"name", "email", "id"} {
		if v, ok := user[key]; ok && v != nil && v != "" {
			return fmt.Sprint(v)
		}
	}
	return "unknown user"
}
