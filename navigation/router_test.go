package navigation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-auth-client/navigation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type viewRecorder struct {
	rendered []string
}

func (v *viewRecorder) view(name string) navigation.ViewFunc {
	return func(context.Context, navigation.Navigation) error {
		v.rendered = append(v.rendered, name)
		return nil
	}
}

func newRouter(t *testing.T, views *viewRecorder) *navigation.Router {
	t.Helper()
	routes := navigation.DefaultRoutes()
	for i := range routes {
		routes[i].View = views.view(routes[i].Name)
	}
	r, err := navigation.New(routes...)
	require.NoError(t, err)
	return r
}

func TestNewRejectsBadTables(t *testing.T) {
	tests := []struct {
		name   string
		routes []navigation.Route
	}{
		{
			name:   "missing name",
			routes: []navigation.Route{{Path: "/"}},
		},
		{
			name:   "missing path",
			routes: []navigation.Route{{Name: "home"}},
		},
		{
			name:   "duplicate name",
			routes: []navigation.Route{{Name: "home", Path: "/"}, {Name: "home", Path: "/other"}},
		},
		{
			name:   "duplicate path after normalization",
			routes: []navigation.Route{{Name: "a", Path: "/a"}, {Name: "b", Path: "a/"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := navigation.New(tt.routes...)
			assert.Error(t, err)
		})
	}
}

func TestResolve(t *testing.T) {
	r := newRouter(t, &viewRecorder{})

	tests := []struct {
		loc  navigation.Location
		want string
	}{
		{navigation.Named("dashboard"), "dashboard"},
		{navigation.Path("/login"), "login"},
		{navigation.Path("/login/"), "login"},
		{navigation.Path("dashboard"), "dashboard"},
		{navigation.Path(""), "home"},
		{navigation.Path("///"), "home"},
		{navigation.ParseLocation("/"), "home"},
		{navigation.ParseLocation("login"), "login"},
	}

	for _, tt := range tests {
		t.Run(tt.loc.String(), func(t *testing.T) {
			route, err := r.Resolve(tt.loc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, route.Name)
		})
	}

	_, err := r.Resolve(navigation.Path("/missing"))
	assert.ErrorIs(t, err, navigation.ErrRouteNotFound)
	_, err = r.Resolve(navigation.Named("missing"))
	assert.ErrorIs(t, err, navigation.ErrRouteNotFound)
}

func TestPushWithoutGuards(t *testing.T) {
	views := &viewRecorder{}
	r := newRouter(t, views)

	assert.Empty(t, r.Current().Name)

	nav, err := r.Push(context.Background(), navigation.Path("/dashboard"))
	require.NoError(t, err)

	assert.Equal(t, "dashboard", nav.To.Name)
	assert.Equal(t, "dashboard", nav.Requested.Name)
	assert.Empty(t, nav.From.Name)
	assert.False(t, nav.Redirected)
	assert.Equal(t, "dashboard", r.Current().Name)
	assert.Equal(t, []string{"dashboard"}, views.rendered)
}

func TestPushGuardRedirect(t *testing.T) {
	views := &viewRecorder{}
	r := newRouter(t, views)

	var seen []string
	r.BeforeEach(func(_ context.Context, to, _ navigation.Route) (navigation.Decision, error) {
		seen = append(seen, to.Name)
		if to.Name == "dashboard" {
			return navigation.RedirectTo(navigation.Named("login")), nil
		}
		return navigation.Next(), nil
	})

	nav, err := r.Push(context.Background(), navigation.Named("dashboard"))
	require.NoError(t, err)

	assert.Equal(t, "login", nav.To.Name)
	assert.Equal(t, "dashboard", nav.Requested.Name)
	assert.True(t, nav.Redirected)
	assert.Equal(t, []string{"dashboard", "login"}, seen, "guards run again for the redirect target")
	assert.Equal(t, []string{"login"}, views.rendered, "redirected away view never renders")
}

func TestPushGuardOrder(t *testing.T) {
	r := newRouter(t, &viewRecorder{})

	var calls []string
	r.BeforeEach(func(context.Context, navigation.Route, navigation.Route) (navigation.Decision, error) {
		calls = append(calls, "first")
		return navigation.Abort(), nil
	}).BeforeEach(func(context.Context, navigation.Route, navigation.Route) (navigation.Decision, error) {
		calls = append(calls, "second")
		return navigation.Next(), nil
	})

	_, err := r.Push(context.Background(), navigation.Named("home"))
	assert.ErrorIs(t, err, navigation.ErrNavigationAborted)
	assert.Equal(t, []string{"first"}, calls)
}

func TestPushAbortKeepsCurrent(t *testing.T) {
	views := &viewRecorder{}
	r := newRouter(t, views)

	_, err := r.Push(context.Background(), navigation.Named("home"))
	require.NoError(t, err)

	r.BeforeEach(func(_ context.Context, to, _ navigation.Route) (navigation.Decision, error) {
		if to.Name == "dashboard" {
			return navigation.Abort(), nil
		}
		return navigation.Next(), nil
	})

	_, err = r.Push(context.Background(), navigation.Named("dashboard"))
	assert.ErrorIs(t, err, navigation.ErrNavigationAborted)
	assert.Equal(t, "home", r.Current().Name)
	assert.Equal(t, []string{"home"}, views.rendered)
}

func TestPushGuardError(t *testing.T) {
	views := &viewRecorder{}
	r := newRouter(t, views)

	boom := errors.New("boom")
	r.BeforeEach(func(context.Context, navigation.Route, navigation.Route) (navigation.Decision, error) {
		return navigation.Decision{}, boom
	})

	_, err := r.Push(context.Background(), navigation.Named("home"))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, views.rendered)
	assert.Empty(t, r.Current().Name)
}

func TestPushRedirectLoop(t *testing.T) {
	views := &viewRecorder{}
	r := newRouter(t, views)

	r.BeforeEach(func(_ context.Context, to, _ navigation.Route) (navigation.Decision, error) {
		if to.Name == "login" {
			return navigation.RedirectTo(navigation.Named("dashboard")), nil
		}
		return navigation.RedirectTo(navigation.Named("login")), nil
	})

	_, err := r.Push(context.Background(), navigation.Named("home"))
	assert.ErrorIs(t, err, navigation.ErrTooManyRedirects)
	assert.Empty(t, views.rendered)
}

func TestPushRedirectToUnknownRoute(t *testing.T) {
	r := newRouter(t, &viewRecorder{})
	r.BeforeEach(func(context.Context, navigation.Route, navigation.Route) (navigation.Decision, error) {
		return navigation.RedirectTo(navigation.Named("nowhere")), nil
	})

	_, err := r.Push(context.Background(), navigation.Named("home"))
	assert.ErrorIs(t, err, navigation.ErrRouteNotFound)
}

func TestPushUnknownRoute(t *testing.T) {
	r := newRouter(t, &viewRecorder{})
	_, err := r.Push(context.Background(), navigation.Path("/nope"))
	assert.ErrorIs(t, err, navigation.ErrRouteNotFound)
}

func TestAfterEachHooks(t *testing.T) {
	r := newRouter(t, &viewRecorder{})

	var navs []navigation.Navigation
	r.AfterEach(func(_ context.Context, nav navigation.Navigation) {
		navs = append(navs, nav)
	})

	_, err := r.Push(context.Background(), navigation.Named("home"))
	require.NoError(t, err)
	_, err = r.Push(context.Background(), navigation.Named("login"))
	require.NoError(t, err)

	require.Len(t, navs, 2)
	assert.Equal(t, "home", navs[1].From.Name)
	assert.Equal(t, "login", navs[1].To.Name)
}

func TestViewError(t *testing.T) {
	r, err := navigation.New(navigation.Route{
		Name: "broken",
		Path: "/broken",
		View: func(context.Context, navigation.Navigation) error {
			return errors.New("template missing")
		},
	})
	require.NoError(t, err)

	_, err = r.Push(context.Background(), navigation.Named("broken"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render broken")
	assert.Equal(t, "broken", r.Current().Name)
}

func TestDecision(t *testing.T) {
	assert.False(t, navigation.Next().IsRedirect())
	assert.False(t, navigation.Abort().IsRedirect())
	assert.True(t, navigation.RedirectTo(navigation.Named("home")).IsRedirect())
}
