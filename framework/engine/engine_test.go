package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/a-h/templ"

	"postsdemo/framework"
)

type testAppContext struct {
	mu    sync.Mutex
	hooks []string
}

func (a *testAppContext) record(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, name)
}

func (a *testAppContext) recorded() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.hooks...)
}

type componentFunc func(ctx context.Context, w io.Writer) error

func (f componentFunc) Render(ctx context.Context, w io.Writer) error {
	return f(ctx, w)
}

func textComponent(value string) templ.Component {
	return componentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, value)
		return err
	})
}

func wrapComponent(tag string, child templ.Component) templ.Component {
	return componentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "["+tag+"]"); err != nil {
			return err
		}
		if child != nil {
			if err := child.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "[/"+tag+"]")
		return err
	})
}

func layout(tag string) framework.Component[*testAppContext] {
	return func(_ framework.LoadContext[*testAppContext], outlet templ.Component) templ.Component {
		return wrapComponent(tag, outlet)
	}
}

func text(value string) framework.Component[*testAppContext] {
	return func(framework.LoadContext[*testAppContext], templ.Component) templ.Component {
		return textComponent(value)
	}
}

func recordHook(name string) framework.BeforeLoad[*testAppContext] {
	return func(_ context.Context, lc framework.LoadContext[*testAppContext]) error {
		lc.App.record(name)
		return nil
	}
}

func testRoutes(postsHook framework.BeforeLoad[*testAppContext]) *framework.Route[*testAppContext] {
	return &framework.Route[*testAppContext]{
		BeforeLoad: recordHook("root"),
		Component:  layout("root"),
		Children: []*framework.Route[*testAppContext]{
			{Path: "/", Component: text("home")},
			{
				Path:       "posts",
				BeforeLoad: postsHook,
				Component:  layout("posts"),
				Children: []*framework.Route[*testAppContext]{
					{Path: "/", Component: text("select")},
					{
						Path: "[postId]",
						Component: func(lc framework.LoadContext[*testAppContext], _ templ.Component) templ.Component {
							id, _ := lc.Params.Get("postId")
							return textComponent("post " + id)
						},
					},
				},
			},
		},
	}
}

func captureRender(rendered *string) func(*http.Request, http.ResponseWriter, templ.Component) error {
	return func(_ *http.Request, _ http.ResponseWriter, component templ.Component) error {
		var b bytes.Buffer
		if err := component.Render(context.Background(), &b); err != nil {
			return err
		}
		*rendered = b.String()
		return nil
	}
}

func TestServeRouteNestsLayouts(t *testing.T) {
	var rendered string
	app := &testAppContext{}

	routeEngine, err := New(Config[*testAppContext]{
		AppContext: app,
		Routes:     testRoutes(recordHook("posts")),
		RenderPage: captureRender(&rendered),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	tests := []struct {
		path     string
		expected string
	}{
		{path: "/", expected: "[root]home[/root]"},
		{path: "/posts/", expected: "[root][posts]select[/posts][/root]"},
		{path: "/posts/7/", expected: "[root][posts]post 7[/posts][/root]"},
	}
	for _, tc := range tests {
		if !routeEngine.ServeRoute(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tc.path, nil)) {
			t.Fatalf("expected %q to match", tc.path)
		}
		if rendered != tc.expected {
			t.Fatalf("%s: expected %q, got %q", tc.path, tc.expected, rendered)
		}
	}

	if routeEngine.ServeRoute(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing/", nil)) {
		t.Fatal("did not expect missing route to match")
	}
}

func TestServeRouteRunsHooksRootToLeafPerNavigation(t *testing.T) {
	var rendered string
	app := &testAppContext{}

	routeEngine, err := New(Config[*testAppContext]{
		AppContext: app,
		Routes:     testRoutes(recordHook("posts")),
		RenderPage: captureRender(&rendered),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	for _, path := range []string{"/posts/", "/", "/posts/"} {
		routeEngine.ServeRoute(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := app.recorded()
	expected := []string{"root", "posts", "root", "root", "posts"}
	if len(got) != len(expected) {
		t.Fatalf("expected hooks %v, got %v", expected, got)
	}
	for idx := range expected {
		if got[idx] != expected[idx] {
			t.Fatalf("expected hooks %v, got %v", expected, got)
		}
	}
}

func TestServeRouteRedirectsToTrailingSlash(t *testing.T) {
	var rendered string

	routeEngine, err := New(Config[*testAppContext]{
		AppContext: &testAppContext{},
		Routes:     testRoutes(nil),
		RenderPage: captureRender(&rendered),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	rec := httptest.NewRecorder()
	if !routeEngine.ServeRoute(rec, httptest.NewRequest(http.MethodGet, "/posts?x=1", nil)) {
		t.Fatal("expected route to match")
	}
	if rec.Code != http.StatusPermanentRedirect {
		t.Fatalf("expected status %d, got %d", http.StatusPermanentRedirect, rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/posts/?x=1" {
		t.Fatalf("expected redirect to /posts/?x=1, got %q", got)
	}
	if rendered != "" {
		t.Fatalf("did not expect a render, got %q", rendered)
	}
}

func TestServeRouteRejectsUnsupportedMethods(t *testing.T) {
	var rendered string

	routeEngine, err := New(Config[*testAppContext]{
		AppContext: &testAppContext{},
		Routes:     testRoutes(nil),
		RenderPage: captureRender(&rendered),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	rec := httptest.NewRecorder()
	routeEngine.ServeRoute(rec, httptest.NewRequest(http.MethodPost, "/posts/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}

func TestPreloadRunsHooksWithoutRendering(t *testing.T) {
	var rendered string
	app := &testAppContext{}
	preloadSeen := false

	routeEngine, err := New(Config[*testAppContext]{
		AppContext: app,
		Routes: testRoutes(func(_ context.Context, lc framework.LoadContext[*testAppContext]) error {
			preloadSeen = lc.Preload
			lc.App.record("posts")
			return nil
		}),
		RenderPage: captureRender(&rendered),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/posts/", nil)
	req.Header.Set(PreloadHeader, PreloadIntent)
	rec := httptest.NewRecorder()
	if !routeEngine.ServeRoute(rec, req) {
		t.Fatal("expected route to match")
	}

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if rendered != "" {
		t.Fatalf("did not expect a render, got %q", rendered)
	}
	if !preloadSeen {
		t.Fatal("expected hook to see a preload context")
	}
	if got := app.recorded(); len(got) != 2 {
		t.Fatalf("expected root and posts hooks, got %v", got)
	}

	queryReq := httptest.NewRequest(http.MethodGet, "/posts/?__preload=intent", nil)
	if !IsPreloadRequest(queryReq) {
		t.Fatal("expected query marker to be a preload request")
	}
}

func TestPreloadErrorsAreObserved(t *testing.T) {
	errBoom := errors.New("boom")
	var observed error

	routeEngine, err := New(Config[*testAppContext]{
		AppContext: &testAppContext{},
		Routes: testRoutes(func(context.Context, framework.LoadContext[*testAppContext]) error {
			return errBoom
		}),
		RenderPage: func(*http.Request, http.ResponseWriter, templ.Component) error { return nil },
		OnError:    func(_ *http.Request, err error) { observed = err },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	rec := httptest.NewRecorder()
	routeEngine.ServeRoute(rec, httptest.NewRequest(http.MethodGet, "/posts/?__preload=intent", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	if !errors.Is(observed, errBoom) {
		t.Fatalf("expected preload error to be observed, got %v", observed)
	}
}

func TestLiveRequestPatchesRegionsWithoutHooks(t *testing.T) {
	app := &testAppContext{}
	var patched []framework.LivePatch

	routes := testRoutes(recordHook("posts"))
	posts := routes.Children[1]
	posts.Live = &framework.LiveRegion[*testAppContext]{
		SelectorID: "posts-list",
		Await: func(_ context.Context, lc framework.LoadContext[*testAppContext]) error {
			lc.App.record("await")
			return nil
		},
		Render: func(framework.LoadContext[*testAppContext]) templ.Component {
			return textComponent("list")
		},
	}

	routeEngine, err := New(Config[*testAppContext]{
		AppContext: app,
		Routes:     routes,
		RenderPage: func(*http.Request, http.ResponseWriter, templ.Component) error {
			t.Fatal("live request must not render a page")
			return nil
		},
		PatchLive: func(_ http.ResponseWriter, _ *http.Request, patches []framework.LivePatch) error {
			patched = patches
			return nil
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/posts/", nil)
	req.Header.Set("Datastar-Request", "true")
	if !routeEngine.ServeRoute(httptest.NewRecorder(), req) {
		t.Fatal("expected route to match")
	}

	if got := app.recorded(); len(got) != 1 || got[0] != "await" {
		t.Fatalf("expected only the live await to run, got %v", got)
	}
	if len(patched) != 1 || patched[0].SelectorID != "posts-list" {
		t.Fatalf("expected one posts-list patch, got %+v", patched)
	}
}

func TestPendingBudgetRendersBeforeSlowHooks(t *testing.T) {
	errLate := errors.New("late failure")
	release := make(chan struct{})
	observed := make(chan error, 1)
	var rendered string

	routeEngine, err := New(Config[*testAppContext]{
		AppContext:   &testAppContext{},
		PendingAfter: 5 * time.Millisecond,
		Routes: testRoutes(func(context.Context, framework.LoadContext[*testAppContext]) error {
			<-release
			return errLate
		}),
		RenderPage: captureRender(&rendered),
		OnError:    func(_ *http.Request, err error) { observed <- err },
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	if !routeEngine.ServeRoute(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/", nil)) {
		t.Fatal("expected route to match")
	}
	if rendered != "[root][posts]select[/posts][/root]" {
		t.Fatalf("expected pending render, got %q", rendered)
	}

	close(release)
	select {
	case err := <-observed:
		if !errors.Is(err, errLate) {
			t.Fatalf("expected late hook error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected late hook error to be observed")
	}
}

func TestLateAncestorFailureAbortsDescendants(t *testing.T) {
	errLate := errors.New("list failed")
	release := make(chan struct{})
	aborted := make(chan error, 1)
	var rendered string

	routes := testRoutes(func(context.Context, framework.LoadContext[*testAppContext]) error {
		<-release
		return errLate
	})
	detail := routes.Children[1].Children[1]
	detail.BeforeLoad = func(_ context.Context, lc framework.LoadContext[*testAppContext]) error {
		lc.App.record("detail")
		return nil
	}
	detail.AbortLoad = func(_ context.Context, lc framework.LoadContext[*testAppContext], cause error) {
		id, _ := lc.Params.Get("postId")
		aborted <- fmt.Errorf("post %s: %w", id, cause)
	}

	app := &testAppContext{}
	routeEngine, err := New(Config[*testAppContext]{
		AppContext:   app,
		PendingAfter: 5 * time.Millisecond,
		Routes:       routes,
		RenderPage:   captureRender(&rendered),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	if !routeEngine.ServeRoute(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/7/", nil)) {
		t.Fatal("expected route to match")
	}
	if rendered != "[root][posts]post 7[/posts][/root]" {
		t.Fatalf("expected pending render, got %q", rendered)
	}

	close(release)
	select {
	case err := <-aborted:
		if !errors.Is(err, errLate) || err.Error() != "post 7: list failed" {
			t.Fatalf("expected the detail load to be aborted with the list error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected the detail route to be aborted")
	}
	for _, hook := range app.recorded() {
		if hook == "detail" {
			t.Fatal("did not expect the detail hook to run after its parent failed")
		}
	}
}

func TestSuccessfulHooksDoNotAbort(t *testing.T) {
	var rendered string

	routes := testRoutes(recordHook("posts"))
	routes.Children[1].Children[1].AbortLoad = func(context.Context, framework.LoadContext[*testAppContext], error) {
		t.Fatal("did not expect an abort when every hook succeeds")
	}

	routeEngine, err := New(Config[*testAppContext]{
		AppContext: &testAppContext{},
		Routes:     routes,
		RenderPage: captureRender(&rendered),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	routeEngine.ServeRoute(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/7/", nil))
	if rendered != "[root][posts]post 7[/posts][/root]" {
		t.Fatalf("unexpected render %q", rendered)
	}
}

func TestNotFoundAndServerErrorClassification(t *testing.T) {
	errNotFound := errors.New("not found")
	errBoom := errors.New("boom")

	t.Run("not found", func(t *testing.T) {
		notFoundCalled := false
		serverErrorCalled := false
		var observed error
		var notFoundContext framework.NotFoundContext

		routeEngine, err := New(Config[*testAppContext]{
			AppContext: &testAppContext{},
			Routes: testRoutes(func(context.Context, framework.LoadContext[*testAppContext]) error {
				return errNotFound
			}),
			RenderPage:      func(*http.Request, http.ResponseWriter, templ.Component) error { return nil },
			IsNotFoundError: func(err error) bool { return errors.Is(err, errNotFound) },
			HandleNotFound: func(_ http.ResponseWriter, _ *http.Request, ctx framework.NotFoundContext) {
				notFoundCalled = true
				notFoundContext = ctx
			},
			HandleServerError: func(http.ResponseWriter, error) {
				serverErrorCalled = true
			},
			OnError: func(_ *http.Request, err error) { observed = err },
		})
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}

		if !routeEngine.ServeRoute(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/7/", nil)) {
			t.Fatal("expected route to match")
		}
		if !notFoundCalled {
			t.Fatal("expected not found callback")
		}
		if notFoundContext.Source != framework.NotFoundSourcePageLoad {
			t.Fatalf("expected not-found source %q, got %q", framework.NotFoundSourcePageLoad, notFoundContext.Source)
		}
		if notFoundContext.MatchedRoutePattern != "/posts/[postId]/" {
			t.Fatalf("expected matched route pattern /posts/[postId]/, got %q", notFoundContext.MatchedRoutePattern)
		}
		if notFoundContext.RequestPath != "/posts/7/" {
			t.Fatalf("expected request path /posts/7/, got %q", notFoundContext.RequestPath)
		}
		if serverErrorCalled {
			t.Fatal("did not expect server error callback")
		}
		if !errors.Is(observed, errNotFound) {
			t.Fatalf("expected not-found error to be observed, got %v", observed)
		}
	})

	t.Run("server error", func(t *testing.T) {
		notFoundCalled := false
		var serverErr error

		routeEngine, err := New(Config[*testAppContext]{
			AppContext: &testAppContext{},
			Routes: testRoutes(func(context.Context, framework.LoadContext[*testAppContext]) error {
				return errBoom
			}),
			RenderPage:      func(*http.Request, http.ResponseWriter, templ.Component) error { return nil },
			IsNotFoundError: func(error) bool { return false },
			HandleNotFound: func(http.ResponseWriter, *http.Request, framework.NotFoundContext) {
				notFoundCalled = true
			},
			HandleServerError: func(_ http.ResponseWriter, err error) {
				serverErr = err
			},
		})
		if err != nil {
			t.Fatalf("new engine: %v", err)
		}

		if !routeEngine.ServeRoute(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/", nil)) {
			t.Fatal("expected route to match")
		}
		if notFoundCalled {
			t.Fatal("did not expect not found callback")
		}
		if !errors.Is(serverErr, errBoom) {
			t.Fatalf("expected wrapped hook error, got %v", serverErr)
		}
	})
}

func TestNewRequiresRenderPageAndRoutes(t *testing.T) {
	if _, err := New(Config[*testAppContext]{Routes: testRoutes(nil)}); err == nil {
		t.Fatal("expected missing render callback to fail")
	}

	_, err := New(Config[*testAppContext]{
		RenderPage: func(*http.Request, http.ResponseWriter, templ.Component) error { return nil },
	})
	if err == nil {
		t.Fatal("expected missing routes to fail")
	}
}
