package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"

	"postsdemo/framework"
)

const (
	PreloadHeader   = "X-Preload"
	PreloadQueryKey = "__preload"
	PreloadIntent   = "intent"

	liveRequestHeader = "Datastar-Request"
)

type TrailingSlash string

const (
	// TrailingSlashAlways redirects matched paths to their slashed form.
	TrailingSlashAlways TrailingSlash = "always"
	// TrailingSlashPreserve serves both forms as they are.
	TrailingSlashPreserve TrailingSlash = "preserve"
)

type Config[C interface{}] struct {
	AppContext C
	Routes     *framework.Route[C]

	TrailingSlash TrailingSlash
	// PendingAfter bounds how long a page waits for its hooks before it renders
	// with whatever state the views can read. Zero waits for the hooks.
	PendingAfter time.Duration

	IsLiveRequest func(r *http.Request) bool
	RenderPage    func(r *http.Request, w http.ResponseWriter, component templ.Component) error
	PatchLive     func(w http.ResponseWriter, r *http.Request, patches []framework.LivePatch) error

	IsNotFoundError   func(err error) bool
	HandleNotFound    func(w http.ResponseWriter, r *http.Request, notFoundContext framework.NotFoundContext)
	HandleServerError func(w http.ResponseWriter, err error)
	HandlePreloaded   func(w http.ResponseWriter)

	// OnError observes navigation errors that do not end in a server error
	// response: not-found hook failures, failed preloads and hooks that fail
	// after a pending render.
	OnError func(r *http.Request, err error)
}

type Engine[C interface{}] struct {
	appContext    C
	tree          *framework.Tree[C]
	trailingSlash TrailingSlash
	pendingAfter  time.Duration

	isLive     func(r *http.Request) bool
	renderPage func(r *http.Request, w http.ResponseWriter, component templ.Component) error
	patchLive  func(w http.ResponseWriter, r *http.Request, patches []framework.LivePatch) error

	isNotFound  func(err error) bool
	notFound    func(w http.ResponseWriter, r *http.Request, notFoundContext framework.NotFoundContext)
	serverError func(w http.ResponseWriter, err error)
	preloaded   func(w http.ResponseWriter)
	onError     func(r *http.Request, err error)
}

func New[C interface{}](cfg Config[C]) (*Engine[C], error) {
	if cfg.RenderPage == nil {
		return nil, errors.New("render page callback is required")
	}

	tree, err := framework.NewTree(cfg.Routes)
	if err != nil {
		return nil, fmt.Errorf("build route tree: %w", err)
	}

	trailingSlash := cfg.TrailingSlash
	if trailingSlash == "" {
		trailingSlash = TrailingSlashAlways
	}

	isLive := cfg.IsLiveRequest
	if isLive == nil {
		isLive = func(r *http.Request) bool {
			return strings.EqualFold(r.Header.Get(liveRequestHeader), "true")
		}
	}

	patchLive := cfg.PatchLive
	if patchLive == nil {
		patchLive = func(w http.ResponseWriter, _ *http.Request, _ []framework.LivePatch) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}
	}

	isNotFound := cfg.IsNotFoundError
	if isNotFound == nil {
		isNotFound = func(error) bool { return false }
	}

	notFound := cfg.HandleNotFound
	if notFound == nil {
		notFound = func(w http.ResponseWriter, r *http.Request, _ framework.NotFoundContext) {
			http.NotFound(w, r)
		}
	}

	serverError := cfg.HandleServerError
	if serverError == nil {
		serverError = func(w http.ResponseWriter, _ error) {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}

	preloaded := cfg.HandlePreloaded
	if preloaded == nil {
		preloaded = func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusNoContent)
		}
	}

	onError := cfg.OnError
	if onError == nil {
		onError = func(*http.Request, error) {}
	}

	return &Engine[C]{
		appContext:    cfg.AppContext,
		tree:          tree,
		trailingSlash: trailingSlash,
		pendingAfter:  cfg.PendingAfter,
		isLive:        isLive,
		renderPage:    cfg.RenderPage,
		patchLive:     patchLive,
		isNotFound:    isNotFound,
		notFound:      notFound,
		serverError:   serverError,
		preloaded:     preloaded,
		onError:       onError,
	}, nil
}

// ServeRoute serves r when its path matches a route and reports whether it
// did.
func (engine *Engine[C]) ServeRoute(w http.ResponseWriter, r *http.Request) bool {
	match, ok := engine.tree.Match(r.URL.Path)
	if !ok {
		return false
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return true
	}

	if engine.trailingSlash == TrailingSlashAlways && !strings.HasSuffix(r.URL.Path, "/") {
		target := r.URL.Path + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
		return true
	}

	lc := framework.LoadContext[C]{
		App:     engine.appContext,
		Request: r,
		Params:  match.Params,
	}

	switch {
	case IsPreloadRequest(r):
		lc.Preload = true
		engine.servePreload(w, r, match.Branch, lc)
	case engine.isLive(r):
		engine.serveLive(w, r, match.Branch, lc)
	default:
		engine.servePage(w, r, match.Branch, lc)
	}
	return true
}

func IsPreloadRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(r.Header.Get(PreloadHeader)), PreloadIntent) {
		return true
	}
	return strings.TrimSpace(r.URL.Query().Get(PreloadQueryKey)) == PreloadIntent
}

func (engine *Engine[C]) servePage(
	w http.ResponseWriter,
	r *http.Request,
	branch *framework.Branch[C],
	lc framework.LoadContext[C],
) {
	if err := engine.awaitHooks(r, branch, lc); err != nil {
		engine.handleLoadError(w, r, err, branch.Pattern)
		return
	}

	component := renderBranch(branch.Routes, lc)
	if err := engine.renderPage(r, w, component); err != nil {
		engine.serverError(w, fmt.Errorf("render route %q: %w", branch.Pattern, err))
	}
}

func (engine *Engine[C]) servePreload(
	w http.ResponseWriter,
	r *http.Request,
	branch *framework.Branch[C],
	lc framework.LoadContext[C],
) {
	if err := runHooks(r.Context(), branch, lc); err != nil && r.Context().Err() == nil {
		engine.onError(r, err)
	}
	engine.preloaded(w)
}

func (engine *Engine[C]) serveLive(
	w http.ResponseWriter,
	r *http.Request,
	branch *framework.Branch[C],
	lc framework.LoadContext[C],
) {
	patches := make([]framework.LivePatch, 0, len(branch.Routes))
	for _, route := range branch.Routes {
		if route.Live == nil || route.Live.Render == nil {
			continue
		}
		if route.Live.Await != nil {
			if err := route.Live.Await(r.Context(), lc); err != nil {
				if r.Context().Err() != nil {
					return
				}
				engine.serverError(w, fmt.Errorf("await live region %q: %w", route.Live.SelectorID, err))
				return
			}
		}
		patches = append(patches, framework.LivePatch{
			SelectorID: route.Live.SelectorID,
			Component:  route.Live.Render(lc),
		})
	}

	if err := engine.patchLive(w, r, patches); err != nil {
		engine.serverError(w, fmt.Errorf("patch live route %q: %w", branch.Pattern, err))
	}
}

// awaitHooks runs the branch hooks. With a pending budget the hooks run
// detached from the request; once the budget is spent the page renders and
// a later hook error only reaches OnError.
func (engine *Engine[C]) awaitHooks(
	r *http.Request,
	branch *framework.Branch[C],
	lc framework.LoadContext[C],
) error {
	if engine.pendingAfter <= 0 {
		return runHooks(r.Context(), branch, lc)
	}

	done := make(chan error, 1)
	go func() {
		done <- runHooks(context.WithoutCancel(r.Context()), branch, lc)
	}()

	timer := time.NewTimer(engine.pendingAfter)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		go engine.reportLate(r, done)
		return nil
	case <-r.Context().Done():
		go engine.reportLate(r, done)
		return r.Context().Err()
	}
}

func (engine *Engine[C]) reportLate(r *http.Request, done <-chan error) {
	if err := <-done; err != nil {
		engine.onError(r, err)
	}
}

func (engine *Engine[C]) handleLoadError(
	w http.ResponseWriter,
	r *http.Request,
	err error,
	routePattern string,
) {
	if r.Context().Err() != nil && errors.Is(err, r.Context().Err()) {
		return
	}

	if engine.isNotFound(err) {
		engine.onError(r, err)
		engine.notFound(w, r, framework.NotFoundContext{
			RequestPath:         r.URL.Path,
			MatchedRoutePattern: routePattern,
			Source:              framework.NotFoundSourcePageLoad,
		})
		return
	}

	engine.serverError(w, fmt.Errorf("load route %q: %w", routePattern, err))
}

// runHooks runs the hooks root to leaf and stops at the first error. The
// routes below the failed one never load, so each of them is aborted with
// that error.
func runHooks[C interface{}](
	ctx context.Context,
	branch *framework.Branch[C],
	lc framework.LoadContext[C],
) error {
	for idx, route := range branch.Routes {
		if route.BeforeLoad == nil {
			continue
		}
		if err := route.BeforeLoad(ctx, lc); err != nil {
			abortHooks(context.WithoutCancel(ctx), branch.Routes[idx+1:], lc, err)
			return err
		}
	}
	return nil
}

func abortHooks[C interface{}](
	ctx context.Context,
	routes []*framework.Route[C],
	lc framework.LoadContext[C],
	cause error,
) {
	for _, route := range routes {
		if route.AbortLoad != nil {
			route.AbortLoad(ctx, lc, cause)
		}
	}
}

// renderBranch renders the leaf and wraps it in each ancestor, innermost
// first.
func renderBranch[C interface{}](
	routes []*framework.Route[C],
	lc framework.LoadContext[C],
) templ.Component {
	var component templ.Component
	for idx := len(routes) - 1; idx >= 0; idx-- {
		component = routes[idx].Component(lc, component)
	}
	return component
}
