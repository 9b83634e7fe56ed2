package httpserver

import (
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	"postsdemo/framework"
	"postsdemo/framework/engine"
)

const defaultPagePolicy = "no-cache"
const defaultStaticPolicy = "public, max-age=3600, s-maxage=3600"
const defaultNoStorePolicy = "no-store"
const defaultHealthPath = "/healthz"
const defaultHealthBody = "ok"
const defaultStaticPrefix = "/.posts/"

type StaticMount struct {
	URLPrefix string
	// FS takes precedence over Dir when both are set.
	FS  fs.FS
	Dir string
}

type CachePolicies struct {
	HTML   string
	Live   string
	Static string
	Health string
	Error  string
}

// DefaultCachePolicies keeps pages and live patches out of shared caches so
// every navigation reaches the route hooks.
func DefaultCachePolicies() CachePolicies {
	return CachePolicies{
		HTML:   defaultPagePolicy,
		Live:   defaultPagePolicy,
		Static: defaultStaticPolicy,
		Health: defaultNoStorePolicy,
		Error:  defaultNoStorePolicy,
	}
}

type Config[C interface{}] struct {
	AppContext C
	Routes     *framework.Route[C]

	TrailingSlash engine.TrailingSlash
	PendingAfter  time.Duration

	Static StaticMount

	CachePolicies CachePolicies

	IsNotFoundError func(err error) bool
	NotFoundPage    func(notFoundContext framework.NotFoundContext) templ.Component
	LogServerError  func(err error)
	// LogNavigationError observes navigation errors that did not produce a
	// server error response.
	LogNavigationError func(r *http.Request, err error)

	HealthPath string
	HealthBody string
}

type server[C interface{}] struct {
	cachePolicies CachePolicies
	notFoundPage  func(notFoundContext framework.NotFoundContext) templ.Component
	logServerErr  func(err error)
	healthPath    string
	healthBody    string

	routeEngine *engine.Engine[C]
}

func New[C interface{}](cfg Config[C]) (http.Handler, error) {
	cachePolicies := withDefaultPolicies(cfg.CachePolicies)
	healthPath := normalizeHealthPath(cfg.HealthPath)
	healthBody := strings.TrimSpace(cfg.HealthBody)
	if healthBody == "" {
		healthBody = defaultHealthBody
	}

	srv := &server[C]{
		cachePolicies: cachePolicies,
		notFoundPage:  cfg.NotFoundPage,
		logServerErr:  cfg.LogServerError,
		healthPath:    healthPath,
		healthBody:    healthBody,
	}

	logNavigationErr := cfg.LogNavigationError
	if logNavigationErr == nil {
		logNavigationErr = func(r *http.Request, err error) {
			log.Printf("navigation error on %s: %v", r.URL.Path, err)
		}
	}

	routeEngine, err := engine.New(engine.Config[C]{
		AppContext:        cfg.AppContext,
		Routes:            cfg.Routes,
		TrailingSlash:     cfg.TrailingSlash,
		PendingAfter:      cfg.PendingAfter,
		IsLiveRequest:     isLiveRequest,
		RenderPage:        srv.renderPage,
		PatchLive:         srv.patchLive,
		IsNotFoundError:   cfg.IsNotFoundError,
		HandleNotFound:    srv.handleNotFound,
		HandleServerError: srv.handleServerError,
		HandlePreloaded:   srv.handlePreloaded,
		OnError:           logNavigationErr,
	})
	if err != nil {
		return nil, fmt.Errorf("create route engine: %w", err)
	}
	srv.routeEngine = routeEngine

	mux := http.NewServeMux()
	if static := staticFileSystem(cfg.Static); static != nil {
		prefix := normalizeStaticPrefix(cfg.Static.URLPrefix)
		fileServer := http.FileServer(static)
		mux.Handle(prefix, withCachePolicy(cachePolicies.Static, http.StripPrefix(prefix, fileServer)))
	}

	mux.HandleFunc("/", srv.handleRoute)
	return mux, nil
}

func (s *server[C]) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == s.healthPath {
		s.handleHealth(w)
		return
	}

	if s.routeEngine.ServeRoute(w, r) {
		return
	}

	s.handleNotFound(w, r, framework.NotFoundContext{
		RequestPath: r.URL.Path,
		Source:      framework.NotFoundSourceUnmatchedRoute,
	})
}

func (s *server[C]) renderPage(r *http.Request, w http.ResponseWriter, component templ.Component) error {
	return s.renderPageWithStatus(r, w, component, 0, s.cachePolicies.HTML)
}

func (s *server[C]) renderPageWithStatus(
	r *http.Request,
	w http.ResponseWriter,
	component templ.Component,
	statusCode int,
	cachePolicy string,
) error {
	setCachePolicy(w, cachePolicy)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if statusCode > 0 {
		w.WriteHeader(statusCode)
	}
	return component.Render(r.Context(), w)
}

func (s *server[C]) patchLive(
	w http.ResponseWriter,
	r *http.Request,
	patches []framework.LivePatch,
) error {
	setCachePolicy(w, s.cachePolicies.Live)
	sse := datastar.NewSSE(w, r)
	for _, patch := range patches {
		if err := sse.PatchElementTempl(patch.Component, datastar.WithSelectorID(patch.SelectorID)); err != nil {
			return fmt.Errorf("patch %q: %w", patch.SelectorID, err)
		}
	}
	return nil
}

func (s *server[C]) handlePreloaded(w http.ResponseWriter) {
	setCachePolicy(w, defaultNoStorePolicy)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server[C]) handleNotFound(
	w http.ResponseWriter,
	r *http.Request,
	notFoundContext framework.NotFoundContext,
) {
	if s.notFoundPage == nil {
		setCachePolicy(w, s.cachePolicies.Error)
		http.NotFound(w, r)
		return
	}

	component := s.notFoundPage(notFoundContext)
	if component == nil {
		setCachePolicy(w, s.cachePolicies.Error)
		http.NotFound(w, r)
		return
	}
	if err := s.renderPageWithStatus(r, w, component, http.StatusNotFound, s.cachePolicies.Error); err != nil {
		s.handleServerError(w, fmt.Errorf("render not found page: %w", err))
	}
}

func (s *server[C]) handleServerError(w http.ResponseWriter, err error) {
	setCachePolicy(w, s.cachePolicies.Error)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	if s.logServerErr != nil {
		s.logServerErr(err)
		return
	}

	log.Printf("framework server error: %v", err)
}

func (s *server[C]) handleHealth(w http.ResponseWriter) {
	setCachePolicy(w, s.cachePolicies.Health)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(s.healthBody))
}

func isLiveRequest(r *http.Request) bool {
	return r != nil && strings.EqualFold(r.Header.Get("Datastar-Request"), "true")
}

func staticFileSystem(mount StaticMount) http.FileSystem {
	if mount.FS != nil {
		return http.FS(mount.FS)
	}
	if strings.TrimSpace(mount.Dir) != "" {
		return http.Dir(mount.Dir)
	}
	return nil
}

func normalizeStaticPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return defaultStaticPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

func normalizeHealthPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return defaultHealthPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func withDefaultPolicies(policies CachePolicies) CachePolicies {
	defaults := DefaultCachePolicies()
	if strings.TrimSpace(policies.HTML) == "" {
		policies.HTML = defaults.HTML
	}
	if strings.TrimSpace(policies.Live) == "" {
		policies.Live = defaults.Live
	}
	if strings.TrimSpace(policies.Static) == "" {
		policies.Static = defaults.Static
	}
	if strings.TrimSpace(policies.Health) == "" {
		policies.Health = defaults.Health
	}
	if strings.TrimSpace(policies.Error) == "" {
		policies.Error = defaults.Error
	}
	return policies
}

func setCachePolicy(w http.ResponseWriter, policy string) {
	policy = strings.TrimSpace(policy)
	if policy == "" {
		return
	}
	w.Header().Set("Cache-Control", policy)
}

func withCachePolicy(policy string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCachePolicy(w, policy)
		next.ServeHTTP(w, r)
	})
}
