package framework

import (
	"context"
	"net/http"

	"github.com/a-h/templ"
)

// Params holds the values captured by `[name]` path segments.
type Params map[string]string

func (p Params) Get(name string) (string, bool) {
	if p == nil {
		return "", false
	}

	value, ok := p[name]
	return value, ok
}

type LoadContext[C interface{}] struct {
	App     C
	Request *http.Request
	Params  Params
	// Preload is set when the hooks run ahead of navigation (link intent).
	Preload bool
}

// BeforeLoad runs before a route renders. Hooks of a matched branch run in
// order from the root to the leaf.
type BeforeLoad[C interface{}] func(ctx context.Context, lc LoadContext[C]) error

// AbortLoad is called for a route whose BeforeLoad did not run because an
// ancestor hook failed with cause. It settles whatever the route's views wait
// on so live subscriptions do not block on a load that never starts.
type AbortLoad[C interface{}] func(ctx context.Context, lc LoadContext[C], cause error)

// Component renders a route. outlet is the rendered child route, or nil for
// the leaf.
type Component[C interface{}] func(lc LoadContext[C], outlet templ.Component) templ.Component

// LiveRegion is a part of a route view that can be re-sent once its data
// settles. Await must not trigger fetches.
type LiveRegion[C interface{}] struct {
	SelectorID string
	Await      func(ctx context.Context, lc LoadContext[C]) error
	Render     func(lc LoadContext[C]) templ.Component
}

type Route[C interface{}] struct {
	// Path is one level of the URL: "" for the root, "/" for an index child,
	// "posts" for a static segment or "[postId]" for a parameter.
	Path       string
	BeforeLoad BeforeLoad[C]
	AbortLoad  AbortLoad[C]
	Component  Component[C]
	Live       *LiveRegion[C]
	Children   []*Route[C]
}

type LivePatch struct {
	SelectorID string
	Component  templ.Component
}

type NotFoundSource string

const (
	NotFoundSourcePageLoad       NotFoundSource = "page_load"
	NotFoundSourceUnmatchedRoute NotFoundSource = "unmatched_route"
)

type NotFoundContext struct {
	RequestPath         string
	MatchedRoutePattern string
	Source              NotFoundSource
}
