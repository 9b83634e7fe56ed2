package appcore

import (
	"errors"
	"html/template"
	"net/url"
	"strings"

	"postsdemo/internal/markdown"
	"postsdemo/internal/posts"
	"postsdemo/internal/query"
)

const (
	// MissingPostID links to a post the upstream does not have.
	MissingPostID    = "i-do-not-exist"
	missingPostTitle = "Non-existent Post"

	titleMaxRunes   = 20
	excerptMaxChars = 80
)

type PostListItem struct {
	ID      string
	Title   string
	Href    string
	Excerpt string
}

type PostListView struct {
	Status query.Status
	Items  []PostListItem
	Error  string
}

func (v PostListView) Loading() bool {
	return v.Status == query.StatusLoading
}

type PostDetailView struct {
	Status   query.Status
	ID       string
	Title    string
	Body     template.HTML
	NotFound bool
	Error    string
}

func (v PostDetailView) Loading() bool {
	return v.Status == query.StatusLoading
}

// NewPostListView lists the cached posts followed by one entry that does not
// exist upstream. Nothing is listed while the posts are loading.
func NewPostListView(state query.State[[]posts.Post]) PostListView {
	view := PostListView{Status: state.Status}
	if state.Status == query.StatusLoading {
		return view
	}
	if state.Status == query.StatusFailed && state.Err != nil {
		view.Error = state.Err.Error()
	}

	view.Items = make([]PostListItem, 0, len(state.Data)+1)
	for _, post := range state.Data {
		view.Items = append(view.Items, PostListItem{
			ID:      post.ID.String(),
			Title:   TruncateTitle(post.Title),
			Href:    PostURL(post.ID.String()),
			Excerpt: markdown.Excerpt(post.Body, excerptMaxChars),
		})
	}
	view.Items = append(view.Items, PostListItem{
		ID:    MissingPostID,
		Title: missingPostTitle,
		Href:  PostURL(MissingPostID),
	})

	return view
}

func NewPostDetailView(state query.State[posts.Post], siteURL string) PostDetailView {
	view := PostDetailView{Status: state.Status}
	switch state.Status {
	case query.StatusLoading:
		return view
	case query.StatusFailed:
		view.NotFound = errors.Is(state.Err, posts.ErrNotFound)
		if state.Err != nil {
			view.Error = state.Err.Error()
		}
		return view
	}

	view.ID = state.Data.ID.String()
	view.Title = state.Data.Title
	view.Body = markdown.ToHTML(state.Data.Body, markdown.Options{SiteURL: siteURL})
	return view
}

// TruncateTitle keeps the first 20 characters of title.
func TruncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= titleMaxRunes {
		return title
	}
	return string(runes[:titleMaxRunes])
}

func PostURL(id string) string {
	return "/posts/" + url.PathEscape(id) + "/"
}

func NavLinkClass(currentPath string, href string, exact bool) string {
	if IsActivePath(currentPath, href, exact) {
		return "nav-link font-bold"
	}
	return "nav-link"
}

// IsActivePath reports whether a link to href is active for currentPath.
// Non-exact links match every path below href.
func IsActivePath(currentPath string, href string, exact bool) bool {
	if currentPath == "" {
		currentPath = "/"
	}
	if exact {
		return currentPath == href
	}
	return strings.HasPrefix(currentPath, href) || currentPath+"/" == href
}
