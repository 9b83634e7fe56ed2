package appcore

import (
	"context"
	"errors"

	"postsdemo/internal/posts"
	"postsdemo/internal/query"
)

var errPostsAPIUnavailable = errors.New("posts api unavailable")

// PostsAPI is the upstream the queries load from.
type PostsAPI interface {
	FetchPosts(ctx context.Context) ([]posts.Post, error)
	FetchPost(ctx context.Context, id string) (posts.Post, error)
}

// Context is shared by every route hook and view. main owns it.
type Context struct {
	queries *query.Client
	posts   PostsAPI
}

func NewContext(queries *query.Client, api PostsAPI) *Context {
	return &Context{queries: queries, posts: api}
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, posts.ErrNotFound)
}

func queryClient(appCtx *Context) (*query.Client, error) {
	if appCtx == nil || appCtx.queries == nil {
		return nil, errors.New("query client unavailable")
	}
	return appCtx.queries, nil
}
