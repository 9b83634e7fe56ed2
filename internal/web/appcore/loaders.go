package appcore

import (
	"context"
	"strings"

	"postsdemo/framework"
	"postsdemo/internal/posts"
	"postsdemo/internal/query"
)

// PostIDParam names the path parameter of the detail route.
const PostIDParam = "postId"

type LoadContext = framework.LoadContext[*Context]

// EnsurePosts warms the post list before the posts route renders.
func EnsurePosts(ctx context.Context, lc LoadContext) error {
	client, err := queryClient(lc.App)
	if err != nil {
		return err
	}

	_, err = query.Ensure(ctx, client, PostsQuery(lc.App.posts))
	return err
}

// EnsurePost warms the post named by the route parameter.
func EnsurePost(ctx context.Context, lc LoadContext) error {
	client, err := queryClient(lc.App)
	if err != nil {
		return err
	}

	_, err = query.Ensure(ctx, client, PostQuery(lc.App.posts, postID(lc)))
	return err
}

// AbortPost settles the post named by the route parameter as failed when the
// list hook failed before EnsurePost could run.
func AbortPost(ctx context.Context, lc LoadContext, cause error) {
	client, err := queryClient(lc.App)
	if err != nil {
		return
	}

	client.Abort(ctx, PostQuery(lc.App.posts, postID(lc)).Key, cause)
}

// AwaitPosts blocks a live subscription until the list settles. A failed
// fetch settles the list too; the view shows the failure.
func AwaitPosts(ctx context.Context, lc LoadContext) error {
	client, err := queryClient(lc.App)
	if err != nil {
		return err
	}

	_, err = query.Wait(ctx, client, PostsQuery(lc.App.posts))
	return err
}

func AwaitPost(ctx context.Context, lc LoadContext) error {
	client, err := queryClient(lc.App)
	if err != nil {
		return err
	}

	_, err = query.Wait(ctx, client, PostQuery(lc.App.posts, postID(lc)))
	return err
}

// ReadPosts returns the cached list state without fetching.
func ReadPosts(lc LoadContext) query.State[[]posts.Post] {
	client, err := queryClient(lc.App)
	if err != nil {
		return query.State[[]posts.Post]{Status: query.StatusFailed, Err: err}
	}
	return query.Read(client, PostsQuery(lc.App.posts))
}

func ReadPost(lc LoadContext) query.State[posts.Post] {
	client, err := queryClient(lc.App)
	if err != nil {
		return query.State[posts.Post]{Status: query.StatusFailed, Err: err}
	}
	return query.Read(client, PostQuery(lc.App.posts, postID(lc)))
}

func postID(lc LoadContext) string {
	id, _ := lc.Params.Get(PostIDParam)
	return strings.TrimSpace(id)
}
