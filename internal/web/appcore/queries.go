package appcore

import (
	"context"

	"postsdemo/internal/posts"
	"postsdemo/internal/query"
)

const (
	postsQueryKey = "posts"
	postQueryKey  = "post"
)

// PostsQuery pairs the list key with its loader.
func PostsQuery(api PostsAPI) query.Options[[]posts.Post] {
	return query.Options[[]posts.Post]{
		Key: query.Key{postsQueryKey},
		Fetch: func(ctx context.Context) ([]posts.Post, error) {
			if api == nil {
				return nil, errPostsAPIUnavailable
			}
			return api.FetchPosts(ctx)
		},
	}
}

// PostQuery pairs the key of one post with its loader.
func PostQuery(api PostsAPI, id string) query.Options[posts.Post] {
	return query.Options[posts.Post]{
		Key: query.Key{postQueryKey, id},
		Fetch: func(ctx context.Context) (posts.Post, error) {
			if api == nil {
				return posts.Post{}, errPostsAPIUnavailable
			}
			return api.FetchPost(ctx, id)
		},
	}
}
