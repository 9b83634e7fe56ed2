package web

import (
	"github.com/a-h/templ"

	"postsdemo/framework"
	"postsdemo/internal/web/appcore"
	"postsdemo/internal/web/components"
)

type route = framework.Route[*appcore.Context]
type loadContext = framework.LoadContext[*appcore.Context]

// Routes builds the site tree:
//
//	/                 home
//	/posts/           post list > "select a post"
//	/posts/[postId]/  post list > post detail
func Routes(siteURL string) *route {
	return &route{
		Component: func(lc loadContext, outlet templ.Component) templ.Component {
			return components.RootLayout(staticPrefix, requestPath(lc), outlet)
		},
		Children: []*route{
			{
				Path: "/",
				Component: func(loadContext, templ.Component) templ.Component {
					return components.Home()
				},
			},
			{
				Path:       "posts",
				BeforeLoad: appcore.EnsurePosts,
				Component: func(lc loadContext, outlet templ.Component) templ.Component {
					return components.PostsLayout(requestPath(lc), postListView(lc), outlet)
				},
				Live: &framework.LiveRegion[*appcore.Context]{
					SelectorID: components.PostsListID,
					Await:      appcore.AwaitPosts,
					Render: func(lc loadContext) templ.Component {
						return components.PostsList(requestPath(lc), postListView(lc))
					},
				},
				Children: []*route{
					{
						Path: "/",
						Component: func(loadContext, templ.Component) templ.Component {
							return components.PostsIndex()
						},
					},
					{
						Path:       "[" + appcore.PostIDParam + "]",
						BeforeLoad: appcore.EnsurePost,
						AbortLoad:  appcore.AbortPost,
						Component: func(lc loadContext, _ templ.Component) templ.Component {
							return components.PostDetail(requestPath(lc), postDetailView(lc, siteURL))
						},
						Live: &framework.LiveRegion[*appcore.Context]{
							SelectorID: components.PostDetailID,
							Await:      appcore.AwaitPost,
							Render: func(lc loadContext) templ.Component {
								return components.PostDetail(requestPath(lc), postDetailView(lc, siteURL))
							},
						},
					},
				},
			},
		},
	}
}

func postListView(lc loadContext) appcore.PostListView {
	return appcore.NewPostListView(appcore.ReadPosts(lc))
}

func postDetailView(lc loadContext, siteURL string) appcore.PostDetailView {
	return appcore.NewPostDetailView(appcore.ReadPost(lc), siteURL)
}

func requestPath(lc loadContext) string {
	if lc.Request == nil || lc.Request.URL == nil {
		return "/"
	}
	return lc.Request.URL.Path
}
