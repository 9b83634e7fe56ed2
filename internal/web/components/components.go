// Package components renders the site views from the templ templates in this
// directory. Run go generate after editing a .templ file.
package components

import "strconv"

//go:generate go tool templgen -path . -base ../../..

const (
	PostsListID  = "posts-list"
	PostDetailID = "post-detail"
)

// subscribeExpr is the datastar action that reopens currentPath as a live
// request once the element is initialised.
func subscribeExpr(currentPath string) string {
	return "@get(" + strconv.Quote(currentPath) + ")"
}
