package web

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/a-h/templ"

	"postsdemo/framework"
	"postsdemo/framework/httpserver"
	"postsdemo/internal/config"
	"postsdemo/internal/web/appcore"
	"postsdemo/internal/web/components"
)

const staticPrefix = "/.posts/"

// NewHandler serves the site, its static assets and the health endpoint.
func NewHandler(cfg config.Config, appCtx *appcore.Context, logger *log.Logger) (http.Handler, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	static := httpserver.StaticMount{URLPrefix: staticPrefix, FS: StaticFS()}
	if cfg.StaticDir != "" {
		static = httpserver.StaticMount{URLPrefix: staticPrefix, Dir: cfg.StaticDir}
	}

	handler, err := httpserver.New(httpserver.Config[*appcore.Context]{
		AppContext:      appCtx,
		Routes:          Routes(cfg.SiteURL),
		PendingAfter:    cfg.PendingAfter,
		Static:          static,
		CachePolicies:   cachePolicies(cfg),
		IsNotFoundError: appcore.IsNotFoundError,
		NotFoundPage:    notFoundPage,
		LogServerError: func(err error) {
			logger.Printf("posts server error: %v", err)
		},
		LogNavigationError: func(r *http.Request, err error) {
			logger.Printf("navigation error on %s: %v", r.URL.Path, err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create http server: %w", err)
	}
	return handler, nil
}

func notFoundPage(notFoundContext framework.NotFoundContext) templ.Component {
	path := notFoundContext.RequestPath
	if path == "" {
		path = "/"
	}
	return components.RootLayout(staticPrefix, path, components.NotFound(path))
}
