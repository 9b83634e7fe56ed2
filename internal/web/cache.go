package web

import (
	"postsdemo/framework/httpserver"
	"postsdemo/internal/config"
)

// cachePolicies starts from the uncached defaults and applies configured
// overrides for pages and live patches.
func cachePolicies(cfg config.Config) httpserver.CachePolicies {
	policies := httpserver.DefaultCachePolicies()
	if cfg.CacheHTML != "" {
		policies.HTML = cfg.CacheHTML
	}
	if cfg.CacheLive != "" {
		policies.Live = cfg.CacheLive
	}
	return policies
}
