package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultListLimit   = 10
	defaultAPIBaseURL  = "https://jsonplaceholder.typicode.com"
	defaultServiceName = "postsdemo"
)

type Config struct {
	ListenAddr string `env:"POSTS_LISTEN_ADDR" envDefault:":8080"`
	StaticDir  string `env:"POSTS_STATIC_DIR"`

	// SiteURL is the public origin; links to it render as local paths.
	SiteURL string `env:"POSTS_SITE_URL"`

	APIBaseURL string        `env:"POSTS_API_BASE_URL" envDefault:"https://jsonplaceholder.typicode.com"`
	APITimeout time.Duration `env:"POSTS_API_TIMEOUT" envDefault:"15s"`
	FetchDelay time.Duration `env:"POSTS_FETCH_DELAY" envDefault:"500ms"`
	ListLimit  int           `env:"POSTS_LIST_LIMIT" envDefault:"10"`

	QueryStaleTime time.Duration `env:"POSTS_QUERY_STALE_TIME" envDefault:"0s"`
	QueryGCTime    time.Duration `env:"POSTS_QUERY_GC_TIME" envDefault:"5m"`
	PendingAfter   time.Duration `env:"POSTS_PENDING_AFTER" envDefault:"1s"`

	CacheHTML string `env:"POSTS_CACHE_HTML"`
	CacheLive string `env:"POSTS_CACHE_LIVE"`

	ServiceName  string `env:"POSTS_SERVICE_NAME" envDefault:"postsdemo"`
	OTelEndpoint string `env:"POSTS_OTEL_ENDPOINT"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the configuration from the given variables only.
func LoadFrom(environment map[string]string) (Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg.sanitized(), nil
}

func (cfg Config) sanitized() Config {
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	if cfg.ListLimit < 1 {
		cfg.ListLimit = defaultListLimit
	}
	if cfg.APITimeout < 0 {
		cfg.APITimeout = 0
	}
	if cfg.FetchDelay < 0 {
		cfg.FetchDelay = 0
	}
	if cfg.PendingAfter < 0 {
		cfg.PendingAfter = 0
	}
	if cfg.QueryStaleTime < 0 {
		cfg.QueryStaleTime = 0
	}
	cfg.SiteURL = strings.TrimRight(strings.TrimSpace(cfg.SiteURL), "/")
	cfg.CacheHTML = strings.TrimSpace(cfg.CacheHTML)
	cfg.CacheLive = strings.TrimSpace(cfg.CacheLive)
	cfg.ServiceName = strings.TrimSpace(cfg.ServiceName)
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	cfg.OTelEndpoint = strings.TrimSpace(cfg.OTelEndpoint)

	return cfg
}
