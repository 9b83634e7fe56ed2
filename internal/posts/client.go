package posts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"postsdemo/internal/config"
)

const (
	defaultListLimit = 10
	tracerName       = "postsdemo/internal/posts"
)

var ErrNotFound = errors.New("not found")

// StatusError is returned for any non-2xx upstream response other than a
// missing post.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	delay      time.Duration
	listLimit  int
	logger     *log.Logger
}

func NewClient(cfg config.Config, logger *log.Logger) *Client {
	return NewClientWithHTTP(cfg, logger, &http.Client{
		Timeout: cfg.APITimeout,
		Transport: &tracingTransport{
			base:   http.DefaultTransport,
			tracer: otel.Tracer(tracerName),
		},
	})
}

func NewClientWithHTTP(cfg config.Config, logger *log.Logger, httpClient *http.Client) *Client {
	listLimit := cfg.ListLimit
	if listLimit < 1 {
		listLimit = defaultListLimit
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"),
		httpClient: httpClient,
		delay:      cfg.FetchDelay,
		listLimit:  listLimit,
		logger:     logger,
	}
}

// FetchPosts returns the first page of posts in upstream order.
func (c *Client) FetchPosts(ctx context.Context) ([]Post, error) {
	c.logger.Printf("Fetching posts...")
	if err := c.sleep(ctx); err != nil {
		return nil, err
	}

	var list []Post
	if _, err := c.getJSON(ctx, "/posts", &list); err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}

	if len(list) > c.listLimit {
		list = list[:c.listLimit]
	}
	if list == nil {
		list = []Post{}
	}
	return list, nil
}

func (c *Client) FetchPost(ctx context.Context, id string) (Post, error) {
	c.logger.Printf("Fetching post with id %q...", id)
	if err := c.sleep(ctx); err != nil {
		return Post{}, err
	}

	var post *Post
	status, err := c.getJSON(ctx, "/posts/"+url.PathEscape(id), &post)
	if status == http.StatusNotFound {
		return Post{}, fmt.Errorf("post with id %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Post{}, fmt.Errorf("fetch post %q: %w", id, err)
	}
	if post == nil || post.IsZero() {
		return Post{}, fmt.Errorf("post with id %q: %w", id, ErrNotFound)
	}

	return *post, nil
}

func (c *Client) getJSON(ctx context.Context, path string, target any) (int, error) {
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, &StatusError{URL: endpoint, Code: resp.StatusCode}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}

	return resp.StatusCode, nil
}

func (c *Client) sleep(ctx context.Context) error {
	if c.delay <= 0 {
		return nil
	}

	timer := time.NewTimer(c.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type tracingTransport struct {
	base   http.RoundTripper
	tracer trace.Tracer
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := t.tracer.Start(req.Context(), "GET "+req.URL.Path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.String()),
		),
	)
	defer span.End()

	outgoing := req.Clone(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(outgoing.Header))

	resp, err := t.base.RoundTrip(outgoing)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
	}
	return resp, nil
}
