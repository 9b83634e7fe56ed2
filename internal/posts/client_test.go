package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postsdemo/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	upstream := httptest.NewServer(handler)
	t.Cleanup(upstream.Close)

	return NewClientWithHTTP(config.Config{
		APIBaseURL: upstream.URL + "/",
		ListLimit:  10,
	}, nil, upstream.Client())
}

func postsJSON(count int) string {
	items := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		items = append(items, fmt.Sprintf(`{"userId":1,"id":%d,"title":"title %d","body":"body %d"}`, i, i, i))
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestFetchPostsTruncatesToLimitInSourceOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/posts" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(postsJSON(100)))
	})

	list, err := client.FetchPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 10)
	for i, post := range list {
		assert.Equal(t, ID(fmt.Sprint(i+1)), post.ID)
	}
}

func TestFetchPostsShortAndEmptyLists(t *testing.T) {
	for _, count := range []int{0, 3, 10} {
		t.Run(fmt.Sprint(count), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(postsJSON(count)))
			})

			list, err := client.FetchPosts(context.Background())
			require.NoError(t, err)
			assert.Len(t, list, count)
			assert.NotNil(t, list)
		})
	}
}

func TestFetchPostsPropagatesUpstreamStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.FetchPosts(context.Background())
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFetchPost(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/posts/1":
			_, _ = w.Write([]byte(`{"userId":1,"id":1,"title":"Alpha","body":"hello"}`))
		case "/posts/empty":
			_, _ = w.Write([]byte(`{}`))
		case "/posts/null":
			_, _ = w.Write([]byte(`null`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{}`))
		}
	})

	post, err := client.FetchPost(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, Post{ID: "1", Title: "Alpha", Body: "hello"}, post)

	for _, id := range []string{"empty", "null", "i-do-not-exist"} {
		_, err := client.FetchPost(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
}

func TestFetchPostEscapesID(t *testing.T) {
	var gotPath atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.EscapedPath())
		_, _ = w.Write([]byte(`{"id":"a/b","title":"x"}`))
	})

	post, err := client.FetchPost(context.Background(), "a/b")
	require.NoError(t, err)
	assert.Equal(t, ID("a/b"), post.ID)
	assert.Equal(t, "/posts/a%2Fb", gotPath.Load())
}

func TestFetchDelayHonorsContext(t *testing.T) {
	client := NewClientWithHTTP(config.Config{
		APIBaseURL: "http://127.0.0.1:1",
		FetchDelay: time.Hour,
	}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := client.FetchPosts(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIDUnmarshal(t *testing.T) {
	var numeric Post
	require.NoError(t, json.Unmarshal([]byte(`{"id": 42}`), &numeric))
	assert.Equal(t, ID("42"), numeric.ID)

	var text Post
	require.NoError(t, json.Unmarshal([]byte(`{"id": "abc"}`), &text))
	assert.Equal(t, ID("abc"), text.ID)

	var invalid Post
	assert.Error(t, json.Unmarshal([]byte(`{"id": true}`), &invalid))
}
