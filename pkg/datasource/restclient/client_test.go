package restclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/wait"

	v1 "github.com/openshift/culprit/pkg/apis/ci/v1"
)

var fastBackoff = wait.Backoff{Duration: time.Millisecond, Factor: 1, Steps: 3}

func TestGet(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		switch r.URL.Path {
		case "/flaky":
			if n == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write([]byte(`{"value": "` + r.URL.Query().Get("q") + `"}`))
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		case "/forbidden":
			w.WriteHeader(http.StatusForbidden)
		case "/garbage":
			_, _ = w.Write([]byte(`{"value": `))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithBackoff(fastBackoff), WithRateLimit(0, 0))
	ctx := context.Background()

	t.Run("retries server errors", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		res, err := c.Get(ctx, "/flaky", url.Values{"q": []string{"ok"}})
		require.NoError(t, err)
		assert.Equal(t, "ok", res.Get("value").String())
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})

	t.Run("gives up", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		_, err := c.Get(ctx, "/broken", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "giving up after 3 attempts")
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		_, err := c.Get(ctx, "/forbidden", nil)
		require.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := c.Get(ctx, "/missing", nil)
		assert.ErrorIs(t, err, v1.ErrPushNotFound)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := c.Get(ctx, "/garbage", nil)
		assert.Error(t, err)
	})
}

func TestRateLimit(t *testing.T) {
	c := New("http://unused", WithRateLimit(10, 2))
	require.NotNil(t, c.Limiter)
	assert.Equal(t, 2, c.Limiter.Burst())

	c = New("http://unused", WithRateLimit(0, 0))
	assert.Nil(t, c.Limiter)
}
