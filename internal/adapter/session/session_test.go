package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jgivc/acstdl/internal/config"
)

func newTestCache() *Cache {
	return NewCache(&config.HTTPConfig{VerifyTLS: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAcquireReturnsSameSession(t *testing.T) {
	c := newTestCache()
	defer c.Close()

	const callers = 32

	var wg sync.WaitGroup
	sessions := make([]*Session, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			sessions[i] = c.Acquire("Example.COM")
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		require.Same(t, sessions[0], s)
	}
	require.Equal(t, "example.com", sessions[0].Domain)
	require.Equal(t, 1, c.Len())

	require.NotSame(t, sessions[0], c.Acquire("other.com"))
	require.Equal(t, 2, c.Len())
}

func TestResolverCachesLookups(t *testing.T) {
	var calls atomic.Int32
	r := &resolver{
		lookup: func(ctx context.Context, host string) ([]string, error) {
			calls.Add(1)

			return []string{"127.0.0.1"}, nil
		},
		addrs: make(map[string][]string),
	}

	for i := 0; i < 3; i++ {
		addrs, err := r.resolve(context.Background(), "podcast.example.com")
		require.NoError(t, err)
		require.Equal(t, []string{"127.0.0.1"}, addrs)
	}
	require.EqualValues(t, 1, calls.Load())

	addrs, err := r.resolve(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1"}, addrs)
	require.EqualValues(t, 1, calls.Load())
}

func TestResolverDoesNotCacheFailures(t *testing.T) {
	var calls atomic.Int32
	r := &resolver{
		lookup: func(ctx context.Context, host string) ([]string, error) {
			calls.Add(1)

			return nil, fmt.Errorf("lookup failed")
		},
		addrs: make(map[string][]string),
	}

	_, err := r.resolve(context.Background(), "a.example.com")
	require.Error(t, err)
	_, err = r.resolve(context.Background(), "a.example.com")
	require.Error(t, err)
	require.EqualValues(t, 2, calls.Load())
}

func TestSessionClientReusesConnections(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestCache()
	defer c.Close()

	s := c.Acquire("127.0.0.1")
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Wait(context.Background()))

		resp, err := s.Client.Get(srv.URL)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		require.Equal(t, "ok", string(body))
	}
}
