package server

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/hubcache/internal/download"
	"github.com/any-hub/hubcache/internal/repo"
	"github.com/any-hub/hubcache/internal/resolver"
)

// fetchRecorder 记录收到的 Target，并返回预设的 Result。
type fetchRecorder struct {
	mu      sync.Mutex
	targets []Target
	result  download.Result
	calls   atomic.Int32
	gate    chan struct{}
}

func (f *fetchRecorder) Fetch(ctx context.Context, target Target) download.Result {
	f.calls.Add(1)
	f.mu.Lock()
	f.targets = append(f.targets, target)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	return f.result
}

func newTestApp(t *testing.T, fetcher Fetcher) *fiber.App {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := NewApp(AppOptions{Logger: logger, Fetcher: fetcher})
	require.NoError(t, err)
	return app
}

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRouterServesSnapshot(t *testing.T) {
	fetcher := &fetchRecorder{result: download.Result{
		Success:  true,
		Path:     writeSnapshot(t, `{"a":1}`),
		CacheHit: true,
	}}
	app := newTestApp(t, fetcher)

	resp, err := app.Test(httptest.NewRequest("GET", "/org/model/resolve/main/config.json", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, `{"a":1}`, string(body))
	require.Equal(t, "true", resp.Header.Get("X-Hubcache-Cache-Hit"))
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	require.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	require.Equal(t, []Target{{
		RepoType: repo.TypeModel,
		RepoID:   "org/model",
		Revision: "main",
		Filename: "config.json",
	}}, fetcher.targets)
}

func TestRouterHeadOmitsBody(t *testing.T) {
	fetcher := &fetchRecorder{result: download.Result{Success: true, Path: writeSnapshot(t, "12345")}}
	app := newTestApp(t, fetcher)

	resp, err := app.Test(httptest.NewRequest("HEAD", "/org/model/resolve/main/config.json", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "5", resp.Header.Get("Content-Length"))
	require.Equal(t, "false", resp.Header.Get("X-Hubcache-Cache-Hit"))
	body, _ := io.ReadAll(resp.Body)
	require.Empty(t, body)
}

func TestRouterMapsFailures(t *testing.T) {
	notFound := &download.Error{
		Kind: download.KindResolution,
		Op:   "resolve",
		Err:  &resolver.ResolutionError{Reason: resolver.ReasonNotFound, Err: errors.New("404")},
	}
	malformed := &download.Error{
		Kind: download.KindResolution,
		Op:   "resolve",
		Err:  &resolver.ResolutionError{Reason: resolver.ReasonMalformed, Err: errors.New("bad json")},
	}
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", notFound, fiber.StatusNotFound},
		{"malformed", malformed, fiber.StatusBadGateway},
		{"transport", &download.Error{Kind: download.KindTransport, Err: errors.New("reset")}, fiber.StatusBadGateway},
		{"size", &download.Error{Kind: download.KindSizeMismatch, Err: errors.New("short")}, fiber.StatusBadGateway},
		{"io", &download.Error{Kind: download.KindIO, Err: errors.New("disk full")}, fiber.StatusInternalServerError},
		{"cancelled", &download.Error{Kind: download.KindCancelled, Err: context.Canceled}, fiber.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t, &fetchRecorder{result: download.Result{Err: tc.err}})
			resp, err := app.Test(httptest.NewRequest("GET", "/org/model/resolve/main/x.bin", nil))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestRouterUnknownPath(t *testing.T) {
	fetcher := &fetchRecorder{}
	app := newTestApp(t, fetcher)

	resp, err := app.Test(httptest.NewRequest("GET", "/org/model/blob/main/x.bin", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	require.Zero(t, fetcher.calls.Load())
}

func TestRouterCoalescesConcurrentRequests(t *testing.T) {
	fetcher := &fetchRecorder{
		result: download.Result{Success: true, Path: writeSnapshot(t, "shared")},
		gate:   make(chan struct{}),
	}
	app := newTestApp(t, fetcher)

	var wg sync.WaitGroup
	statuses := make([]int, 3)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := app.Test(httptest.NewRequest("GET", "/org/model/resolve/main/config.json", nil),
				fiber.TestConfig{Timeout: 5 * time.Second})
			if err == nil {
				statuses[i] = resp.StatusCode
			}
		}(i)
	}

	require.Eventually(t, func() bool { return fetcher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// 给其余请求时间加入同一个 singleflight 调用
	time.Sleep(100 * time.Millisecond)
	close(fetcher.gate)
	wg.Wait()

	require.Equal(t, int32(1), fetcher.calls.Load())
	require.Equal(t, []int{200, 200, 200}, statuses)
}

func TestNewAppRequiresDependencies(t *testing.T) {
	_, err := NewApp(AppOptions{Fetcher: &fetchRecorder{}})
	require.Error(t, err)

	logger := logrus.New()
	_, err = NewApp(AppOptions{Logger: logger})
	require.Error(t, err)
}
