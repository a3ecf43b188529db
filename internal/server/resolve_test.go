package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/any-hub/hubcache/internal/cache"
	"github.com/any-hub/hubcache/internal/download"
	"github.com/any-hub/hubcache/internal/logging"
	"github.com/any-hub/hubcache/internal/repo"
	"github.com/any-hub/hubcache/internal/resolver"
	"github.com/any-hub/hubcache/internal/transfer"
)

func TestParseResolvePath(t *testing.T) {
	cases := []struct {
		raw  string
		ok   bool
		want Target
	}{
		{
			raw:  "/org/model/resolve/main/config.json",
			ok:   true,
			want: Target{RepoType: repo.TypeModel, RepoID: "org/model", Revision: "main", Filename: "config.json"},
		},
		{
			raw:  "/gpt2/resolve/v1/onnx/model.onnx",
			ok:   true,
			want: Target{RepoType: repo.TypeModel, RepoID: "gpt2", Revision: "v1", Filename: "onnx/model.onnx"},
		},
		{
			raw:  "/datasets/org/data/resolve/refs%2Fpr%2F1/train.csv",
			ok:   true,
			want: Target{RepoType: repo.TypeDataset, RepoID: "org/data", Revision: "refs/pr/1", Filename: "train.csv"},
		},
		{
			raw:  "/spaces/org/app/resolve/main/app.py",
			ok:   true,
			want: Target{RepoType: repo.TypeSpace, RepoID: "org/app", Revision: "main", Filename: "app.py"},
		},
		{raw: "/org/model/resolve/main"},
		{raw: "/org/model/raw/main/a.txt"},
		{raw: "/org/model/resolve/main/../secret"},
		{raw: "/"},
		{raw: "/datasets"},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			target, ok := parseResolvePath(tc.raw)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				require.Equal(t, tc.want, target)
			}
		})
	}
}

type staticResolver struct {
	meta resolver.Metadata
}

func (s staticResolver) Resolve(context.Context, resolver.Request) (resolver.Metadata, error) {
	return s.meta, nil
}

func TestDownloaderFetcherServesFromPipeline(t *testing.T) {
	content := "hello from the hub"
	upstream := httptest.NewServer(newBytesHandler(content))
	defer upstream.Close()

	d, err := download.New(download.Options{
		CacheDir: t.TempDir(),
		Endpoint: upstream.URL,
		Resolver: staticResolver{meta: resolver.Metadata{
			ContentID: "b10b",
			CommitID:  "c1",
			SizeBytes: uint64(len(content)),
		}},
		Engine: transfer.NewEngine(transfer.NewHTTPTransport(upstream.Client(), ""), 0),
		Logger: logging.Discard(),
		Locker: cache.NewLocker(false, 0),
	})
	require.NoError(t, err)

	app := newTestApp(t, NewDownloaderFetcher(d))
	for _, wantHit := range []string{"false", "true"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/datasets/org/data/resolve/main/a.txt", nil))
		require.NoError(t, err)
		require.Equal(t, 200, resp.StatusCode)
		require.Equal(t, wantHit, resp.Header.Get("X-Hubcache-Cache-Hit"))
		body, _ := io.ReadAll(resp.Body)
		require.Equal(t, content, string(body))
	}
}

type bytesHandler string

func newBytesHandler(content string) bytesHandler {
	return bytesHandler(content)
}

func (b bytesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/datasets/org/data/resolve/c1/a.txt" {
		http.NotFound(w, r)
		return
	}
	io.WriteString(w, string(b))
}
