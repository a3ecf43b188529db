package download

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/any-hub/hubcache/internal/cache"
	"github.com/any-hub/hubcache/internal/logging"
	"github.com/any-hub/hubcache/internal/resolver"
	"github.com/any-hub/hubcache/internal/transfer"
)

const testRepo = "org/model"

// fakeHub 同时充当 Resolver 与文件服务端，记录每次文件请求。
type fakeHub struct {
	t *testing.T

	mu       sync.Mutex
	commit   string
	files    map[string][]byte
	sizes    map[string]uint64
	failing  map[string]bool
	stalling map[string]bool
	fetched  []string
	ranges   []string
	resolved []string

	server *httptest.Server
}

func newFakeHub(t *testing.T) *fakeHub {
	t.Helper()
	hub := &fakeHub{
		t:        t,
		commit:   "c0mmit1",
		files:    make(map[string][]byte),
		sizes:    make(map[string]uint64),
		failing:  make(map[string]bool),
		stalling: make(map[string]bool),
	}
	hub.server = httptest.NewServer(http.HandlerFunc(hub.serveFile))
	t.Cleanup(hub.server.Close)
	return hub
}

func (h *fakeHub) add(name string, content []byte) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files[name] = content
	return contentID(content)
}

func (h *fakeHub) setCommit(commit string) {
	h.mu.Lock()
	h.commit = commit
	h.mu.Unlock()
}

func (h *fakeHub) fetchedFiles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.fetched...)
}

func (h *fakeHub) rangeHeaders() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ranges...)
}

func (h *fakeHub) Resolve(ctx context.Context, req resolver.Request) (resolver.Metadata, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolved = append(h.resolved, req.Filename)
	content, ok := h.files[req.Filename]
	if !ok {
		return resolver.Metadata{}, &resolver.ResolutionError{
			Reason: resolver.ReasonNotFound,
			Repo:   req.RepoID,
			File:   req.Filename,
			Err:    http.ErrMissingFile,
		}
	}
	size := uint64(len(content))
	if override, ok := h.sizes[req.Filename]; ok {
		size = override
	}
	return resolver.Metadata{
		ContentID: contentID(content),
		CommitID:  h.commit,
		SizeBytes: size,
	}, nil
}

func (h *fakeHub) serveFile(w http.ResponseWriter, r *http.Request) {
	prefix := "/" + testRepo + "/resolve/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		http.NotFound(w, r)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	slash := strings.Index(rest, "/")
	if slash < 0 {
		http.NotFound(w, r)
		return
	}
	name := rest[slash+1:]

	h.mu.Lock()
	h.fetched = append(h.fetched, name)
	h.ranges = append(h.ranges, r.Header.Get("Range"))
	content, ok := h.files[name]
	failing := h.failing[name]
	stalling := h.stalling[name]
	h.mu.Unlock()

	switch {
	case !ok:
		http.NotFound(w, r)
	case failing:
		http.Error(w, "boom", http.StatusInternalServerError)
	case stalling:
		half := len(content) / 2
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.Write(content[:half])
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	default:
		http.ServeContent(w, r, name, time.Time{}, bytes.NewReader(content))
	}
}

func contentID(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func testContent(size int, seed byte) []byte {
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i%241) ^ seed
	}
	return content
}

func newTestDownloader(t *testing.T, hub *fakeHub, mutate ...func(*Options)) (*Downloader, string) {
	t.Helper()
	cacheDir := t.TempDir()
	opts := Options{
		CacheDir: cacheDir,
		Endpoint: hub.server.URL,
		Resolver: hub,
		Engine:   transfer.NewEngine(transfer.NewHTTPTransport(hub.server.Client(), ""), 0),
		Locker:   cache.NewLocker(false, 0),
		Logger:   logging.Discard(),
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	d, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, cacheDir
}

// recordingReporter 把进度回调转交给测试函数。
type recordingReporter struct {
	onUpdate func(transfer.Progress)
	finished bool
}

func (r *recordingReporter) Update(p transfer.Progress) {
	if r.onUpdate != nil {
		r.onUpdate(p)
	}
}

func (r *recordingReporter) Finish() {
	r.finished = true
}
