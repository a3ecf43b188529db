package server

import (
	"context"
	"errors"
	"mime"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/hubcache/internal/cache"
	"github.com/any-hub/hubcache/internal/download"
	"github.com/any-hub/hubcache/internal/logging"
	"github.com/any-hub/hubcache/internal/repo"
	"github.com/any-hub/hubcache/internal/resolver"
)

// Target 是从 resolve URL 中解析出的文件坐标。
type Target struct {
	RepoType repo.Type
	RepoID   string
	Revision string
	Filename string
}

func (t Target) key() string {
	return string(t.RepoType) + "|" + t.RepoID + "|" + t.Revision + "|" + t.Filename
}

// Fetcher 把 Target 落到本地缓存并返回快照路径。
type Fetcher interface {
	Fetch(ctx context.Context, target Target) download.Result
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, target Target) download.Result

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, target Target) download.Result {
	return f(ctx, target)
}

// NewDownloaderFetcher 用单文件流水线实现 Fetcher，仓库类型与 revision 取自请求。
func NewDownloaderFetcher(d *download.Downloader) Fetcher {
	return FetcherFunc(func(ctx context.Context, target Target) download.Result {
		return d.WithTarget(target.RepoType, target.Revision).Download(ctx, target.RepoID, target.Filename, false)
	})
}

var repoTypeSegments = map[string]repo.Type{
	"models":   repo.TypeModel,
	"datasets": repo.TypeDataset,
	"spaces":   repo.TypeSpace,
}

// parseResolvePath 解析 /[datasets|spaces/]<repo>/resolve/<revision>/<file...>，
// repo 为一段或两段。raw 为未解码的原始路径，各段单独解码以保留 %2F。
func parseResolvePath(raw string) (Target, bool) {
	segments := strings.Split(strings.Trim(raw, "/"), "/")
	for i, segment := range segments {
		decoded, err := url.PathUnescape(segment)
		if err != nil {
			return Target{}, false
		}
		segments[i] = decoded
	}

	target := Target{RepoType: repo.TypeModel}
	if repoType, ok := repoTypeSegments[segments[0]]; ok {
		target.RepoType = repoType
		segments = segments[1:]
	}

	idx := -1
	for i := 1; i <= 2 && i < len(segments); i++ {
		if segments[i] == "resolve" {
			idx = i
			break
		}
	}
	if idx < 0 || len(segments) < idx+3 {
		return Target{}, false
	}

	target.RepoID = strings.Join(segments[:idx], "/")
	target.Revision = segments[idx+1]
	target.Filename = strings.Join(segments[idx+2:], "/")
	if target.Revision == "" || repo.ValidateID(target.RepoID) != nil || repo.ValidateFilename(target.Filename) != nil {
		return Target{}, false
	}
	return target, true
}

type resolveHandler struct {
	baseCtx context.Context
	fetcher Fetcher
	logger  *logrus.Logger
	group   singleflight.Group
}

func newResolveHandler(baseCtx context.Context, fetcher Fetcher, logger *logrus.Logger) *resolveHandler {
	return &resolveHandler{baseCtx: baseCtx, fetcher: fetcher, logger: logger}
}

// Handle 执行 解析 → 下载（同一文件合并）→ 从快照流式返回。
func (h *resolveHandler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := RequestID(c)

	target, ok := parseResolvePath(string(c.Request().URI().PathOriginal()))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "route_not_found"})
	}

	value, _, shared := h.group.Do(target.key(), func() (any, error) {
		return h.fetcher.Fetch(h.baseCtx, target), nil
	})
	result, _ := value.(download.Result)

	fields := logging.DownloadFields(target.RepoID, target.Filename, target.Revision)
	fields["action"] = "serve"
	fields["request_id"] = requestID
	fields["repo_type"] = string(target.RepoType)
	fields["shared"] = shared

	if !result.Success {
		status, code := statusFor(result.Err)
		h.logResult(fields, status, false, started, result.Err)
		return c.Status(status).JSON(fiber.Map{"error": code})
	}

	cached, err := cache.Open(result.Path)
	if err != nil {
		h.logResult(fields, fiber.StatusInternalServerError, result.CacheHit, started, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "cache_read_failed"})
	}

	c.Set("Content-Type", contentTypeFor(target.Filename))
	c.Set("X-Hubcache-Cache-Hit", strconv.FormatBool(result.CacheHit))
	c.Response().Header.SetContentLength(int(cached.Entry.SizeBytes))
	c.Status(fiber.StatusOK)

	h.logResult(fields, fiber.StatusOK, result.CacheHit, started, nil)
	if c.Method() == fiber.MethodHead {
		cached.Reader.Close()
		return nil
	}
	// fasthttp 在写完后负责关闭 Reader
	c.Response().SetBodyStream(cached.Reader, int(cached.Entry.SizeBytes))
	return nil
}

func (h *resolveHandler) logResult(fields logrus.Fields, status int, cacheHit bool, started time.Time, err error) {
	entry := h.logger.WithFields(fields).WithFields(logrus.Fields{
		"status":      status,
		"cache_hit":   cacheHit,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("request_failed")
		return
	}
	entry.Info("request_complete")
}

// statusFor 把流水线错误类别映射为 HTTP 状态码与错误码。
func statusFor(err error) (int, string) {
	switch download.KindOf(err) {
	case download.KindResolution:
		if resolver.ReasonOf(err) == resolver.ReasonNotFound {
			return fiber.StatusNotFound, "not_found"
		}
		return fiber.StatusBadGateway, "resolution_failed"
	case download.KindTransport:
		return fiber.StatusBadGateway, "upstream_failed"
	case download.KindSizeMismatch:
		return fiber.StatusBadGateway, "size_mismatch"
	case download.KindCancelled:
		return fiber.StatusServiceUnavailable, "shutting_down"
	default:
		if errors.Is(err, context.Canceled) {
			return fiber.StatusServiceUnavailable, "shutting_down"
		}
		return fiber.StatusInternalServerError, "cache_io_failed"
	}
}

func contentTypeFor(filename string) string {
	if ct := mime.TypeByExtension(path.Ext(filename)); ct != "" {
		return ct
	}
	return fiber.MIMEOctetStream
}
