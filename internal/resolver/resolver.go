package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/any-hub/hubcache/internal/repo"
	"github.com/any-hub/hubcache/internal/version"
)

// UnknownCommit 在上游未返回任何提交信息时用作快照命名空间。
const UnknownCommit = "unknown"

// Metadata 是缓存寻址所需的最小信息集合。ContentID 是 blob 文件名：LFS 文件为
// sha256，其余为 git 对象 id；CommitID 是快照目录名，缺失时为 UnknownCommit。
type Metadata struct {
	ContentID string
	CommitID  string
	SizeBytes uint64

	ObjectID string
	SHA256   string
}

// Request 描述一次元数据查询。
type Request struct {
	RepoType repo.Type
	RepoID   string
	Filename string
	Revision string
}

// Resolver 查询远端文件的元数据。实现不得重试，失败统一返回 *ResolutionError。
type Resolver interface {
	Resolve(ctx context.Context, req Request) (Metadata, error)
}

// Reason 区分元数据查询失败的原因。
type Reason int

const (
	ReasonNotFound Reason = iota + 1
	ReasonTransport
	ReasonMalformed
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "not_found"
	case ReasonTransport:
		return "transport"
	case ReasonMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ResolutionError 是带原因标签的查询失败。
type ResolutionError struct {
	Reason Reason
	Repo   string
	File   string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s/%s: %s: %v", e.Repo, e.File, e.Reason, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// ReasonOf 提取 err 链中的 Reason；不是 ResolutionError 时返回 0。
func ReasonOf(err error) Reason {
	var resErr *ResolutionError
	if errors.As(err, &resErr) {
		return resErr.Reason
	}
	return 0
}

func newError(reason Reason, req Request, err error) *ResolutionError {
	return &ResolutionError{Reason: reason, Repo: req.RepoID, File: req.Filename, Err: err}
}

// Options 是两个 HTTP 解析器共享的参数。
type Options struct {
	Endpoint string
	Token    string
	Client   *http.Client
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return http.DefaultClient
}

func (o Options) endpoint() string {
	return strings.TrimRight(o.Endpoint, "/")
}

func (o Options) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if o.Token != "" {
		req.Header.Set("Authorization", "Bearer "+o.Token)
	}
	return req, nil
}

func validate(req Request) error {
	if err := repo.ValidateID(req.RepoID); err != nil {
		return err
	}
	return repo.ValidateFilename(req.Filename)
}

func revisionOf(req Request) string {
	if req.Revision == "" {
		return "main"
	}
	return req.Revision
}

// escapePath 逐段转义文件路径，保留 / 分隔符。
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

// ResolveURL 返回文件下载地址 {endpoint}/{prefix}{repo}/resolve/{rev}/{file}。
func ResolveURL(endpoint string, repoType repo.Type, repoID, revision, filename string) string {
	return fmt.Sprintf("%s/%s%s/resolve/%s/%s",
		strings.TrimRight(endpoint, "/"), repoType.URLPrefix(), repoID,
		url.PathEscape(revision), escapePath(filename))
}

// statusReason 把 HTTP 状态码映射为失败原因；2xx 返回 0。
func statusReason(code int) Reason {
	switch {
	case code >= 200 && code < 300:
		return 0
	case code == http.StatusNotFound, code == http.StatusUnauthorized, code == http.StatusForbidden:
		return ReasonNotFound
	default:
		return ReasonTransport
	}
}

// commitFromHeader 读取 X-Repo-Commit，缺失时返回空字符串。
func commitFromHeader(h http.Header) string {
	return strings.TrimSpace(h.Get("X-Repo-Commit"))
}
