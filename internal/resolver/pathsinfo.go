package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// maxPathsInfoBytes 限制 paths-info 响应体大小，单文件查询远小于该值。
const maxPathsInfoBytes = 4 << 20

// PathsInfoResolver 通过 POST {endpoint}/api/{types}/{repo}/paths-info/{rev} 查询元数据。
type PathsInfoResolver struct {
	opts Options
}

// NewPathsInfoResolver 构造基于 paths-info API 的解析器。
func NewPathsInfoResolver(opts Options) *PathsInfoResolver {
	return &PathsInfoResolver{opts: opts}
}

type pathsInfoBody struct {
	Paths  []string `json:"paths"`
	Expand bool     `json:"expand"`
}

// Resolve 实现 Resolver。
func (r *PathsInfoResolver) Resolve(ctx context.Context, req Request) (Metadata, error) {
	if err := validate(req); err != nil {
		return Metadata{}, newError(ReasonNotFound, req, err)
	}

	target := fmt.Sprintf("%s/api/%s/%s/paths-info/%s",
		r.opts.endpoint(), req.RepoType.Plural(), req.RepoID, url.PathEscape(revisionOf(req)))
	payload, err := json.Marshal(pathsInfoBody{Paths: []string{req.Filename}, Expand: true})
	if err != nil {
		return Metadata{}, newError(ReasonMalformed, req, err)
	}

	httpReq, err := r.opts.newRequest(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return Metadata{}, newError(ReasonTransport, req, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.opts.client().Do(httpReq)
	if err != nil {
		return Metadata{}, newError(ReasonTransport, req, err)
	}
	defer resp.Body.Close()

	if reason := statusReason(resp.StatusCode); reason != 0 {
		return Metadata{}, newError(reason, req, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPathsInfoBytes))
	if err != nil {
		return Metadata{}, newError(ReasonTransport, req, err)
	}

	meta, reason, err := parsePathsInfo(body, req.Filename)
	if err != nil {
		return Metadata{}, newError(reason, req, err)
	}
	if commit := commitFromHeader(resp.Header); commit != "" {
		meta.CommitID = commit
	}
	if meta.CommitID == "" {
		meta.CommitID = UnknownCommit
	}
	return meta, nil
}

// parsePathsInfo 从 paths-info 数组中挑出 filename 对应的条目。
func parsePathsInfo(body []byte, filename string) (Metadata, Reason, error) {
	if !gjson.ValidBytes(body) {
		return Metadata{}, ReasonMalformed, errors.New("invalid json")
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsArray() {
		return Metadata{}, ReasonMalformed, errors.New("expected json array")
	}

	entries := parsed.Array()
	if len(entries) == 0 {
		return Metadata{}, ReasonNotFound, errors.New("path not found")
	}
	var entry gjson.Result
	for _, candidate := range entries {
		if candidate.Get("path").String() == filename {
			entry = candidate
			break
		}
	}
	if !entry.Exists() {
		return Metadata{}, ReasonNotFound, errors.New("path not found")
	}

	if entry.Get("type").String() == "directory" {
		return Metadata{}, ReasonNotFound, errors.New("path is a directory")
	}

	meta := Metadata{
		ObjectID: entry.Get("oid").String(),
		SHA256:   entry.Get("lfs.oid").String(),
		CommitID: entry.Get("lastCommit.id").String(),
	}
	if lfsSize := entry.Get("lfs.size"); lfsSize.Exists() {
		meta.SizeBytes = lfsSize.Uint()
	} else {
		meta.SizeBytes = entry.Get("size").Uint()
	}

	meta.ContentID = meta.SHA256
	if meta.ContentID == "" {
		meta.ContentID = meta.ObjectID
	}
	if meta.ContentID == "" {
		return Metadata{}, ReasonMalformed, errors.New("response has neither lfs.oid nor oid")
	}
	return meta, 0, nil
}
