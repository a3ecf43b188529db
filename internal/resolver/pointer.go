package resolver

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	lfsPointerVersion = "version https://git-lfs.github.com/spec/"
	maxRawBytes       = 64 << 20
)

// PointerResolver 通过 GET {endpoint}/{prefix}{repo}/raw/{rev}/{file} 读取原始文件。
// LFS 文件返回指针文本（oid sha256 + size）；普通文件返回内容本身，此时以 git blob
// sha1 作为内容标识。
type PointerResolver struct {
	opts Options
}

// NewPointerResolver 构造基于 raw 端点的解析器。
func NewPointerResolver(opts Options) *PointerResolver {
	return &PointerResolver{opts: opts}
}

// Resolve 实现 Resolver。
func (r *PointerResolver) Resolve(ctx context.Context, req Request) (Metadata, error) {
	if err := validate(req); err != nil {
		return Metadata{}, newError(ReasonNotFound, req, err)
	}

	target := fmt.Sprintf("%s/%s%s/raw/%s/%s",
		r.opts.endpoint(), req.RepoType.URLPrefix(), req.RepoID,
		url.PathEscape(revisionOf(req)), escapePath(req.Filename))
	httpReq, err := r.opts.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Metadata{}, newError(ReasonTransport, req, err)
	}

	resp, err := r.opts.client().Do(httpReq)
	if err != nil {
		return Metadata{}, newError(ReasonTransport, req, err)
	}
	defer resp.Body.Close()

	if reason := statusReason(resp.StatusCode); reason != 0 {
		return Metadata{}, newError(reason, req, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRawBytes+1))
	if err != nil {
		return Metadata{}, newError(ReasonTransport, req, err)
	}
	if len(body) > maxRawBytes {
		return Metadata{}, newError(ReasonMalformed, req, errors.New("raw body exceeds limit for a non-LFS file"))
	}

	var meta Metadata
	if isPointer(body) {
		meta, err = parsePointer(body)
		if err != nil {
			return Metadata{}, newError(ReasonMalformed, req, err)
		}
	} else {
		meta = Metadata{
			ObjectID:  gitBlobID(body),
			SizeBytes: uint64(len(body)),
		}
		meta.ContentID = meta.ObjectID
	}

	meta.CommitID = commitFromHeader(resp.Header)
	if meta.CommitID == "" {
		meta.CommitID = UnknownCommit
	}
	return meta, nil
}

func isPointer(body []byte) bool {
	return len(body) < 1024 && bytes.HasPrefix(body, []byte(lfsPointerVersion))
}

// parsePointer 解析 LFS 指针中的 "oid sha256:<hex>" 与 "size <n>" 行。
func parsePointer(body []byte) (Metadata, error) {
	var (
		meta    Metadata
		hasSize bool
	)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "oid sha256:"):
			meta.SHA256 = strings.TrimPrefix(line, "oid sha256:")
		case strings.HasPrefix(line, "size "):
			size, err := strconv.ParseUint(strings.TrimPrefix(line, "size "), 10, 64)
			if err != nil {
				return Metadata{}, fmt.Errorf("invalid pointer size: %w", err)
			}
			meta.SizeBytes = size
			hasSize = true
		}
	}
	if err := scanner.Err(); err != nil {
		return Metadata{}, err
	}
	if len(meta.SHA256) != sha256HexLen || !isHex(meta.SHA256) {
		return Metadata{}, errors.New("pointer has no valid sha256 oid")
	}
	if !hasSize {
		return Metadata{}, errors.New("pointer has no size")
	}
	meta.ContentID = meta.SHA256
	return meta, nil
}

const sha256HexLen = 64

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// gitBlobID 计算 git 对象 id：sha1("blob <len>\x00" + content)。
func gitBlobID(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
