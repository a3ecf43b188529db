package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/any-hub/hubcache/internal/version"
)

var (
	ErrRangeIgnored        = errors.New("transfer: server ignored range request")
	ErrRangeNotSatisfiable = errors.New("transfer: requested range not satisfiable")
	ErrNotFound            = errors.New("transfer: resource not found")
	ErrUnauthorized        = errors.New("transfer: unauthorized")
	ErrForbidden           = errors.New("transfer: access forbidden")
	ErrServerError         = errors.New("transfer: server error")
	ErrUnexpectedStatus    = errors.New("transfer: unexpected status")

	// ErrSink 标记写入本地文件失败，调用方据此区分 IO 错误与网络错误。
	ErrSink = errors.New("transfer: sink write failed")
)

// ByteFunc 接收传输层报告的本次响应总字节数（未知时为 0）与本次已写入字节数。
type ByteFunc func(curTotal, curNow int64)

// Transport 从 url 读取字节写入 sink。offset > 0 时从该偏移续传；
// 每次调用只发起一次请求，不做内部重试。
type Transport interface {
	Fetch(ctx context.Context, url string, offset int64, sink io.Writer, onBytes ByteFunc) error
}

// HTTPTransport 是基于 net/http 的 Transport，自动跟随重定向。
type HTTPTransport struct {
	client *http.Client
	token  string
}

// NewHTTPTransport 构造 HTTPTransport；token 非空时携带 Bearer 认证头。
func NewHTTPTransport(client *http.Client, token string) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{client: client, token: token}
}

// Fetch 实现 Transport。
func (t *HTTPTransport) Fetch(ctx context.Context, url string, offset int64, sink io.Writer, onBytes ByteFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode, offset); err != nil {
		return err
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	_, err = copyWithContext(ctx, sink, resp.Body, func(now int64) {
		if onBytes != nil {
			onBytes(total, now)
		}
	})
	return err
}

func checkStatus(code int, offset int64) error {
	switch {
	case code == http.StatusPartialContent:
		return nil
	case code == http.StatusOK:
		if offset > 0 {
			return ErrRangeIgnored
		}
		return nil
	case code == http.StatusRequestedRangeNotSatisfiable:
		return ErrRangeNotSatisfiable
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusForbidden:
		return ErrForbidden
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}
}

// copyWithContext 在每个分块之间检查 ctx，写入失败包装为 ErrSink。
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, onChunk func(copied int64)) (int64, error) {
	var copied int64
	buf := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, fmt.Errorf("%w: %w", ErrSink, wErr)
			}
			if w < n {
				return copied, fmt.Errorf("%w: %w", ErrSink, io.ErrShortWrite)
			}
			onChunk(copied)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
