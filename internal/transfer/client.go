package transfer

import (
	"net"
	"net/http"
	"time"

	"github.com/any-hub/hubcache/internal/config"
)

const defaultUpstreamTimeout = 30 * time.Second

// 共享 HTTP transport 配置，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

func upstreamTimeout(cfg *config.Config) time.Duration {
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		return cfg.Global.UpstreamTimeout.DurationValue()
	}
	return defaultUpstreamTimeout
}

// NewMetadataClient 返回用于元数据查询的 http.Client，整个请求受 UpstreamTimeout 约束。
func NewMetadataClient(cfg *config.Config) *http.Client {
	return &http.Client{
		Timeout:   upstreamTimeout(cfg),
		Transport: defaultTransport.Clone(),
	}
}

// NewDownloadClient 返回用于文件传输的 http.Client。大文件传输时间不可预估，
// 因此只限制响应头等待时间，传输本身由 ctx 取消。
func NewDownloadClient(cfg *config.Config) *http.Client {
	transport := defaultTransport.Clone()
	transport.ResponseHeaderTimeout = upstreamTimeout(cfg)
	// 需要原始字节以便按偏移续传
	transport.DisableCompression = true
	return &http.Client{Transport: transport}
}
