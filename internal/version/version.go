package version

import (
	"fmt"
	"runtime"
)

// 构建时注入：-ldflags "-X github.com/any-hub/hubcache/internal/version.Version=..."
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// Full 用于 `hubcache version` 与 /-/healthz。
func Full() string {
	return fmt.Sprintf("hubcache %s (%s, %s)", Version, Commit, runtime.Version())
}

// UserAgent 附在所有发往 Hub 的请求上。
func UserAgent() string {
	return fmt.Sprintf("hubcache/%s; go/%s", Version, runtime.Version())
}
