package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// hubEnvNames 是会覆盖配置文件取值的环境变量，测试前统一清空。
var hubEnvNames = []string{"HF_HUB_CACHE", "HF_ENDPOINT", "HF_TOKEN", "HUBCACHE_CACHEDIR", "HUBCACHE_ENDPOINT", "HUBCACHE_TOKEN", "HUBCACHE_REVISION"}

func clearHubEnv(t *testing.T) {
	t.Helper()
	for _, name := range hubEnvNames {
		t.Setenv(name, "")
	}
}

// testConfigPath 返回 testdata 下的配置样例，并隔离宿主机上的 Hub 环境变量。
func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	clearHubEnv(t)
	return filepath.Join("testdata", name)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	clearHubEnv(t)
	path := filepath.Join(t.TempDir(), "hubcache.toml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}
