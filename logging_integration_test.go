package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingFallbackToStderr(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("not a directory"), 0o600))

	logPath := filepath.Join(blocked, "sub", "hubcache.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFilePath = "%s"
CacheDir = "%s"
`, logPath, filepath.Join(dir, "cache")))

	useBufferWriters(t)
	code := execute(context.Background(), []string{"check-config", "--config", configPath})
	assert.Equal(t, exitOK, code, "日志目录不可用时应降级到 stderr 而不是失败")
}

func TestLoggingWritesToFile(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "hubcache.log")
	configPath := writeConfigFile(t, fmt.Sprintf(`
LogLevel = "info"
LogFormat = "json"
LogFilePath = "%s"
LogCompress = false
CacheDir = "%s"
`, logPath, filepath.Join(dir, "cache")))

	useBufferWriters(t)
	require.Equal(t, exitOK, execute(context.Background(), []string{"check-config", "--config", configPath}))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"check_config"`)
	assert.Contains(t, string(data), `"auth_mode":"anonymous"`)
}
