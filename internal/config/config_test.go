package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadFixture(t *testing.T) {
	cfg, err := Load(testConfigPath(t, "valid.toml"))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	g := cfg.Global
	if g.RepoType != RepoTypeModel {
		t.Fatalf("RepoType 应被标准化为小写，得到 %q", g.RepoType)
	}
	if g.Endpoint != "https://hub.example.com" {
		t.Fatalf("Endpoint 末尾斜杠应被去除，得到 %q", g.Endpoint)
	}
	if g.ProgressInterval.DurationValue() != 120*time.Millisecond {
		t.Fatalf("ProgressInterval 解析错误: %v", g.ProgressInterval.DurationValue())
	}
	if g.UpstreamTimeout.DurationValue() != 45*time.Second {
		t.Fatalf("纯数字应按秒解析: %v", g.UpstreamTimeout.DurationValue())
	}
	if g.StaleCommitPolicy != StaleCommitPurge {
		t.Fatalf("StaleCommitPolicy 应为 purge，得到 %q", g.StaleCommitPolicy)
	}
	if g.ListenPort != 5000 {
		t.Fatalf("ListenPort 应回退默认值，得到 %d", g.ListenPort)
	}
}

func TestLoadRejectsInvalidEndpoint(t *testing.T) {
	if _, err := Load(testConfigPath(t, "invalid.toml")); err == nil {
		t.Fatalf("非 http/https 的 Endpoint 应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateEnumFields(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*GlobalConfig)
		shouldErr bool
	}{
		{"dataset ok", func(g *GlobalConfig) { g.RepoType = RepoTypeDataset }, false},
		{"space ok", func(g *GlobalConfig) { g.RepoType = RepoTypeSpace }, false},
		{"unknown repo type", func(g *GlobalConfig) { g.RepoType = "collection" }, true},
		{"pointer resolver ok", func(g *GlobalConfig) { g.Resolver = ResolverPointer }, false},
		{"unknown resolver", func(g *GlobalConfig) { g.Resolver = "git" }, true},
		{"unknown stale policy", func(g *GlobalConfig) { g.StaleCommitPolicy = "merge" }, true},
		{"bad log level", func(g *GlobalConfig) { g.LogLevel = "loud" }, true},
		{"bad log format", func(g *GlobalConfig) { g.LogFormat = "xml" }, true},
		{"empty revision", func(g *GlobalConfig) { g.Revision = " " }, true},
		{"traversal revision", func(g *GlobalConfig) { g.Revision = "../main" }, true},
		{"negative interval", func(g *GlobalConfig) { g.ProgressInterval = Duration(-time.Second) }, true},
		{"locking without timeout", func(g *GlobalConfig) {
			g.BlobLocking = true
			g.LockTimeout = 0
		}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg.Global)
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestFieldErrorNamesField(t *testing.T) {
	cfg := validConfig()
	cfg.Global.CacheDir = ""
	err := cfg.Validate()
	var fieldErr *FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("期望 FieldError，得到 %T", err)
	}
	if fieldErr.Field != "Global.CacheDir" {
		t.Fatalf("字段路径错误: %s", fieldErr.Field)
	}
}

func TestEndpointErrorWrapsCause(t *testing.T) {
	cfg := validConfig()
	cfg.Global.Endpoint = "ftp://hub.example.com"
	err := cfg.Validate()
	if FieldOf(err) != "Global.Endpoint" {
		t.Fatalf("应定位到 Endpoint，得到 %v", err)
	}
	if errors.Unwrap(err) == nil {
		t.Fatalf("Endpoint 错误应保留底层原因")
	}
}

func TestAuthModeHidesToken(t *testing.T) {
	g := GlobalConfig{Token: "hf_secret"}
	if g.AuthMode() != "token" {
		t.Fatalf("配置令牌时应输出 token")
	}
	if (GlobalConfig{}).AuthMode() != "anonymous" {
		t.Fatalf("未配置令牌时应输出 anonymous")
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			LogLevel:          "info",
			LogFormat:         LogFormatText,
			CacheDir:          "./cache",
			Endpoint:          "https://huggingface.co",
			Revision:          "main",
			RepoType:          RepoTypeModel,
			Resolver:          ResolverPathsInfo,
			UpstreamTimeout:   Duration(time.Second),
			ProgressInterval:  Duration(80 * time.Millisecond),
			StaleCommitPolicy: StaleCommitKeep,
			LockTimeout:       Duration(time.Minute),
			ListenPort:        5000,
		},
	}
}
