package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "80ms"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 仓库类型、解析器与过期提交策略的合法取值。
const (
	RepoTypeModel   = "model"
	RepoTypeDataset = "dataset"
	RepoTypeSpace   = "space"

	ResolverPathsInfo = "paths-info"
	ResolverPointer   = "pointer"

	StaleCommitKeep  = "keep"
	StaleCommitPurge = "purge"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// GlobalConfig 描述一次 CLI 调用或 serve 进程共享的全部参数。
type GlobalConfig struct {
	LogLevel      string `mapstructure:"LogLevel"`
	LogFormat     string `mapstructure:"LogFormat"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	CacheDir          string   `mapstructure:"CacheDir"`
	Endpoint          string   `mapstructure:"Endpoint"`
	Token             string   `mapstructure:"Token"`
	Revision          string   `mapstructure:"Revision"`
	RepoType          string   `mapstructure:"RepoType"`
	Resolver          string   `mapstructure:"Resolver"`
	UpstreamTimeout   Duration `mapstructure:"UpstreamTimeout"`
	ProgressInterval  Duration `mapstructure:"ProgressInterval"`
	StaleCommitPolicy string   `mapstructure:"StaleCommitPolicy"`
	BlobLocking       bool     `mapstructure:"BlobLocking"`
	LockTimeout       Duration `mapstructure:"LockTimeout"`
	ListenPort        int      `mapstructure:"ListenPort"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
}

// HasToken 表示是否配置了访问私有仓库的令牌。
func (g GlobalConfig) HasToken() bool {
	return strings.TrimSpace(g.Token) != ""
}

// AuthMode 输出 `token` 或 `anonymous`，供日志字段使用，避免把令牌本身写入日志。
func (g GlobalConfig) AuthMode() string {
	if g.HasToken() {
		return "token"
	}
	return "anonymous"
}
