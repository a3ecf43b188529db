package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// envAliases 列出与官方 Hub 客户端兼容的环境变量，优先级低于 HUBCACHE_<KEY>。
var envAliases = map[string]string{
	"CacheDir": "HF_HUB_CACHE",
	"Endpoint": "HF_ENDPOINT",
	"Token":    "HF_TOKEN",
}

// Load 读取可选的 TOML 配置文件，同时注入默认值、环境变量与校验逻辑。
// path 为空时仅使用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", LogFormatText)
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheDir", "~/.cache/huggingface/hub")
	v.SetDefault("Endpoint", "https://huggingface.co")
	v.SetDefault("Token", "")
	v.SetDefault("Revision", "main")
	v.SetDefault("RepoType", RepoTypeModel)
	v.SetDefault("Resolver", ResolverPathsInfo)
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("ProgressInterval", "80ms")
	v.SetDefault("StaleCommitPolicy", StaleCommitKeep)
	v.SetDefault("BlobLocking", false)
	v.SetDefault("LockTimeout", "10m")
	v.SetDefault("ListenPort", 5000)
}

// bindEnv 为每个配置键绑定 HUBCACHE_<KEY>，部分键额外兼容 HF_* 变量。
func bindEnv(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		canonical := canonicalKey(key)
		names := []string{"HUBCACHE_" + strings.ToUpper(key)}
		if alias, ok := envAliases[canonical]; ok {
			names = append(names, alias)
		}
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("绑定环境变量失败: %w", err)
		}
	}
	return nil
}

// canonicalKey 将 viper 小写化的键还原为结构体字段名，仅用于别名查找。
func canonicalKey(key string) string {
	for name := range envAliases {
		if strings.EqualFold(name, key) {
			return name
		}
	}
	return key
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.LockTimeout.DurationValue() == 0 {
		g.LockTimeout = Duration(10 * time.Minute)
	}
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	g.RepoType = strings.ToLower(strings.TrimSpace(g.RepoType))
	g.Resolver = strings.ToLower(strings.TrimSpace(g.Resolver))
	g.StaleCommitPolicy = strings.ToLower(strings.TrimSpace(g.StaleCommitPolicy))
	g.LogFormat = strings.ToLower(strings.TrimSpace(g.LogFormat))
	g.Endpoint = strings.TrimRight(strings.TrimSpace(g.Endpoint), "/")
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
