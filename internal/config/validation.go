package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

var supportedRepoTypes = map[string]struct{}{
	RepoTypeModel:   {},
	RepoTypeDataset: {},
	RepoTypeSpace:   {},
}

// Validate 针对语义级别做进一步校验，防止非法配置进入下载流程。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return wrapFieldError(globalField("LogLevel"), "无法识别的日志级别", err)
	}
	if g.LogFormat != LogFormatText && g.LogFormat != LogFormatJSON {
		return newFieldError(globalField("LogFormat"), "仅支持 text/json")
	}
	if strings.TrimSpace(g.CacheDir) == "" {
		return newFieldError(globalField("CacheDir"), "不能为空")
	}
	if err := validateEndpoint(g.Endpoint); err != nil {
		return wrapFieldError(globalField("Endpoint"), "地址无效", err)
	}
	if strings.TrimSpace(g.Revision) == "" {
		return newFieldError(globalField("Revision"), "不能为空")
	}
	if strings.ContainsAny(g.Revision, `\`) || strings.Contains(g.Revision, "..") {
		return newFieldError(globalField("Revision"), "包含非法字符")
	}
	if _, ok := supportedRepoTypes[g.RepoType]; !ok {
		return newFieldError(globalField("RepoType"), "仅支持 model|dataset|space")
	}
	if g.Resolver != ResolverPathsInfo && g.Resolver != ResolverPointer {
		return newFieldError(globalField("Resolver"), "仅支持 paths-info|pointer")
	}
	if g.StaleCommitPolicy != StaleCommitKeep && g.StaleCommitPolicy != StaleCommitPurge {
		return newFieldError(globalField("StaleCommitPolicy"), "仅支持 keep|purge")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError(globalField("UpstreamTimeout"), "必须大于 0")
	}
	if g.ProgressInterval.DurationValue() < 0 {
		return newFieldError(globalField("ProgressInterval"), "不能为负数")
	}
	if g.BlobLocking && g.LockTimeout.DurationValue() <= 0 {
		return newFieldError(globalField("LockTimeout"), "启用 BlobLocking 时必须大于 0")
	}
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError(globalField("ListenPort"), "必须在 1-65535")
	}
	return nil
}

func validateEndpoint(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
