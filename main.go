package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubcache/internal/config"
	"github.com/any-hub/hubcache/internal/logging"
)

const (
	exitOK        = 0
	exitFailure   = 1
	exitUsage     = 2
	exitCancelled = 130
)

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// exitError 携带命令希望使用的退出码。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// execute 构建命令树并执行，返回退出码，方便测试。
func execute(ctx context.Context, args []string) int {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdOut)
	root.SetErr(stdErr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		if exitErr.err != nil {
			fmt.Fprintln(stdErr, exitErr.err.Error())
		}
		return exitErr.code
	}
	// 其余错误来自 cobra 的参数解析
	fmt.Fprintln(stdErr, err.Error())
	return exitUsage
}

// resolveConfigPath 计算最终的配置路径：--config 优先，其次 HUBCACHE_CONFIG，都为空时不读文件。
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return strings.TrimSpace(os.Getenv("HUBCACHE_CONFIG"))
}

// overrides 是命令行上显式给出的配置覆盖项，空值表示沿用文件/环境变量。
type overrides struct {
	cacheDir string
	revision string
	repoType string
	endpoint string
	port     int
}

func (o overrides) apply(cfg *config.Config) error {
	if o.cacheDir != "" {
		cfg.Global.CacheDir = o.cacheDir
	}
	if o.revision != "" {
		cfg.Global.Revision = o.revision
	}
	if o.repoType != "" {
		cfg.Global.RepoType = strings.ToLower(strings.TrimSpace(o.repoType))
	}
	if o.endpoint != "" {
		cfg.Global.Endpoint = strings.TrimRight(o.endpoint, "/")
	}
	if o.port != 0 {
		cfg.Global.ListenPort = o.port
	}
	return cfg.Validate()
}

// loadRuntime 加载配置、应用命令行覆盖并初始化日志。
func loadRuntime(configPath string, o overrides) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if err := o.apply(cfg); err != nil {
		return nil, nil, fmt.Errorf("命令行参数无效: %w", err)
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, logger, nil
}
