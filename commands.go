package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/any-hub/hubcache/internal/cache"
	"github.com/any-hub/hubcache/internal/config"
	"github.com/any-hub/hubcache/internal/download"
	"github.com/any-hub/hubcache/internal/logging"
	"github.com/any-hub/hubcache/internal/progress"
	"github.com/any-hub/hubcache/internal/repo"
	"github.com/any-hub/hubcache/internal/resolver"
	"github.com/any-hub/hubcache/internal/server"
	"github.com/any-hub/hubcache/internal/server/routes"
	"github.com/any-hub/hubcache/internal/transfer"
	"github.com/any-hub/hubcache/internal/version"
)

// newRootCommand 构建 hubcache 命令树。
//
// Commands provided:
//   - download <repo-id> <filename> [--force] [--revision] [--repo-type] [--cache-dir]
//   - serve [--port]
//   - scan [--json]
//   - check-config
//   - version
//
// Global flags: --config
func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "hubcache",
		Short:         "Hub 文件下载与本地内容寻址缓存",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "配置文件路径（可被 HUBCACHE_CONFIG 提供）")

	cmd.AddCommand(downloadCmd(&configPath))
	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(scanCmd(&configPath))
	cmd.AddCommand(checkConfigCmd(&configPath))
	cmd.AddCommand(versionCmd())
	return cmd
}

func downloadCmd(configPath *string) *cobra.Command {
	var (
		o     overrides
		force bool
		quiet bool
	)

	cmd := &cobra.Command{
		Use:   "download <repo-id> <filename>",
		Short: "下载文件到缓存并输出快照路径",
		Long: "下载文件到缓存并输出快照路径。形如 name-00001-of-00004.ext 的分片文件名会按顺序下载全部分片，" +
			"输出第 1 个分片的路径。中断后再次执行同一命令会从 .incomplete 续传。",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime(resolveConfigPath(*configPath), o)
			if err != nil {
				return withCode(exitFailure, err)
			}
			d, err := buildDownloader(cfg, logger, !quiet)
			if err != nil {
				return withCode(exitFailure, err)
			}

			result := d.DownloadWithShards(cmd.Context(), args[0], args[1], force)
			switch {
			case result.Cancelled():
				return withCode(exitCancelled, fmt.Errorf("下载已取消，再次执行同一命令即可续传"))
			case !result.Success:
				return withCode(exitFailure, fmt.Errorf("下载失败: %w", result.Err))
			}
			fmt.Fprintln(stdOut, result.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&o.cacheDir, "cache-dir", "", "缓存根目录（默认 ~/.cache/huggingface/hub）")
	cmd.Flags().StringVar(&o.revision, "revision", "", "分支、标签或提交（默认 main）")
	cmd.Flags().StringVar(&o.repoType, "repo-type", "", "仓库类型：model、dataset 或 space")
	cmd.Flags().StringVar(&o.endpoint, "endpoint", "", "Hub 地址")
	cmd.Flags().BoolVar(&force, "force", false, "忽略已有 blob 与未完成文件，重新下载")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "不显示进度条")
	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	var o overrides

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动本地 read-through HTTP 服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(*configPath)
			cfg, logger, err := loadRuntime(path, o)
			if err != nil {
				return withCode(exitFailure, err)
			}
			d, err := buildDownloader(cfg, logger, false)
			if err != nil {
				return withCode(exitFailure, err)
			}

			ctx := cmd.Context()
			app, err := server.NewApp(server.AppOptions{
				Logger:      logger,
				Fetcher:     server.NewDownloaderFetcher(d),
				BaseContext: ctx,
				Register: func(app *fiber.App) {
					routes.RegisterDiagnosticRoutes(app, cfg.Global.CacheDir, logger)
				},
			})
			if err != nil {
				return withCode(exitFailure, fmt.Errorf("HTTP 服务初始化失败: %w", err))
			}

			fields := logging.BaseFields("listen", path)
			fields["port"] = cfg.Global.ListenPort
			fields["cache_dir"] = cfg.Global.CacheDir
			fields["endpoint"] = cfg.Global.Endpoint
			fields["auth_mode"] = cfg.Global.AuthMode()
			fields["version"] = version.Full()
			logger.WithFields(fields).Info("Fiber 服务启动")

			err = app.Listen(fmt.Sprintf(":%d", cfg.Global.ListenPort), fiber.ListenConfig{
				DisableStartupMessage: true,
				GracefulContext:       ctx,
			})
			if err != nil {
				return withCode(exitFailure, fmt.Errorf("HTTP 服务启动失败: %w", err))
			}
			logger.WithFields(logging.BaseFields("shutdown", path)).Info("Fiber 服务已停止")
			return nil
		},
	}

	cmd.Flags().StringVar(&o.cacheDir, "cache-dir", "", "缓存根目录")
	cmd.Flags().StringVar(&o.endpoint, "endpoint", "", "Hub 地址")
	cmd.Flags().IntVar(&o.port, "port", 0, "监听端口（默认 5000）")
	return cmd
}

func scanCmd(configPath *string) *cobra.Command {
	var (
		o          overrides
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "列出缓存中的仓库、快照与未完成文件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadRuntime(resolveConfigPath(*configPath), o)
			if err != nil {
				return withCode(exitFailure, err)
			}
			repos, err := cache.Scan(cfg.Global.CacheDir)
			if err != nil {
				return withCode(exitFailure, fmt.Errorf("扫描缓存失败: %w", err))
			}

			if jsonOutput {
				enc := json.NewEncoder(stdOut)
				enc.SetIndent("", "  ")
				if repos == nil {
					repos = []cache.RepoInfo{}
				}
				if err := enc.Encode(repos); err != nil {
					return withCode(exitFailure, err)
				}
				return nil
			}
			printScan(repos)
			return nil
		},
	}

	cmd.Flags().StringVar(&o.cacheDir, "cache-dir", "", "缓存根目录")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "以 JSON 输出")
	return cmd
}

func printScan(repos []cache.RepoInfo) {
	w := tabwriter.NewWriter(stdOut, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPO\tTYPE\tREVISIONS\tBLOBS\tSIZE\tINCOMPLETE")
	for _, info := range repos {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
			info.Folder, info.Type, len(info.Revisions), info.BlobCount, info.SizeBytes, len(info.Incomplete))
	}
	w.Flush()
}

func checkConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "仅校验配置后退出",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(*configPath)
			cfg, logger, err := loadRuntime(path, overrides{})
			if err != nil {
				return withCode(exitFailure, err)
			}
			fields := logging.BaseFields("check_config", path)
			fields["cache_dir"] = cfg.Global.CacheDir
			fields["endpoint"] = cfg.Global.Endpoint
			fields["resolver"] = cfg.Global.Resolver
			fields["auth_mode"] = cfg.Global.AuthMode()
			fields["result"] = "ok"
			logger.WithFields(fields).Info("配置校验通过")
			return nil
		},
	}
}

// buildDownloader 按配置组装 解析器 → 传输引擎 → 锁 → 进度 的下载流水线。
func buildDownloader(cfg *config.Config, logger *logrus.Logger, showProgress bool) (*download.Downloader, error) {
	g := cfg.Global
	repoType, err := repo.ParseType(g.RepoType)
	if err != nil {
		return nil, err
	}
	policy, err := cache.ParseStalePolicy(g.StaleCommitPolicy)
	if err != nil {
		return nil, err
	}

	resolverOpts := resolver.Options{
		Endpoint: g.Endpoint,
		Token:    g.Token,
		Client:   transfer.NewMetadataClient(cfg),
	}
	var res resolver.Resolver
	switch g.Resolver {
	case config.ResolverPointer:
		res = resolver.NewPointerResolver(resolverOpts)
	default:
		res = resolver.NewPathsInfoResolver(resolverOpts)
	}

	engine := transfer.NewEngine(
		transfer.NewHTTPTransport(transfer.NewDownloadClient(cfg), g.Token),
		g.ProgressInterval.DurationValue(),
	)

	opts := download.Options{
		CacheDir:    g.CacheDir,
		RepoType:    repoType,
		Revision:    g.Revision,
		Endpoint:    g.Endpoint,
		StalePolicy: policy,
		Resolver:    res,
		Engine:      engine,
		Locker:      cache.NewLocker(g.BlobLocking, g.LockTimeout.DurationValue()),
		Logger:      logger,
	}
	if showProgress {
		opts.Progress = func(filename string) download.Reporter {
			return progress.New(progress.Options{Output: stdErr, Logger: logger, Label: filename})
		}
	}
	return download.New(opts)
}
