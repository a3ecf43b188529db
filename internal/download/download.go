package download

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubcache/internal/cache"
	"github.com/any-hub/hubcache/internal/logging"
	"github.com/any-hub/hubcache/internal/repo"
	"github.com/any-hub/hubcache/internal/resolver"
	"github.com/any-hub/hubcache/internal/transfer"
)

// Reporter 展示单个文件的传输进度，progress.Bar 即为一种实现。
type Reporter interface {
	Update(transfer.Progress)
	Finish()
}

// ReporterFactory 为每个需要传输的文件创建 Reporter。
type ReporterFactory func(filename string) Reporter

// Options 汇总流水线依赖。Resolver 与 Engine 必填。
type Options struct {
	CacheDir    string
	RepoType    repo.Type
	Revision    string
	Endpoint    string
	StalePolicy cache.StalePolicy

	Resolver resolver.Resolver
	Engine   *transfer.Engine
	Locker   *cache.Locker
	Logger   *logrus.Logger
	Progress ReporterFactory
}

// Result 是公开入口的返回值。成功时 Path 为快照路径。
type Result struct {
	Success  bool
	Path     string
	CacheHit bool
	Err      error
}

// Cancelled 判断失败是否由取消引起。
func (r Result) Cancelled() bool {
	return KindOf(r.Err) == KindCancelled
}

// Downloader 执行 解析 → 目录 → 对账 → 传输 → 安装 流水线。
type Downloader struct {
	opts Options
}

// New 校验依赖并补齐默认值。
func New(opts Options) (*Downloader, error) {
	if opts.Resolver == nil {
		return nil, errors.New("download: resolver is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("download: transfer engine is required")
	}
	if strings.TrimSpace(opts.CacheDir) == "" {
		return nil, errors.New("download: cache dir is required")
	}
	if opts.RepoType == "" {
		opts.RepoType = repo.TypeModel
	}
	if opts.Revision == "" {
		opts.Revision = "main"
	}
	if opts.StalePolicy == "" {
		opts.StalePolicy = cache.StaleKeep
	}
	if opts.Locker == nil {
		opts.Locker = cache.NewLocker(false, 0)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
		opts.Logger.SetOutput(os.Stderr)
	}
	return &Downloader{opts: opts}, nil
}

// WithTarget 返回使用指定仓库类型与 revision 的副本，其余依赖共享。
func (d *Downloader) WithTarget(repoType repo.Type, revision string) *Downloader {
	opts := d.opts
	if repoType != "" {
		opts.RepoType = repoType
	}
	if revision != "" {
		opts.Revision = revision
	}
	return &Downloader{opts: opts}
}

// Download 获取单个文件并返回其快照路径。force 为 true 时忽略已有 blob 与 partial。
func (d *Downloader) Download(ctx context.Context, repoID, filename string, force bool) Result {
	log := d.opts.Logger.WithFields(logging.DownloadFields(repoID, filename, d.opts.Revision)).
		WithFields(logrus.Fields{"action": "download", "download_id": uuid.NewString()})

	path, hit, err := d.run(ctx, log, repoID, filename, force)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Success: true, Path: path, CacheHit: hit}
}

func (d *Downloader) run(ctx context.Context, log *logrus.Entry, repoID, filename string, force bool) (string, bool, error) {
	meta, err := d.opts.Resolver.Resolve(ctx, resolver.Request{
		RepoType: d.opts.RepoType,
		RepoID:   repoID,
		Filename: filename,
		Revision: d.opts.Revision,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", false, newError(KindCancelled, "resolve", ctx.Err())
		}
		log.WithError(err).WithField("reason", resolver.ReasonOf(err).String()).Error("resolve_failed")
		return "", false, newError(KindResolution, "resolve", err)
	}
	if err := checkMetadata(repoID, filename, meta); err != nil {
		log.WithError(err).Error("resolve_failed")
		return "", false, newError(KindResolution, "resolve", err)
	}
	log = log.WithFields(logging.MetadataFields(meta.ContentID, meta.CommitID, meta.SizeBytes))
	if meta.CommitID == resolver.UnknownCommit {
		log.Warn("commit_unknown")
	}

	root, err := cache.EnsureRoot(d.opts.CacheDir, d.opts.RepoType, repoID)
	if err != nil {
		return "", false, newError(KindIO, "ensure cache root", err)
	}

	state, err := root.ReconcileRef(d.opts.Revision, meta.CommitID, d.opts.StalePolicy)
	if err != nil {
		return "", false, newError(KindIO, "reconcile ref", err)
	}
	switch {
	case state.Purged:
		log.WithField("previous_commit", state.Previous).Info("stale_commit_purge")
	case state.Stale:
		log.WithField("previous_commit", state.Previous).Warn("stale_commit_kept")
	}

	release, err := d.opts.Locker.Lock(ctx, root, meta.ContentID)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, newError(KindCancelled, "lock blob", ctx.Err())
		}
		return "", false, newError(KindIO, "lock blob", err)
	}
	defer release()

	blobPath := root.BlobPath(meta.ContentID)
	partialPath := root.IncompletePath(meta.ContentID)
	snapshotPath := root.SnapshotPath(meta.CommitID, filename)

	if !force {
		exists, err := cache.Exists(blobPath)
		if err != nil {
			return "", false, newError(KindIO, "stat blob", err)
		}
		if exists {
			if err := cache.LinkSnapshot(blobPath, snapshotPath); err != nil {
				return "", false, newError(KindIO, "link snapshot", err)
			}
			log.WithField("path", snapshotPath).Info("cache_hit")
			return snapshotPath, true, nil
		}
	}

	expected := int64(meta.SizeBytes)
	offset, complete, err := reconcilePartial(log, partialPath, expected, force)
	if err != nil {
		return "", false, newError(KindIO, "reconcile partial", err)
	}

	if !complete {
		if err := d.transfer(ctx, log, repoID, meta, filename, partialPath, offset); err != nil {
			return "", false, err
		}
	}

	if err := cache.Install(partialPath, blobPath, snapshotPath); err != nil {
		log.WithError(err).Error("install_failed")
		return "", false, newError(KindIO, "install", err)
	}
	log.WithField("path", snapshotPath).Info("install_complete")
	return snapshotPath, false, nil
}

func (d *Downloader) transfer(
	ctx context.Context,
	log *logrus.Entry,
	repoID string,
	meta resolver.Metadata,
	filename, partialPath string,
	offset int64,
) error {
	// 固定到解析得到的提交，避免分支在解析与下载之间移动
	revision := d.opts.Revision
	if meta.CommitID != resolver.UnknownCommit {
		revision = meta.CommitID
	}
	url := resolver.ResolveURL(d.opts.Endpoint, d.opts.RepoType, repoID, revision, filename)

	if offset > 0 {
		log.WithField("offset", offset).Info("transfer_resume")
	} else {
		log.Info("transfer_start")
	}

	var onProgress transfer.ProgressFunc
	var reporter Reporter
	if d.opts.Progress != nil {
		reporter = d.opts.Progress(filename)
		onProgress = reporter.Update
	}
	outcome := d.opts.Engine.Transfer(ctx, transfer.Request{
		URL:           url,
		SinkPath:      partialPath,
		StartOffset:   offset,
		ExpectedTotal: int64(meta.SizeBytes),
	}, onProgress)
	if reporter != nil {
		reporter.Finish()
	}

	fields := logrus.Fields{"written": outcome.Written, "partial_size": outcome.Size}
	switch outcome.Status {
	case transfer.StatusCompleted:
		return nil
	case transfer.StatusCancelled:
		log.WithFields(fields).Warn("transfer_cancelled")
		return newError(KindCancelled, "transfer", outcome.Err)
	}

	log.WithFields(fields).WithError(outcome.Err).Error("transfer_failed")
	switch {
	case errors.Is(outcome.Err, transfer.ErrSizeMismatch):
		// 多出的字节永远无法变成合法内容，直接丢弃；不足时保留以便续传
		if outcome.Size > int64(meta.SizeBytes) {
			if err := os.Remove(partialPath); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.WithError(err).Warn("partial_remove_failed")
			}
		}
		return newError(KindSizeMismatch, "transfer", outcome.Err)
	case errors.Is(outcome.Err, transfer.ErrSink), errors.Is(outcome.Err, transfer.ErrOffsetMismatch):
		return newError(KindIO, "transfer", outcome.Err)
	default:
		return newError(KindTransport, "transfer", outcome.Err)
	}
}

// reconcilePartial 决定续传偏移。返回 complete=true 表示 partial 已是完整内容，
// 可以直接安装而无需网络请求。
func reconcilePartial(log *logrus.Entry, partialPath string, expected int64, force bool) (int64, bool, error) {
	size, err := cache.FileSize(partialPath)
	if err != nil {
		return 0, false, err
	}
	switch {
	case size == 0:
		return 0, false, nil
	case force:
		log.WithField("partial_size", size).Info("partial_discard_forced")
		return 0, false, truncate(partialPath)
	case expected > 0 && size == expected:
		log.WithField("partial_size", size).Info("partial_complete")
		return size, true, nil
	case expected > 0 && size > expected:
		log.WithField("partial_size", size).Warn("partial_oversize")
		return 0, false, truncate(partialPath)
	default:
		return size, false, nil
	}
}

func truncate(path string) error {
	if err := os.Truncate(path, 0); err != nil {
		return fmt.Errorf("truncate partial: %w", err)
	}
	return nil
}

// checkMetadata 确保 filename 不会逃出 snapshots/<commit>/，contentId 与 commitId
// 可以作为单级文件名使用，且 sizeBytes 能表示为 int64。
func checkMetadata(repoID, filename string, meta resolver.Metadata) error {
	if err := repo.ValidateFilename(filename); err != nil {
		return &resolver.ResolutionError{
			Reason: resolver.ReasonNotFound,
			Repo:   repoID,
			File:   filename,
			Err:    err,
		}
	}
	if meta.SizeBytes > math.MaxInt64 {
		return &resolver.ResolutionError{
			Reason: resolver.ReasonMalformed,
			Repo:   repoID,
			File:   filename,
			Err:    fmt.Errorf("size %d out of range", meta.SizeBytes),
		}
	}
	for _, name := range []string{meta.ContentID, meta.CommitID} {
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
			return &resolver.ResolutionError{
				Reason: resolver.ReasonMalformed,
				Repo:   repoID,
				File:   filename,
				Err:    fmt.Errorf("unsafe cache key %q", name),
			}
		}
	}
	return nil
}
