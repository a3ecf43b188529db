package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/any-hub/hubcache/internal/repo"
)

const (
	blobsDirName     = "blobs"
	refsDirName      = "refs"
	snapshotsDirName = "snapshots"
	locksDirName     = ".locks"

	// IncompleteSuffix 标记尚未完成的下载文件。
	IncompleteSuffix = ".incomplete"
)

// Root 是单个仓库在缓存目录中的根，所有路径均为绝对路径。
type Root struct {
	BaseDir string
	Folder  string
	Dir     string
}

// ExpandHome 展开开头的 ~ 并返回绝对路径。
func ExpandHome(dir string) (string, error) {
	if dir == "" {
		return "", errors.New("cache dir required")
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve cache dir: %w", err)
	}
	return abs, nil
}

// RootFor 只计算路径，不触碰文件系统。
func RootFor(baseDir string, repoType repo.Type, repoID string) (Root, error) {
	if err := repo.ValidateID(repoID); err != nil {
		return Root{}, err
	}
	abs, err := ExpandHome(baseDir)
	if err != nil {
		return Root{}, err
	}
	folder := repo.FolderName(repoType, repoID)
	return Root{
		BaseDir: abs,
		Folder:  folder,
		Dir:     filepath.Join(abs, folder),
	}, nil
}

// EnsureRoot 计算仓库根目录并创建 blobs/refs/snapshots。目录已存在时为 no-op，
// 多个进程并发调用同样安全。
func EnsureRoot(baseDir string, repoType repo.Type, repoID string) (Root, error) {
	root, err := RootFor(baseDir, repoType, repoID)
	if err != nil {
		return Root{}, err
	}
	if err := root.ensureDirs(); err != nil {
		return Root{}, err
	}
	return root, nil
}

func (r Root) ensureDirs() error {
	for _, dir := range []string{r.BlobsDir(), r.RefsDir(), r.SnapshotsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir %s: %w", dir, err)
		}
	}
	return nil
}

// BlobsDir 返回 blobs/ 目录。
func (r Root) BlobsDir() string { return filepath.Join(r.Dir, blobsDirName) }

// RefsDir 返回 refs/ 目录。
func (r Root) RefsDir() string { return filepath.Join(r.Dir, refsDirName) }

// SnapshotsDir 返回 snapshots/ 目录。
func (r Root) SnapshotsDir() string { return filepath.Join(r.Dir, snapshotsDirName) }

// BlobPath 返回内容寻址的最终 blob 路径。
func (r Root) BlobPath(contentID string) string {
	return filepath.Join(r.BlobsDir(), contentID)
}

// IncompletePath 返回 blob 对应的 .incomplete 路径。
func (r Root) IncompletePath(contentID string) string {
	return r.BlobPath(contentID) + IncompleteSuffix
}

// SnapshotPath 返回 snapshots/<commit>/<filename>，filename 使用 / 分隔。
func (r Root) SnapshotPath(commitID, filename string) string {
	return filepath.Join(r.SnapshotsDir(), commitID, filepath.FromSlash(filename))
}

// RefPath 返回 refs/<revision>。
func (r Root) RefPath(revision string) string {
	return filepath.Join(r.RefsDir(), filepath.FromSlash(revision))
}

// LockPath 返回 <CacheDir>/.locks/<folder>/<contentId>.lock，位于仓库目录之外。
func (r Root) LockPath(contentID string) string {
	return filepath.Join(r.BaseDir, locksDirName, r.Folder, contentID+".lock")
}

// Exists 判断普通文件是否存在（目录不算）。
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// FileSize 返回文件大小，文件不存在时返回 0。
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}
