package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Install 把完成的 partial 文件重命名为 blob，再把快照链接指向它。
// rename 是唯一的持久化边界：之前崩溃只会留下可续传的 .incomplete。
// partial 不存在而 blob 已存在时只重新建立快照链接，因此重复调用是幂等的。
func Install(partialPath, blobPath, snapshotPath string) error {
	if _, err := os.Stat(partialPath); err == nil {
		if err := os.Rename(partialPath, blobPath); err != nil {
			return fmt.Errorf("install blob: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat partial: %w", err)
	} else {
		ok, statErr := Exists(blobPath)
		if statErr != nil {
			return fmt.Errorf("stat blob: %w", statErr)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrPartialMissing, partialPath)
		}
	}
	return LinkSnapshot(blobPath, snapshotPath)
}

// LinkSnapshot 创建 snapshotPath -> blobPath 的相对符号链接。已有的链接或文件
// 会先被删除（最新安装生效）。
func LinkSnapshot(blobPath, snapshotPath string) error {
	dir := filepath.Dir(snapshotPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	if _, err := os.Lstat(snapshotPath); err == nil {
		if err := os.Remove(snapshotPath); err != nil {
			return fmt.Errorf("remove stale snapshot: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat snapshot: %w", err)
	}

	target, err := filepath.Rel(dir, blobPath)
	if err != nil {
		target = blobPath
	}
	if err := os.Symlink(target, snapshotPath); err != nil {
		return fmt.Errorf("link snapshot: %w", err)
	}
	return nil
}

// SnapshotLinked 判断快照链接存在且能解析到一个普通文件。
func SnapshotLinked(snapshotPath string) bool {
	info, err := os.Stat(snapshotPath)
	return err == nil && !info.IsDir()
}
