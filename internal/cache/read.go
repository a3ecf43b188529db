package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Open 打开快照路径对应的 blob。链接悬空、目标是目录或不存在时返回 ErrNotFound。
func Open(snapshotPath string) (*ReadResult, error) {
	info, err := os.Stat(snapshotPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	blobPath, err := filepath.EvalSymlinks(snapshotPath)
	if err != nil {
		blobPath = snapshotPath
	}

	f, err := os.Open(snapshotPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &ReadResult{
		Entry: Entry{
			SnapshotPath: snapshotPath,
			BlobPath:     blobPath,
			SizeBytes:    info.Size(),
			ModTime:      info.ModTime(),
		},
		Reader: f,
	}, nil
}
