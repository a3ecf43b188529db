package cache

import (
	"errors"
	"io"
	"time"
)

// ErrNotFound 表示缓存条目（blob 或快照）不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrPartialMissing 表示安装时既没有 .incomplete 文件也没有已完成的 blob。
var ErrPartialMissing = errors.New("cache: partial download missing")

// Entry 描述一次缓存命中，包含快照路径、解析后的 blob 路径及文件信息。
type Entry struct {
	SnapshotPath string    `json:"snapshot_path"`
	BlobPath     string    `json:"blob_path"`
	SizeBytes    int64     `json:"size_bytes"`
	ModTime      time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader，便于 HTTP 层直接将 Body 流式返回。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}
