package cache

import (
	"fmt"
	"os"
	"strings"
)

// StalePolicy 决定本地 ref 与新解析的提交不一致时如何处理已有缓存。
type StalePolicy string

const (
	// StaleKeep 保留已有 blob/快照，ref 首次写入后不再改写。
	StaleKeep StalePolicy = "keep"
	// StalePurge 清空 blobs/ 与 snapshots/ 后重新下载，并改写 ref。
	StalePurge StalePolicy = "purge"
)

// ParseStalePolicy 将配置值标准化，空值视为 keep。
func ParseStalePolicy(raw string) (StalePolicy, error) {
	switch StalePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", StaleKeep:
		return StaleKeep, nil
	case StalePurge:
		return StalePurge, nil
	default:
		return "", fmt.Errorf("cache: unsupported stale commit policy %q", raw)
	}
}

// RefState 汇总一次 ref 对账的结果，供日志输出。
type RefState struct {
	Previous string
	Recorded bool
	Stale    bool
	Purged   bool
}

// ReconcileRef 对比 refs/<revision> 与新解析的提交。ref 缺失时写入；
// 不一致时按 policy 处理。
func (r Root) ReconcileRef(revision, commit string, policy StalePolicy) (RefState, error) {
	previous, ok, err := r.ReadRef(revision)
	if err != nil {
		return RefState{}, err
	}
	state := RefState{Previous: previous}
	if !ok {
		if err := r.WriteRef(revision, commit); err != nil {
			return state, err
		}
		state.Recorded = true
		return state, nil
	}
	if previous == commit {
		return state, nil
	}

	state.Stale = true
	if policy != StalePurge {
		return state, nil
	}
	if err := r.Purge(); err != nil {
		return state, err
	}
	state.Purged = true
	if err := r.WriteRef(revision, commit); err != nil {
		return state, err
	}
	state.Recorded = true
	return state, nil
}

// Purge 删除 blobs/ 与 snapshots/ 下的全部内容并重建空目录，refs/ 保持不变。
func (r Root) Purge() error {
	for _, dir := range []string{r.BlobsDir(), r.SnapshotsDir()} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("purge %s: %w", dir, err)
		}
	}
	return r.ensureDirs()
}
