package download

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/hubcache/internal/logging"
)

var shardPattern = regexp.MustCompile(`^(.*)-(\d+)-of-(\d+)\.(\w+)$`)

// Shard 描述形如 <base>-<index>-of-<count>.<ext> 的分片文件名。
type Shard struct {
	Base  string
	Index int
	Count int
	Ext   string

	// Width 取自匹配到的 count 的位数，用于补零。
	Width int
}

// ParseShard 解析分片文件名；不匹配或 count 为 0 时返回 false。
func ParseShard(filename string) (Shard, bool) {
	match := shardPattern.FindStringSubmatch(filename)
	if match == nil {
		return Shard{}, false
	}
	index, err := strconv.Atoi(match[2])
	if err != nil {
		return Shard{}, false
	}
	count, err := strconv.Atoi(match[3])
	if err != nil || count == 0 {
		return Shard{}, false
	}
	return Shard{
		Base:  match[1],
		Index: index,
		Count: count,
		Ext:   match[4],
		Width: len(match[3]),
	}, true
}

// Name 返回第 i 个分片的文件名。
func (s Shard) Name(i int) string {
	return fmt.Sprintf("%s-%0*d-of-%0*d.%s", s.Base, s.Width, i, s.Width, s.Count, s.Ext)
}

// Names 按 1..Count 顺序返回全部分片文件名。Count 来自用户输入，不预分配。
func (s Shard) Names() []string {
	var names []string
	for i := 1; i <= s.Count; i++ {
		names = append(names, s.Name(i))
	}
	return names
}

// DownloadWithShards 识别分片文件名并按 1..N 顺序逐个下载，遇到第一个失败立即返回。
// 全部成功后重新执行第 1 个分片（force=false，命中缓存）并返回其结果。
// 不匹配分片模式时等价于 Download。
func (d *Downloader) DownloadWithShards(ctx context.Context, repoID, filename string, force bool) Result {
	shard, ok := ParseShard(filename)
	if !ok {
		return d.Download(ctx, repoID, filename, force)
	}

	log := d.opts.Logger.WithFields(logging.DownloadFields(repoID, filename, d.opts.Revision)).
		WithField("action", "download_shards")
	log.WithField("shards", shard.Count).Info("shard_set_detected")

	for i := 1; i <= shard.Count; i++ {
		name := shard.Name(i)
		log.WithFields(logrus.Fields{"index": i, "shard": name}).Info("shard_start")
		result := d.Download(ctx, repoID, name, force)
		if !result.Success {
			log.WithFields(logrus.Fields{"index": i, "shard": name}).
				WithError(result.Err).Error("shard_failed")
			return result
		}
	}

	return d.Download(ctx, repoID, shard.Name(1), false)
}
