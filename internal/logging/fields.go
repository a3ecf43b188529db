package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// DownloadFields 提供 repo/file/revision 字段，供下载流水线日志复用。
func DownloadFields(repo, file, revision string) logrus.Fields {
	return logrus.Fields{
		"repo":     repo,
		"file":     file,
		"revision": revision,
	}
}

// MetadataFields 输出解析得到的内容标识与提交号。
func MetadataFields(contentID, commitID string, size uint64) logrus.Fields {
	return logrus.Fields{
		"content_id": contentID,
		"commit_id":  commitID,
		"size_bytes": size,
	}
}
