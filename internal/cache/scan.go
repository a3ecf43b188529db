package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RepoInfo 描述缓存目录中的一个仓库根。
type RepoInfo struct {
	Folder     string            `json:"folder"`
	Type       string            `json:"type"`
	Refs       map[string]string `json:"refs"`
	Revisions  []RevisionInfo    `json:"revisions"`
	BlobCount  int               `json:"blob_count"`
	SizeBytes  int64             `json:"size_bytes"`
	Incomplete []string          `json:"incomplete,omitempty"`
}

// RevisionInfo 描述 snapshots/<commit>/ 下的文件。
type RevisionInfo struct {
	Commit string     `json:"commit"`
	Files  []FileInfo `json:"files"`
}

// FileInfo 描述一个快照文件及其 blob。
type FileInfo struct {
	Name      string `json:"name"`
	BlobPath  string `json:"blob_path,omitempty"`
	SizeBytes int64  `json:"size_bytes"`
	Dangling  bool   `json:"dangling,omitempty"`
}

var repoFolderPrefixes = map[string]string{
	"models--":   "model",
	"datasets--": "dataset",
	"spaces--":   "space",
}

// Scan 只读地遍历 baseDir 下的仓库根；baseDir 不存在时返回空列表。
func Scan(baseDir string) ([]RepoInfo, error) {
	abs, err := ExpandHome(baseDir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan cache dir: %w", err)
	}

	var repos []RepoInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		repoType, ok := folderType(entry.Name())
		if !ok {
			continue
		}
		root := Root{BaseDir: abs, Folder: entry.Name(), Dir: filepath.Join(abs, entry.Name())}
		info, err := scanRoot(root, repoType)
		if err != nil {
			return nil, err
		}
		repos = append(repos, info)
	}
	return repos, nil
}

func folderType(name string) (string, bool) {
	for prefix, repoType := range repoFolderPrefixes {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			return repoType, true
		}
	}
	return "", false
}

func scanRoot(root Root, repoType string) (RepoInfo, error) {
	info := RepoInfo{Folder: root.Folder, Type: repoType, Refs: map[string]string{}}

	blobs, err := os.ReadDir(root.BlobsDir())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return info, fmt.Errorf("scan blobs: %w", err)
	}
	for _, blob := range blobs {
		if blob.IsDir() {
			continue
		}
		if strings.HasSuffix(blob.Name(), IncompleteSuffix) {
			info.Incomplete = append(info.Incomplete, blob.Name())
			continue
		}
		if fi, err := blob.Info(); err == nil {
			info.BlobCount++
			info.SizeBytes += fi.Size()
		}
	}

	err = filepath.WalkDir(root.RefsDir(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, _ := filepath.Rel(root.RefsDir(), path)
		commit, _, readErr := root.ReadRef(filepath.ToSlash(rel))
		if readErr != nil {
			return readErr
		}
		info.Refs[filepath.ToSlash(rel)] = commit
		return nil
	})
	if err != nil {
		return info, fmt.Errorf("scan refs: %w", err)
	}

	commits, err := os.ReadDir(root.SnapshotsDir())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return info, fmt.Errorf("scan snapshots: %w", err)
	}
	for _, commit := range commits {
		if !commit.IsDir() {
			continue
		}
		rev, err := scanRevision(filepath.Join(root.SnapshotsDir(), commit.Name()))
		if err != nil {
			return info, err
		}
		rev.Commit = commit.Name()
		info.Revisions = append(info.Revisions, rev)
	}
	sort.Slice(info.Revisions, func(i, j int) bool {
		return info.Revisions[i].Commit < info.Revisions[j].Commit
	})
	return info, nil
}

func scanRevision(dir string) (RevisionInfo, error) {
	var rev RevisionInfo
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		file := FileInfo{Name: filepath.ToSlash(rel)}
		if target, err := filepath.EvalSymlinks(path); err == nil {
			file.BlobPath = target
			if fi, err := os.Stat(target); err == nil {
				file.SizeBytes = fi.Size()
			}
		} else {
			file.Dangling = true
		}
		rev.Files = append(rev.Files, file)
		return nil
	})
	if err != nil {
		return rev, fmt.Errorf("scan revision: %w", err)
	}
	return rev, nil
}
