package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ReadRef 读取 refs/<revision> 中记录的提交号；文件不存在时 ok 为 false。
func (r Root) ReadRef(revision string) (commit string, ok bool, err error) {
	data, err := os.ReadFile(r.RefPath(revision))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read ref: %w", err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// WriteRef 通过临时文件 + rename 写入 refs/<revision>。
func (r Root) WriteRef(revision, commit string) error {
	path := r.RefPath(revision)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create refs dir: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), ".ref-*")
	if err != nil {
		return fmt.Errorf("write ref: %w", err)
	}
	tempName := tempFile.Name()
	_, err = tempFile.WriteString(commit)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return fmt.Errorf("write ref: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		os.Remove(tempName)
		return fmt.Errorf("write ref: %w", err)
	}
	return nil
}
