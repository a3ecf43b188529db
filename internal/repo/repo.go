// Package repo names remote repositories: their type, identifier and the
// filenames requested from them, plus the folder name a repository occupies
// inside the cache directory.
package repo

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Type 区分 Hub 上的仓库种类，决定缓存目录前缀与 URL 前缀。
type Type string

const (
	TypeModel   Type = "model"
	TypeDataset Type = "dataset"
	TypeSpace   Type = "space"
)

// ErrInvalidID 表示仓库标识为空或含有非法路径片段。
var ErrInvalidID = errors.New("repo: invalid repository id")

// ErrInvalidFilename 表示文件名为空、为绝对路径或试图跳出仓库目录。
var ErrInvalidFilename = errors.New("repo: invalid filename")

// ParseType 解析配置中的仓库类型，空字符串视为 model。
func ParseType(raw string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case "", TypeModel:
		return TypeModel, nil
	case TypeDataset:
		return TypeDataset, nil
	case TypeSpace:
		return TypeSpace, nil
	default:
		return "", fmt.Errorf("repo: unsupported repository type %q", raw)
	}
}

// Plural 返回缓存目录与 API 路径使用的复数形式，例如 models。
func (t Type) Plural() string {
	if t == "" {
		return string(TypeModel) + "s"
	}
	return string(t) + "s"
}

// URLPrefix 返回 resolve/raw 下载地址中仓库前的路径前缀；model 没有前缀。
func (t Type) URLPrefix() string {
	if t == "" || t == TypeModel {
		return ""
	}
	return t.Plural() + "/"
}

// ValidateID 检查仓库标识能否安全地作为 URL 与目录命名空间使用。
func ValidateID(id string) error {
	if strings.TrimSpace(id) == "" || id != strings.TrimSpace(id) {
		return ErrInvalidID
	}
	if strings.HasPrefix(id, "/") || strings.HasSuffix(id, "/") {
		return ErrInvalidID
	}
	for _, segment := range strings.Split(id, "/") {
		if segment == "" || segment == "." || segment == ".." || strings.Contains(segment, `\`) {
			return ErrInvalidID
		}
	}
	return nil
}

// ValidateFilename 检查仓库内文件路径，拒绝绝对路径与 .. 片段。
func ValidateFilename(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return ErrInvalidFilename
	}
	if path.Clean(name) != name {
		return ErrInvalidFilename
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." || segment == "." {
			return ErrInvalidFilename
		}
	}
	return nil
}
