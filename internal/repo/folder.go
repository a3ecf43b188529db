package repo

import "strings"

const folderSeparator = "--"

// FolderName 把仓库标识映射为缓存根目录下的单层目录名。
//
// 常规标识（每段非空、不含 "--"、不以 "-" 开头或结尾）得到与官方客户端一致的
// <types>--<org>--<name>。其余标识先把 "%"、"-" 百分号转义，再把 "/" 换成 "--"，
// 并以空首段 <types>---- 开头；常规标识的首段不可能为空，因此两类名字互不相交。
func FolderName(t Type, id string) string {
	if isPlainID(id) {
		return t.Plural() + folderSeparator + strings.ReplaceAll(id, "/", folderSeparator)
	}
	escaped := strings.NewReplacer("%", "%25", "-", "%2D").Replace(id)
	escaped = strings.ReplaceAll(escaped, "/", folderSeparator)
	return t.Plural() + folderSeparator + folderSeparator + escaped
}

func isPlainID(id string) bool {
	if id == "" {
		return false
	}
	for _, segment := range strings.Split(id, "/") {
		if segment == "" || strings.Contains(segment, folderSeparator) {
			return false
		}
		if strings.HasPrefix(segment, "-") || strings.HasSuffix(segment, "-") {
			return false
		}
	}
	return true
}
