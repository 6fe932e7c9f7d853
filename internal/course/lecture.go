package course

import (
	"fmt"
	"strings"

	"github.com/John-Robertt/coursefetch/internal/fsname"
)

// CleanLectureName 去掉 lecture 标题里嵌入的时长/元数据注释：在第一个 '(' 处截断并 trim。
func CleanLectureName(raw string) string {
	if i := strings.IndexByte(raw, '('); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

// LectureFileStem 生成 lecture 的文件名主干（不含扩展名），已按策略规范化。
//
// 形如 "<pos> - <name>"；qualified=true 时为 "<section>.<pos> - <name>"。
func LectureFileStem(sectionIndex, position int, raw string, qualified bool, p fsname.Policy) string {
	name := fmt.Sprintf("%d - %s", position, CleanLectureName(raw))
	if qualified {
		name = fmt.Sprintf("%d.%s", sectionIndex, name)
	}
	return fsname.Sanitize(name, p)
}
