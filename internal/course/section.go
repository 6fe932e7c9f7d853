package course

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/John-Robertt/coursefetch/internal/domain"
	"github.com/John-Robertt/coursefetch/internal/fsname"
)

var weekRE = regexp.MustCompile(`^(.*)\(week (\d+)\)$`)

// ParseSection 从 section 标题中拆出 "(week N)" 后缀。
//
// - 匹配 "<text> (week <digits>)"（锚定结尾）：返回 trim 后的 <text> 与 N
// - 否则返回 trim 后的原标题与 0
//
// week 后续会重新拼接到排序后的展示名上，而不是原字符串。
func ParseSection(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	m := weekRE.FindStringSubmatch(raw)
	if m == nil {
		return raw, 0
	}
	week, err := strconv.Atoi(m[2])
	if err != nil {
		// 数字超出 int 范围：当作没有 week 后缀。
		return raw, 0
	}
	return strings.TrimSpace(m[1]), week
}

// SortSections 按 (Week, OriginalIndex) 字典序升序排序，然后重新编号 1..N 并生成展示名。
//
// 比较器是全序：week 相同则只看页面顺序，不比较名称。
func SortSections(sections []domain.Section) {
	sort.SliceStable(sections, func(i, j int) bool {
		a, b := sections[i], sections[j]
		if a.Week != b.Week {
			return a.Week < b.Week
		}
		return a.OriginalIndex < b.OriginalIndex
	})
	for i := range sections {
		sections[i].Index = i + 1
		sections[i].DisplayName = SectionDisplayName(i+1, sections[i].Name, sections[i].Week)
	}
}

// SectionDisplayName 生成 "<i> - <name>[ (week W)]"（未规范化）。
func SectionDisplayName(index int, name string, week int) string {
	s := fmt.Sprintf("%d - %s", index, name)
	if week > 0 {
		s += fmt.Sprintf(" (week %d)", week)
	}
	return s
}

// SectionDir 返回 section 目录名（已按策略规范化）。
func SectionDir(s domain.Section, p fsname.Policy) string {
	name := s.DisplayName
	if name == "" {
		name = SectionDisplayName(s.Index, s.Name, s.Week)
	}
	return fsname.Sanitize(name, p)
}
