package domain

import (
	"regexp"
	"strings"
)

// CourseID 是课程在站点 URL 中的标识（www.coursera.org/<course id>/...）。
//
// 它同时出现在 URL 路径段和本地缓存目录名中，因此只允许保守字符集。
type CourseID string

var courseIDRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ParseCourseID 校验并规范化 course id（只做 trim）。
func ParseCourseID(s string) (CourseID, bool) {
	s = strings.TrimSpace(s)
	if !courseIDRE.MatchString(s) || strings.Contains(s, "..") {
		return "", false
	}
	return CourseID(s), true
}
