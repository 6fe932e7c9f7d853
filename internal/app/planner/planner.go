package planner

import (
	"path/filepath"
	"strings"

	"github.com/John-Robertt/coursefetch/internal/course"
	"github.com/John-Robertt/coursefetch/internal/domain"
	"github.com/John-Robertt/coursefetch/internal/fsname"
)

// Options 决定计划里包含哪些资源、文件如何命名。
type Options struct {
	Kinds     domain.KindSet
	Qualified bool // lecture 文件名带 "<section>." 前缀
	Policy    fsname.Policy
}

// Plan 基于已排序、已映射资源的课程树生成确定性的下载计划（不做任何写入）。
//
// 路径：<root>/<course title>/<section display>/<lecture stem>.<ext>
// 顺序：section → lecture → kind（按 domain.KindOrder）。
func Plan(root string, c domain.Course, opts Options) []domain.DownloadTarget {
	courseDir := filepath.Join(root, titleDir(c.Title, opts.Policy))

	out := make([]domain.DownloadTarget, 0, len(c.Sections)*2)
	for _, s := range c.Sections {
		secDir := filepath.Join(courseDir, course.SectionDir(s, opts.Policy))
		for _, l := range s.Lectures {
			stem := course.LectureFileStem(s.Index, l.Position, l.RawName, opts.Qualified, opts.Policy)
			for _, k := range domain.KindOrder {
				if !opts.Kinds.Has(k) {
					continue
				}
				link, ok := l.Resource(k)
				if !ok {
					continue
				}
				out = append(out, domain.DownloadTarget{
					Path:         filepath.Join(secDir, stem+"."+k.Extension()),
					Link:         link,
					Kind:         k,
					Section:      s.DisplayName,
					Lecture:      course.CleanLectureName(l.RawName),
					ExpectedSize: -1,
				})
			}
		}
	}
	return out
}

// titleDir 把课程标题转成 root 下的单个目录段。
// 标题来自远端页面；清洗后为空、"." 或 ".." 时用 "_" 代替，保证目标不会落到 root 之外。
func titleDir(title string, p fsname.Policy) string {
	name := fsname.Sanitize(title, p)
	switch strings.TrimSpace(name) {
	case "", ".", "..":
		return "_"
	}
	return name
}

// SectionDirs 返回每个 section 的目录（页面上出现的 section 都有目录，即使没有启用的资源）。
func SectionDirs(root string, c domain.Course, opts Options) []string {
	courseDir := filepath.Join(root, titleDir(c.Title, opts.Policy))
	out := make([]string, 0, len(c.Sections))
	for _, s := range c.Sections {
		out = append(out, filepath.Join(courseDir, course.SectionDir(s, opts.Policy)))
	}
	return out
}
