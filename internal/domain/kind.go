package domain

import (
	"fmt"
	"strings"
)

// ResourceKind 是 lecture 可下载资源的固定种类。
//
// 约束：种类数量固定为 4，且声明顺序就是页面上资源链接的循环顺序（见 course.StrideDecoder）。
type ResourceKind int

const (
	KindPDF ResourceKind = iota
	KindSlides
	KindSubtitles
	KindVideo
)

// KindOrder 是页面编码资源时使用的固定循环顺序。
var KindOrder = []ResourceKind{KindPDF, KindSlides, KindSubtitles, KindVideo}

func (k ResourceKind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindSlides:
		return "slides"
	case KindSubtitles:
		return "subtitles"
	case KindVideo:
		return "video"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Extension 返回落盘文件的扩展名（不含点）。
func (k ResourceKind) Extension() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindSlides:
		return "pptx"
	case KindSubtitles:
		return "srt"
	case KindVideo:
		return "mp4"
	default:
		return "bin"
	}
}

// ParseKind 解析配置/CLI 中的资源种类名称（兼容旧命令行的 pdfs/pptx/subs 写法）。
func ParseKind(s string) (ResourceKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf", "pdfs":
		return KindPDF, nil
	case "slides", "pptx":
		return KindSlides, nil
	case "subtitles", "subs", "srt":
		return KindSubtitles, nil
	case "video", "mp4":
		return KindVideo, nil
	default:
		return 0, fmt.Errorf("未知资源种类：%q（可选 pdf|slides|subtitles|video）", s)
	}
}

// KindSet 是启用的资源种类集合（位集合，零值为空集合）。
type KindSet uint8

const allKinds KindSet = 1<<4 - 1

func NewKindSet(kinds ...ResourceKind) KindSet {
	var s KindSet
	for _, k := range kinds {
		s = s.Add(k)
	}
	return s
}

func (s KindSet) Add(k ResourceKind) KindSet    { return s | 1<<uint(k) }
func (s KindSet) Remove(k ResourceKind) KindSet { return s &^ (1 << uint(k)) }
func (s KindSet) Has(k ResourceKind) bool       { return s&(1<<uint(k)) != 0 }
func (s KindSet) Empty() bool                   { return s&allKinds == 0 }

// Kinds 按声明顺序返回集合内的种类。
func (s KindSet) Kinds() []ResourceKind {
	out := make([]ResourceKind, 0, len(KindOrder))
	for _, k := range KindOrder {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s KindSet) String() string {
	names := make([]string, 0, len(KindOrder))
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	return strings.Join(names, ",")
}
