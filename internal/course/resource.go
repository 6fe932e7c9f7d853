package course

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/coursefetch/internal/domain"
)

// SlotDecoder 把 section 扁平资源列表中的下标 j 解码为 (lecture 下标, 资源种类)。
//
// 页面布局（或未来的结构化 API）变化时替换解码器即可，MapResources 的调用方不变。
type SlotDecoder interface {
	Decode(j int) (lecture int, kind domain.ResourceKind)
}

// StrideDecoder 是固定步长的位置解码：每个 lecture 贡献 len(Order) 个连续链接，顺序固定。
//
// 这是与远端页面布局的隐式契约：某个 lecture 少了中间某个槽位时无法察觉，
// 后续链接会整体错位。除非远端布局被独立验证，不要把它改得更“宽容”。
type StrideDecoder struct {
	Order []domain.ResourceKind
}

// DefaultDecoder 返回页面使用的 4 步长解码器（pdf, slides, subtitles, video）。
func DefaultDecoder() StrideDecoder {
	return StrideDecoder{Order: domain.KindOrder}
}

func (d StrideDecoder) Decode(j int) (int, domain.ResourceKind) {
	n := len(d.Order)
	return j / n, d.Order[j%n]
}

// MapResources 把扁平链接列表按解码器关联回 lecture，并只保留启用的种类。
//
// 未启用种类的链接直接丢弃（不会被抓取）。空链接仍占一个槽位，但不记为资源。
// 解码出的 lecture 下标越界时返回 StructureError，不做静默丢弃。
func MapResources(lectures []domain.Lecture, links []domain.RemoteLink, dec SlotDecoder, enabled domain.KindSet) error {
	if dec == nil {
		dec = DefaultDecoder()
	}
	for j, link := range links {
		li, kind := dec.Decode(j)
		if li < 0 || li >= len(lectures) {
			return &StructureError{
				Item:   -1,
				Reason: fmt.Sprintf("第 %d 个资源链接映射到 lecture #%d，但该 section 只有 %d 个 lecture", j, li+1, len(lectures)),
			}
		}
		if !enabled.Has(kind) || strings.TrimSpace(string(link)) == "" {
			continue
		}
		if lectures[li].Resources == nil {
			lectures[li].Resources = make(map[domain.ResourceKind]domain.RemoteLink, len(domain.KindOrder))
		}
		lectures[li].Resources[kind] = link
	}
	return nil
}

// MapCourse 对课程内每个 section 执行 MapResources。
func MapCourse(c *domain.Course, dec SlotDecoder, enabled domain.KindSet) error {
	for i := range c.Sections {
		s := &c.Sections[i]
		if err := MapResources(s.Lectures, s.Links, dec, enabled); err != nil {
			var se *StructureError
			if errors.As(err, &se) {
				se.Reason = fmt.Sprintf("section %q：%s", s.Name, se.Reason)
			}
			return err
		}
	}
	return nil
}
