package course

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/coursefetch/internal/domain"
)

const (
	selTitle    = "div#course-logo-text a img"
	selItemList = "div.item_list"
)

// Parse 把 lecture/index 页面 HTML 解析为课程树（section 仍是页面顺序，未排序）。
//
// Parse 是纯函数：相同输入 => 相同输出。pageURL 用于把相对资源链接解析为绝对 URL。
func Parse(html []byte, pageURL string) (domain.Course, error) {
	if len(html) == 0 {
		return domain.Course{}, &StructureError{Item: -1, Reason: "html 为空"}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.Course{}, err
	}
	return Extract(doc, pageURL)
}

// Extract 从已解析的文档中抽取课程树。
//
// 页面把 section 编码为 div.item_list 下交替出现的兄弟节点：
// 第 0 个是 section 标题，第 1 个是其 lecture 列表，第 2 个是下一个标题……
// 抽取分两步：先 pairItems 一次性校验形状并配对，再逐对映射为 Section。
func Extract(doc *goquery.Document, pageURL string) (domain.Course, error) {
	if doc == nil {
		return domain.Course{}, &StructureError{Item: -1, Reason: "document 为空"}
	}

	alt, ok := doc.Find(selTitle).First().Attr("alt")
	title := normSpace(alt)
	if !ok || title == "" {
		return domain.Course{}, &StructureError{Item: -1, Reason: "未找到课程标题（" + selTitle + "[alt]）"}
	}

	list := doc.Find(selItemList).First()
	if list.Length() == 0 {
		return domain.Course{}, &StructureError{Item: -1, Reason: "未找到 " + selItemList}
	}

	pairs, err := pairItems(list.Children())
	if err != nil {
		return domain.Course{}, err
	}

	sections := make([]domain.Section, 0, len(pairs))
	for i, p := range pairs {
		sections = append(sections, buildSection(i, p, pageURL))
	}
	return domain.Course{Title: title, Sections: sections}, nil
}

type itemPair struct {
	heading *goquery.Selection // h3
	list    *goquery.Selection // ul/ol
}

// pairItems 把扁平的兄弟节点序列按 (标题, 列表) 两两配对。
// 奇数个子节点或任一对的形状不符都会立即失败。
func pairItems(children *goquery.Selection) ([]itemPair, error) {
	n := children.Length()
	if n%2 != 0 {
		return nil, &StructureError{Item: n - 1, Reason: fmt.Sprintf("子节点数量为奇数（%d），标题与列表无法配对", n)}
	}

	pairs := make([]itemPair, 0, n/2)
	for i := 0; i < n; i += 2 {
		h := children.Eq(i)
		l := children.Eq(i + 1)

		heading := h
		if goquery.NodeName(h) != "h3" {
			heading = h.ChildrenFiltered("h3").First()
		}
		if heading.Length() == 0 {
			return nil, &StructureError{Item: i, Reason: fmt.Sprintf("期望 section 标题（h3），实际是 <%s>", goquery.NodeName(h))}
		}

		switch goquery.NodeName(l) {
		case "ul", "ol":
		default:
			return nil, &StructureError{Item: i + 1, Reason: fmt.Sprintf("期望 lecture 列表（ul/ol），实际是 <%s>", goquery.NodeName(l))}
		}

		pairs = append(pairs, itemPair{heading: heading, list: l})
	}
	return pairs, nil
}

func buildSection(idx int, p itemPair, pageURL string) domain.Section {
	name, week := ParseSection(normSpace(p.heading.Text()))

	items := p.list.ChildrenFiltered("li")

	lectures := make([]domain.Lecture, 0, items.Length())
	items.ChildrenFiltered("a").Each(func(_ int, a *goquery.Selection) {
		lectures = append(lectures, domain.Lecture{
			RawName:  normSpace(a.Text()),
			Position: len(lectures) + 1,
		})
	})

	// 没有 href 的锚点不计入扁平列表（与页面自身的资源编码保持一致）。
	links := make([]domain.RemoteLink, 0, 4*len(lectures))
	items.ChildrenFiltered("div.item_resource").ChildrenFiltered("a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		links = append(links, domain.RemoteLink(resolveURL(pageURL, href)))
	})

	return domain.Section{
		Name:          name,
		Week:          week,
		OriginalIndex: idx,
		Lectures:      lectures,
		Links:         links,
	}
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil || base == "" {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
