package cache

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/John-Robertt/coursefetch/internal/domain"
)

func TestStore_ReadWriteIndexHTML(t *testing.T) {
	fs := afero.NewMemMapFs()

	s, err := New(fs, "/out", "algo-001", false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, ok, err := s.ReadIndexHTML(); ok || err != nil {
		t.Fatalf("空缓存应未命中：ok=%v err=%v", ok, err)
	}
	if err := s.WriteIndexHTML([]byte("<html/>")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, ok, err := s.ReadIndexHTML()
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok {
		t.Fatalf("期望命中缓存，但 ok=false")
	}
	if string(b) != "<html/>" {
		t.Fatalf("内容不一致：%q", string(b))
	}
	if s.IndexHTMLPath() != "/out/.coursefetch/algo-001/index.html" {
		t.Fatalf("缓存路径不符合约定：%q", s.IndexHTMLPath())
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	fs := afero.NewMemMapFs()

	s, err := New(fs, "/out", "algo-001", true)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := s.WriteReport(domain.RunReport{}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}
	if err := s.WriteOutline(Outline{}); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}
	if _, err := fs.Stat(s.ReportPath()); !os.IsNotExist(err) {
		t.Fatalf("期望文件不存在，但 Stat err=%v", err)
	}
}

func TestStore_Outline(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := New(fs, "/out", "algo-001", false)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	c := domain.Course{
		Title: "Algorithms",
		Sections: []domain.Section{{
			Name: "Intro", Week: 1, OriginalIndex: 3, Index: 1, DisplayName: "1 - Intro (week 1)",
			Lectures: []domain.Lecture{{
				RawName:   "Why (4:32)",
				Position:  1,
				Resources: map[domain.ResourceKind]domain.RemoteLink{domain.KindVideo: "https://cdn.test/1.mp4"},
			}},
		}},
	}
	if err := s.WriteOutline(NewOutline("algo-001", c)); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	o, ok, err := s.ReadOutline()
	if err != nil || !ok {
		t.Fatalf("读取 outline 失败：ok=%v err=%v", ok, err)
	}
	if o.Title != "Algorithms" || len(o.Sections) != 1 {
		t.Fatalf("outline 内容不符合预期：%+v", o)
	}
	sec := o.Sections[0]
	if sec.Name != "1 - Intro (week 1)" || sec.PageOrder != 3 || sec.Lectures[0].Resources["video"] != "https://cdn.test/1.mp4" {
		t.Fatalf("outline section 不符合预期：%+v", sec)
	}
}

func TestNew_RejectsPathTraversal(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, id := range []string{"", "../etc", "a/b", ".hidden"} {
		if _, err := New(fs, "/out", id, false); err == nil {
			t.Fatalf("course id=%q 应被拒绝", id)
		}
	}
}

func TestDiffOutline(t *testing.T) {
	base := Outline{Title: "Algo", Sections: []OutlineSection{
		{Name: "1 - Intro", Lectures: []OutlineLecture{{Name: "Hello"}, {Name: "World"}}},
	}}
	if d := DiffOutline(base, base); d != "" {
		t.Fatalf("相同结构不应有差异：%q", d)
	}

	withLinks := base
	withLinks.Sections = []OutlineSection{{Name: "1 - Intro", Lectures: []OutlineLecture{
		{Name: "Hello", Resources: map[string]string{"pdf": "u"}}, {Name: "World"},
	}}}
	if d := DiffOutline(base, withLinks); d != "" {
		t.Fatalf("资源链接不参与比较：%q", d)
	}

	renamed := Outline{Title: "Algo", Sections: []OutlineSection{
		{Name: "1 - Intro", Lectures: []OutlineLecture{{Name: "Hello"}, {Name: "Bye"}}},
	}}
	if d := DiffOutline(base, renamed); !strings.Contains(d, `"World" → "Bye"`) {
		t.Fatalf("lecture 改名应被报告：%q", d)
	}

	fewer := Outline{Title: "Algo"}
	if d := DiffOutline(base, fewer); !strings.Contains(d, "section 数量 1 → 0") {
		t.Fatalf("section 数量变化应被报告：%q", d)
	}
}
