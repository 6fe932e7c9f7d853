package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		CourseID:   "algo-001",
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []ItemResult{
			{Path: "b/2 - x.mp4", Status: StatusSkipped},
			{Path: "", Status: StatusFailed}, // 无路径的合成项
			{Path: "a/1 - y.mp4", Status: StatusDownloaded, Bytes: 10},
			{Path: "a/1 - y.pdf", Status: StatusPlanned},
		},
	}

	r.Finalize()

	got := []string{r.Items[0].Path, r.Items[1].Path, r.Items[2].Path, r.Items[3].Path}
	want := []string{"a/1 - y.mp4", "a/1 - y.pdf", "b/2 - x.mp4", ""}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("items 排序不符合契约：%v", got)
		}
	}
	s := r.Summary
	if s.Downloaded != 1 || s.Skipped != 1 || s.Failed != 1 || s.Planned != 1 || s.Bytes != 10 {
		t.Fatalf("summary 统计不正确：%+v", s)
	}
	if r.OK() {
		t.Fatalf("存在失败条目时 OK() 应为 false")
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
}

func TestRunReport_Finalize_NilItemsEncodeAsArray(t *testing.T) {
	r := RunReport{}
	r.Finalize()
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`"items":[]`)) {
		t.Fatalf("items 应输出为 []：%s", string(b))
	}
}

func TestKindSet(t *testing.T) {
	s := NewKindSet(KindVideo, KindPDF)
	if !s.Has(KindVideo) || !s.Has(KindPDF) || s.Has(KindSlides) {
		t.Fatalf("集合成员不正确：%s", s)
	}
	if s.String() != "pdf,video" {
		t.Fatalf("期望按声明顺序输出，实际 %q", s.String())
	}
	if s.Remove(KindVideo).Remove(KindPDF).Empty() != true {
		t.Fatalf("移除全部后应为空集合")
	}
}

func TestParseKind_Aliases(t *testing.T) {
	cases := map[string]ResourceKind{
		"pdfs": KindPDF, "pptx": KindSlides, "subs": KindSubtitles, "Video": KindVideo,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Fatalf("ParseKind(%q)=%v,%v 期望 %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("epub"); err == nil {
		t.Fatalf("期望未知种类报错")
	}
	if KindSlides.Extension() != "pptx" || KindSubtitles.Extension() != "srt" {
		t.Fatalf("扩展名映射不正确")
	}
}

func TestParseCourseID(t *testing.T) {
	ok := map[string]CourseID{
		"algo-001":      "algo-001",
		"  ml_2012.a  ": "ml_2012.a",
	}
	for in, want := range ok {
		got, valid := ParseCourseID(in)
		if !valid || got != want {
			t.Fatalf("ParseCourseID(%q)=%q,%v 期望 %q", in, got, valid, want)
		}
	}
	for _, in := range []string{"", "../etc", "a/b", "-x", "a..b", "课程"} {
		if _, valid := ParseCourseID(in); valid {
			t.Fatalf("期望 %q 被拒绝", in)
		}
	}
}
