package main

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/John-Robertt/coursefetch/internal/app/run"
	"github.com/John-Robertt/coursefetch/internal/config"
	"github.com/John-Robertt/coursefetch/internal/domain"
	"github.com/John-Robertt/coursefetch/internal/download"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端的进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - 下载进度行每写完一块就用 '\r' 原地重写一次，不堆积滚动行
type progressUI struct {
	w   io.Writer
	now func() time.Time

	fileStarted time.Time
	lineLen     int
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:   w,
		now: time.Now,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := p.now()

	mode := "download"
	modeHint := ""
	if eff.DryRun {
		mode = "dry-run"
		modeHint = " (不创建目录/不下载/不写缓存)"
	}

	fmt.Fprintf(p.w, "[%s] coursefetch run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  course: %s\n", eff.CourseID)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  kinds: %s\n", eff.Kinds)
	fmt.Fprintf(p.w, "  section_lecture_format: %s\n", onOff(eff.Qualified))
	fmt.Fprintf(p.w, "  name_policy: %s\n", eff.Policy)
	fmt.Fprintf(p.w, "  offline: %s\n", onOff(eff.Offline))
	fmt.Fprintf(p.w, "  continue_on_error: %s\n", onOff(eff.ContinueOnError))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  out: %s\n", eff.OutDir)
	fmt.Fprintf(p.w, "  cache: %s\n", filepath.Join(eff.OutDir, ".coursefetch", string(eff.CourseID)))
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	switch name {
	case "auth":
		fmt.Fprintf(p.w, "登录: ok (%s)\n", formatShortDuration(dur))
	case "index":
		fmt.Fprintf(p.w, "目录页: source=%v size=%s (%s)\n",
			fields["source"], humanize.Bytes(uint64(intField(fields, "bytes"))), formatShortDuration(dur),
		)
	case "extract":
		fmt.Fprintf(p.w, "抽取: sections=%d lectures=%d links=%d (%s)\n",
			intField(fields, "sections"), intField(fields, "lectures"), intField(fields, "links"), formatShortDuration(dur),
		)
	case "plan":
		fmt.Fprintf(p.w, "规划: targets=%d kinds=%v (%s)\n\n",
			intField(fields, "targets"), fields["kinds"], formatShortDuration(dur),
		)
	case "download":
		fmt.Fprintf(p.w, "\n下载: downloaded=%d skipped=%d failed=%d (%s)\n",
			intField(fields, "downloaded"), intField(fields, "skipped"), intField(fields, "failed"), formatShortDuration(dur),
		)
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnFileStart(idx, total int, t domain.DownloadTarget) {
	p.fileStarted = p.now()
	p.lineLen = 0
}

func (p *progressUI) OnFileProgress(idx, total int, t domain.DownloadTarget, pr download.Progress) {
	now := p.now()
	line := fmt.Sprintf("[%d/%d] %s%s", idx, total, filepath.Base(t.Path), download.FormatProgress(pr.Written, pr.Total))
	if el := now.Sub(p.fileStarted).Seconds(); el > 0 {
		line += fmt.Sprintf(" %s/s", humanize.Bytes(uint64(float64(pr.Written)/el)))
	}
	p.drawLine(line)
}

func (p *progressUI) OnFileDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	name := filepath.Base(res.Path)

	var line string
	switch res.Status {
	case domain.StatusDownloaded:
		line = fmt.Sprintf("[%d/%d] OK %s %s (%s)", idx, total, name, humanize.Bytes(uint64(res.Bytes)), formatShortDuration(dur))
	case domain.StatusSkipped:
		line = fmt.Sprintf("[%d/%d] SKIP %s (已存在)", idx, total, name)
	case domain.StatusPlanned:
		line = fmt.Sprintf("[%d/%d] PLAN %s", idx, total, res.Path)
	case domain.StatusFailed:
		line = fmt.Sprintf("[%d/%d] FAIL %s %s: %s", idx, total, name, res.ErrorCode, truncate(res.ErrorMsg, 160))
	default:
		line = fmt.Sprintf("[%d/%d] %s %s", idx, total, strings.ToUpper(res.Status), name)
	}
	p.drawLine(line)
	fmt.Fprintln(p.w)
	p.lineLen = 0
}

// drawLine 回到行首重写当前行；新内容更短时用空格覆盖残留字符。
func (p *progressUI) drawLine(s string) {
	pad := ""
	if n := p.lineLen - len(s); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprint(p.w, "\r"+s+pad)
	p.lineLen = len(s)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}
