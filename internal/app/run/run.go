package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/John-Robertt/coursefetch/internal/app/planner"
	"github.com/John-Robertt/coursefetch/internal/config"
	"github.com/John-Robertt/coursefetch/internal/course"
	"github.com/John-Robertt/coursefetch/internal/domain"
	"github.com/John-Robertt/coursefetch/internal/download"
	"github.com/John-Robertt/coursefetch/internal/infra/cache"
	"github.com/John-Robertt/coursefetch/internal/infra/fsx"
	"github.com/John-Robertt/coursefetch/internal/infra/httpx"
	"github.com/John-Robertt/coursefetch/internal/session"
)

// Deps 是 Execute 的外部依赖；零值字段使用生产默认值。
type Deps struct {
	// FS 默认 afero.NewOsFs()。
	FS afero.Fs
	// HTTP 必须带 cookie jar；默认 httpx.NewSessionClient(eff.ProxyURL)。
	HTTP *http.Client
	// Decoder 默认 course.DefaultDecoder()。
	Decoder course.SlotDecoder
	Log     *slog.Logger
	// NewRunID 默认 uuid.NewString。
	NewRunID func() string
}

func (d Deps) withDefaults(eff config.EffectiveConfig) (Deps, error) {
	if d.FS == nil {
		d.FS = afero.NewOsFs()
	}
	if d.HTTP == nil {
		c, err := httpx.NewSessionClient(eff.ProxyURL)
		if err != nil {
			return d, &config.Error{Code: config.ErrCodeInvalid, Path: "proxy.url", Err: err}
		}
		d.HTTP = c
	}
	if d.Decoder == nil {
		d.Decoder = course.DefaultDecoder()
	}
	if d.Log == nil {
		d.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if d.NewRunID == nil {
		d.NewRunID = uuid.NewString
	}
	return d, nil
}

// Execute 执行一次运行：登录 → 取目录页 → 抽取 → 排序 → 资源映射 → 规划 → 串行下载 → 写报告。
//
// 返回值：
// - RunReport 总是有效（致命错误时 ErrorCode/ErrorMsg 非空，Items 只包含已处理的目标）
// - error 非 nil 表示运行被致命错误中止（类型化：*session.AuthError / *session.PageFetchError /
//   *course.StructureError / *download.Error / *fsx.PathTypeConflictError / *config.Error）
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) (domain.RunReport, error) {
	started := time.Now().UTC()
	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		CourseID:  string(eff.CourseID),
		Root:      eff.OutDir,
		DryRun:    eff.DryRun,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 64),
	}

	deps, err := deps.withDefaults(eff)
	if err != nil {
		return finish(rr, domain.ErrCodeConfigInvalid, err), err
	}
	rr.RunID = deps.NewRunID()
	log := deps.Log.With("run_id", rr.RunID, "course_id", string(eff.CourseID))

	store, err := cache.New(deps.FS, eff.OutDir, string(eff.CourseID), eff.DryRun)
	if err != nil {
		err = &config.Error{Code: config.ErrCodeInvalid, Path: "course_id", Err: err}
		return finish(rr, domain.ErrCodeConfigInvalid, err), err
	}

	sess := session.New(deps.HTTP, eff.BaseURL, log)

	if eff.NeedsLogin() {
		t0 := time.Now()
		log.Info("登录", "email", eff.Email)
		if err := sess.Login(ctx, eff.Email, eff.Password); err != nil {
			return finish(rr, domain.ErrCodeAuthFailed, err), err
		}
		phase(obs, "auth", map[string]any{"email": eff.Email}, time.Since(t0))
	}

	t0 := time.Now()
	pageURL := sess.CourseURL(string(eff.CourseID))
	html, source, err := loadIndex(ctx, eff, sess, store, pageURL, log)
	if err != nil {
		return finish(rr, domain.ErrCodePageFetchFailed, err), err
	}
	phase(obs, "index", map[string]any{"source": source, "bytes": len(html)}, time.Since(t0))

	t0 = time.Now()
	c, err := course.Parse(html, pageURL)
	if err != nil {
		return finish(rr, domain.ErrCodeStructure, err), err
	}
	rr.CourseTitle = c.Title
	course.SortSections(c.Sections)
	if err := course.MapCourse(&c, deps.Decoder, eff.Kinds); err != nil {
		return finish(rr, domain.ErrCodeStructure, err), err
	}
	var lectures, links int
	for _, s := range c.Sections {
		lectures += len(s.Lectures)
		links += len(s.Links)
	}
	phase(obs, "extract", map[string]any{"sections": len(c.Sections), "lectures": lectures, "links": links}, time.Since(t0))

	outline := cache.NewOutline(string(eff.CourseID), c)
	if eff.Offline {
		checkOutline(store, outline, log)
	}
	if !store.ReadOnly {
		if err := store.WriteOutline(outline); err != nil {
			log.Warn("写入 outline 缓存失败", "err", err)
		}
	}

	t0 = time.Now()
	opts := planner.Options{
		Kinds:     eff.Kinds,
		Qualified: eff.Qualified,
		Policy:    eff.Policy,
	}
	targets := planner.Plan(eff.OutDir, c, opts)
	phase(obs, "plan", map[string]any{"targets": len(targets), "kinds": eff.Kinds.String()}, time.Since(t0))

	if eff.DryRun {
		planOnly(deps.FS, targets, &rr, obs)
		return finish(rr, "", nil), nil
	}

	for _, dir := range planner.SectionDirs(eff.OutDir, c, opts) {
		if err := fsx.EnsureDir(deps.FS, dir); err != nil {
			code := domain.ErrCodeIOFailed
			if fsx.IsPathTypeConflict(err) {
				code = domain.ErrCodeTargetConflict
			}
			rr = finish(rr, code, err)
			writeReport(store, rr, log)
			return rr, err
		}
	}

	t0 = time.Now()
	fatal := downloadAll(ctx, eff, deps, sess, targets, &rr, obs, log)
	var downloaded, skipped, failed int
	for _, it := range rr.Items {
		switch it.Status {
		case domain.StatusDownloaded:
			downloaded++
		case domain.StatusSkipped:
			skipped++
		case domain.StatusFailed:
			failed++
		}
	}
	phase(obs, "download", map[string]any{"downloaded": downloaded, "skipped": skipped, "failed": failed}, time.Since(t0))

	code := ""
	if fatal != nil {
		code = itemErrorCode(fatal)
	}
	rr = finish(rr, code, fatal)
	writeReport(store, rr, log)
	return rr, fatal
}

// loadIndex 返回目录页 HTML 与来源（network/cache）。
func loadIndex(ctx context.Context, eff config.EffectiveConfig, sess *session.Client, store cache.Store, pageURL string, log *slog.Logger) ([]byte, string, error) {
	if eff.Offline {
		b, ok, err := store.ReadIndexHTML()
		if err != nil {
			return nil, "", &session.PageFetchError{URL: store.IndexHTMLPath(), CourseID: string(eff.CourseID), Err: err}
		}
		if !ok {
			return nil, "", &session.PageFetchError{URL: store.IndexHTMLPath(), CourseID: string(eff.CourseID), Err: errors.New("离线模式下缓存的目录页不存在（先在线运行一次）")}
		}
		log.Debug("使用缓存的目录页", "path", store.IndexHTMLPath())
		return b, "cache", nil
	}

	log.Info("打开课程目录页", "url", pageURL)
	b, err := sess.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, "", &session.PageFetchError{URL: pageURL, CourseID: string(eff.CourseID), Err: err}
	}
	if !store.ReadOnly {
		if err := store.WriteIndexHTML(b); err != nil {
			log.Warn("写入目录页缓存失败", "err", err)
		}
	}
	return b, "network", nil
}

// checkOutline 在离线模式下把重新抽取的结构与上次运行写下的快照比较；
// 不一致只告警（多半是缓存页与快照来自不同版本的解析规则）。
func checkOutline(store cache.Store, cur cache.Outline, log *slog.Logger) {
	prev, ok, err := store.ReadOutline()
	switch {
	case err != nil:
		log.Warn("读取 outline 缓存失败", "path", store.OutlinePath(), "err", err)
	case !ok:
		log.Debug("没有 outline 缓存可供比较", "path", store.OutlinePath())
	default:
		if d := cache.DiffOutline(prev, cur); d != "" {
			log.Warn("缓存目录页的抽取结果与 outline 缓存不一致", "diff", d, "path", store.OutlinePath())
		}
	}
}

// planOnly 在 dry-run 下只读检查目标：已存在的标记 skipped，其余 planned。
func planOnly(fs afero.Fs, targets []domain.DownloadTarget, rr *domain.RunReport, obs Observer) {
	for i, t := range targets {
		idx := i + 1
		if obs != nil {
			obs.OnFileStart(idx, len(targets), t)
		}
		item := newItem(t)
		item.Status = domain.StatusPlanned
		exists, err := fsx.IsRegularFile(fs, t.Path)
		switch {
		case err != nil:
			fillItemError(&item, err)
		case exists:
			item.Status = domain.StatusSkipped
		}
		rr.Items = append(rr.Items, item)
		if obs != nil {
			obs.OnFileDone(idx, len(targets), item, 0)
		}
	}
}

// downloadAll 串行下载；返回非 nil 表示遇到致命错误（已中止）。
func downloadAll(ctx context.Context, eff config.EffectiveConfig, deps Deps, src download.Source, targets []domain.DownloadTarget, rr *domain.RunReport, obs Observer, log *slog.Logger) error {
	for i, t := range targets {
		idx := i + 1
		if obs != nil {
			obs.OnFileStart(idx, len(targets), t)
		}

		drv := download.Driver{FS: deps.FS, Source: src}
		if obs != nil {
			drv.OnProgress = func(p download.Progress) { obs.OnFileProgress(idx, len(targets), t, p) }
		}

		t0 := time.Now()
		res, err := drv.Download(ctx, string(t.Link), t.Path)
		item := newItem(t)
		if err != nil {
			fillItemError(&item, err)
		} else {
			item.Status = string(res.Status)
			item.Bytes = res.Bytes
		}
		rr.Items = append(rr.Items, item)
		if obs != nil {
			obs.OnFileDone(idx, len(targets), item, time.Since(t0))
		}

		if err == nil {
			log.Debug("目标完成", "path", t.Path, "status", item.Status, "bytes", item.Bytes)
			continue
		}
		log.Error("目标失败", "path", t.Path, "url", string(t.Link), "err", err)
		if ctx.Err() != nil || !eff.ContinueOnError {
			return err
		}
	}
	return nil
}

func newItem(t domain.DownloadTarget) domain.ItemResult {
	return domain.ItemResult{
		Section: t.Section,
		Lecture: t.Lecture,
		Kind:    t.Kind.String(),
		Path:    t.Path,
		URL:     string(t.Link),
	}
}

func fillItemError(item *domain.ItemResult, err error) {
	item.Status = domain.StatusFailed
	item.Bytes = 0
	item.ErrorCode = itemErrorCode(err)
	item.ErrorMsg = Humanize(err)
}

func itemErrorCode(err error) string {
	switch {
	case fsx.IsPathTypeConflict(err):
		return domain.ErrCodeTargetConflict
	case download.IsError(err):
		var de *download.Error
		if errors.As(err, &de) && (de.Op == "write" || de.Op == "rename") {
			return domain.ErrCodeIOFailed
		}
		return domain.ErrCodeDownloadFailed
	default:
		return domain.ErrCodeIOFailed
	}
}

func phase(obs Observer, name string, fields map[string]any, dur time.Duration) {
	if obs != nil {
		obs.OnPhaseDone(name, fields, dur)
	}
}

func finish(rr domain.RunReport, code string, err error) domain.RunReport {
	if err != nil {
		rr.ErrorCode = code
		rr.ErrorMsg = Humanize(err)
	}
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func writeReport(store cache.Store, rr domain.RunReport, log *slog.Logger) {
	if store.ReadOnly {
		return
	}
	if err := store.WriteReport(rr); err != nil {
		log.Warn("写入 report 缓存失败", "err", err)
	}
}

// Humanize 把致命/条目错误转成可操作的中文提示（用于 error_msg 与 CLI 输出）。
func Humanize(err error) string {
	if err == nil {
		return ""
	}

	var ae *session.AuthError
	if errors.As(err, &ae) {
		return fmt.Sprintf("登录失败，请检查邮箱与密码：%v", err)
	}

	var pe *session.PageFetchError
	if errors.As(err, &pe) {
		var hs *session.HTTPStatusError
		if errors.As(pe.Err, &hs) {
			switch hs.StatusCode {
			case 401, 403:
				return fmt.Sprintf("课程目录页返回 HTTP %d（可能未注册该课程或登录态失效）。请确认 course id（%s）是否正确。", hs.StatusCode, pe.CourseID)
			case 404:
				return fmt.Sprintf("课程目录页返回 HTTP 404。请确认 course id（%s）是否正确。", pe.CourseID)
			}
		}
		return pe.Error()
	}

	var se *course.StructureError
	if errors.As(err, &se) {
		return fmt.Sprintf("课程目录页结构不符合预期（站点布局可能已变化）：%v", err)
	}

	var ce *fsx.PathTypeConflictError
	if errors.As(err, &ce) {
		return ce.Error()
	}

	var de *download.Error
	if errors.As(err, &de) {
		var hs *session.HTTPStatusError
		if errors.As(de.Err, &hs) {
			return fmt.Sprintf("下载 %s 返回 HTTP %d", de.URL, hs.StatusCode)
		}
		low := strings.ToLower(de.Err.Error())
		if errors.Is(de.Err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
			return fmt.Sprintf("下载 %s 超时。建议检查网络/代理后重试（已完成的文件会被跳过）。", de.URL)
		}
		return de.Error()
	}

	return err.Error()
}
