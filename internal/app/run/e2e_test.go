package run

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/coursefetch/internal/config"
	"github.com/John-Robertt/coursefetch/internal/domain"
	"github.com/John-Robertt/coursefetch/internal/download"
	"github.com/John-Robertt/coursefetch/internal/fsname"
	"github.com/John-Robertt/coursefetch/internal/infra/httpx"
	"github.com/John-Robertt/coursefetch/internal/session"
)

// 页面顺序：week 2 在前，week 1 在后；排序后 Intro 应为第 1 节。
const indexHTML = `<html><body>
<div id="course-logo-text"><a href="/"><img alt="Algo"></a></div>
<div class="item_list">
  <div><h3>Sorting (week 2)</h3></div>
  <ul><li><a href="#">Merge Sort (12:01)</a>
    <div class="item_resource">
      <a href="/res/2-1.pdf">pdf</a><a href="/res/2-1.pptx">pptx</a><a href="/res/2-1.srt">srt</a><a href="/res/2-1.mp4">mp4</a>
    </div></li></ul>
  <div><h3>Intro (week 1)</h3></div>
  <ul><li><a href="#">Hello (4:32)</a>
    <div class="item_resource">
      <a href="/res/1-1.pdf">pdf</a><a href="/res/1-1.pptx">pptx</a><a href="/res/1-1.srt">srt</a><a href="/res/1-1.mp4">mp4</a>
    </div></li></ul>
</div></body></html>`

type fakeSite struct {
	srv *httptest.Server

	mu       sync.Mutex
	byExt    map[string]int
	index    int
	failPath string
}

func (s *fakeSite) count(ext string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byExt[ext]
}

func (s *fakeSite) indexHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func newFakeSite(t *testing.T) *fakeSite {
	t.Helper()
	site := &fakeSite{byExt: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/crypto/auth/auth_redirector", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><head><title>Login</title></head><body>
<form method="post" action="/login"><input name="email"><input type="password" name="password"></form></body></html>`)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("password") != "pw" {
			_, _ = io.WriteString(w, `<html><head><title>Login Failed</title></head></html>`)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "CAUTH", Value: "ok", Path: "/"})
		_, _ = io.WriteString(w, `<html><head><title>OK</title></head></html>`)
	})
	mux.HandleFunc("/algo-001/lecture/index", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.index++
		site.mu.Unlock()
		if _, err := r.Cookie("CAUTH"); err != nil {
			http.Error(w, "login required", http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, indexHTML)
	})
	mux.HandleFunc("/res/", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.byExt[path.Ext(r.URL.Path)]++
		fail := site.failPath
		site.mu.Unlock()
		if r.URL.Path == fail {
			http.NotFound(w, r)
			return
		}
		body := "content of " + r.URL.Path
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = io.WriteString(w, body)
	})
	site.srv = httptest.NewServer(mux)
	t.Cleanup(site.srv.Close)
	return site
}

func newEff(site *fakeSite) config.EffectiveConfig {
	return config.EffectiveConfig{
		CourseID: "algo-001",
		Email:    "a@b.test",
		Password: "pw",
		Kinds:    domain.NewKindSet(domain.KindVideo),
		OutDir:   "/out",
		Policy:   fsname.Permissive('/'),
		BaseURL:  site.srv.URL,
	}
}

func newDeps(t *testing.T, fs afero.Fs) Deps {
	t.Helper()
	hc, err := httpx.NewSessionClient("")
	require.NoError(t, err)
	return Deps{FS: fs, HTTP: hc, NewRunID: func() string { return "run-1" }}
}

func TestExecute_VideoOnly_TwoSections(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()

	rr, err := Execute(context.Background(), newEff(site), newDeps(t, fs), nil)
	require.NoError(t, err)
	require.True(t, rr.OK(), "report=%+v", rr)
	require.Equal(t, "run-1", rr.RunID)
	require.Equal(t, "Algo", rr.CourseTitle)
	require.Equal(t, 2, rr.Summary.Downloaded)

	want := []string{
		filepath.Join("/out", "Algo", "1 - Intro (week 1)", "1 - Hello.mp4"),
		filepath.Join("/out", "Algo", "2 - Sorting (week 2)", "1 - Merge Sort.mp4"),
	}
	for _, p := range want {
		b, err := afero.ReadFile(fs, p)
		require.NoError(t, err, "期望文件存在：%s", p)
		require.NotEmpty(t, b)
	}

	var files []string
	require.NoError(t, afero.Walk(fs, "/out/Algo", func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			files = append(files, p)
		}
		return err
	}))
	require.ElementsMatch(t, want, files, "只应创建 2 个视频文件")

	for _, ext := range []string{".pdf", ".pptx", ".srt"} {
		require.Zero(t, site.count(ext), "未启用的 %s 不应被请求", ext)
	}
	require.Equal(t, 2, site.count(".mp4"))

	for _, name := range []string{"index.html", "outline.yaml", "report.json"} {
		ok, err := afero.Exists(fs, filepath.Join("/out", ".coursefetch", "algo-001", name))
		require.NoError(t, err)
		require.True(t, ok, "缓存文件缺失：%s", name)
	}
}

func TestExecute_SecondRunSkipsExisting(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()

	_, err := Execute(context.Background(), newEff(site), newDeps(t, fs), nil)
	require.NoError(t, err)

	rr, err := Execute(context.Background(), newEff(site), newDeps(t, fs), nil)
	require.NoError(t, err)
	require.Equal(t, 2, rr.Summary.Skipped)
	require.Equal(t, 0, rr.Summary.Downloaded)
	require.Equal(t, 2, site.count(".mp4"), "第二次运行不应再请求资源")
}

func TestExecute_DryRun_NoWrites(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()
	eff := newEff(site)
	eff.DryRun = true
	eff.Kinds = domain.NewKindSet(domain.KindOrder...)

	rr, err := Execute(context.Background(), eff, newDeps(t, fs), nil)
	require.NoError(t, err)
	require.True(t, rr.DryRun)
	require.Equal(t, 8, rr.Summary.Planned)

	ok, err := afero.Exists(fs, "/out")
	require.NoError(t, err)
	require.False(t, ok, "dry-run 不应创建任何目录")
	require.Zero(t, site.count(".mp4")+site.count(".pdf"))
}

func TestExecute_AuthFailed(t *testing.T) {
	site := newFakeSite(t)
	eff := newEff(site)
	eff.Password = "wrong"

	rr, err := Execute(context.Background(), eff, newDeps(t, afero.NewMemMapFs()), nil)
	require.True(t, session.IsAuthError(err), "期望 AuthError，实际 %v", err)
	require.Equal(t, domain.ErrCodeAuthFailed, rr.ErrorCode)
	require.NotEmpty(t, rr.ErrorMsg)
	require.Zero(t, site.indexHits())
}

func TestExecute_PageFetchFailed(t *testing.T) {
	site := newFakeSite(t)
	eff := newEff(site)
	eff.CourseID = "nope-001"

	rr, err := Execute(context.Background(), eff, newDeps(t, afero.NewMemMapFs()), nil)
	require.True(t, session.IsPageFetchError(err), "期望 PageFetchError，实际 %v", err)
	require.Equal(t, domain.ErrCodePageFetchFailed, rr.ErrorCode)
	require.Contains(t, rr.ErrorMsg, "nope-001")
}

func TestExecute_DownloadFailureIsFatalByDefault(t *testing.T) {
	site := newFakeSite(t)
	site.failPath = "/res/1-1.mp4"
	fs := afero.NewMemMapFs()

	rr, err := Execute(context.Background(), newEff(site), newDeps(t, fs), nil)
	require.True(t, download.IsError(err), "期望 download.Error，实际 %v", err)
	require.Equal(t, domain.ErrCodeDownloadFailed, rr.ErrorCode)
	require.Len(t, rr.Items, 1, "致命错误后不应继续下载")
	require.Equal(t, domain.StatusFailed, rr.Items[0].Status)

	ok, _ := afero.Exists(fs, rr.Items[0].Path)
	require.False(t, ok, "失败的目标不应出现在磁盘上")
}

func TestExecute_ContinueOnError(t *testing.T) {
	site := newFakeSite(t)
	site.failPath = "/res/1-1.mp4"
	eff := newEff(site)
	eff.ContinueOnError = true

	rr, err := Execute(context.Background(), eff, newDeps(t, afero.NewMemMapFs()), nil)
	require.NoError(t, err)
	require.False(t, rr.OK())
	require.Equal(t, 1, rr.Summary.Failed)
	require.Equal(t, 1, rr.Summary.Downloaded)
	for _, it := range rr.Items {
		if it.Status == domain.StatusFailed {
			require.Equal(t, domain.ErrCodeDownloadFailed, it.ErrorCode)
			require.Contains(t, it.ErrorMsg, "HTTP 404")
		}
	}
}

func TestExecute_OfflineUsesCachedIndex(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()

	_, err := Execute(context.Background(), newEff(site), newDeps(t, fs), nil)
	require.NoError(t, err)
	require.Equal(t, 1, site.indexHits())

	eff := newEff(site)
	eff.Offline = true
	eff.DryRun = true
	rr, err := Execute(context.Background(), eff, newDeps(t, fs), nil)
	require.NoError(t, err)
	require.Equal(t, 1, site.indexHits(), "离线模式不应访问目录页")
	require.Equal(t, 2, rr.Summary.Skipped)
}

func TestExecute_OfflineWarnsOnOutlineDrift(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()

	_, err := Execute(context.Background(), newEff(site), newDeps(t, fs), nil)
	require.NoError(t, err)

	// 上次运行写下的快照被改动：少了一个 section。
	outlinePath := filepath.Join("/out", ".coursefetch", "algo-001", "outline.yaml")
	require.NoError(t, afero.WriteFile(fs, outlinePath, []byte("course_id: algo-001\ntitle: Algo\nsections: []\n"), 0o644))

	var logs bytes.Buffer
	deps := newDeps(t, fs)
	deps.Log = slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	eff := newEff(site)
	eff.Offline = true
	eff.DryRun = true
	_, err = Execute(context.Background(), eff, deps, nil)
	require.NoError(t, err)
	require.Contains(t, logs.String(), "outline 缓存不一致")
	require.Contains(t, logs.String(), "section 数量 0 → 2")
}

func TestExecute_OfflineMatchingOutlineDoesNotWarn(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()

	_, err := Execute(context.Background(), newEff(site), newDeps(t, fs), nil)
	require.NoError(t, err)

	var logs bytes.Buffer
	deps := newDeps(t, fs)
	deps.Log = slog.New(slog.NewTextHandler(&logs, nil))

	eff := newEff(site)
	eff.Offline = true
	eff.DryRun = true
	_, err = Execute(context.Background(), eff, deps, nil)
	require.NoError(t, err)
	require.NotContains(t, logs.String(), "不一致")
}

func TestExecute_OfflineWithoutCache(t *testing.T) {
	site := newFakeSite(t)
	eff := newEff(site)
	eff.Offline = true

	rr, err := Execute(context.Background(), eff, newDeps(t, afero.NewMemMapFs()), nil)
	require.True(t, session.IsPageFetchError(err))
	require.Equal(t, domain.ErrCodePageFetchFailed, rr.ErrorCode)
}

func TestExecute_TargetConflict(t *testing.T) {
	site := newFakeSite(t)
	fs := afero.NewMemMapFs()
	// 同名文件挡住 section 目录。
	require.NoError(t, afero.WriteFile(fs, filepath.Join("/out", "Algo", "1 - Intro (week 1)"), []byte("x"), 0o644))

	rr, err := Execute(context.Background(), newEff(site), newDeps(t, fs), nil)
	require.Error(t, err)
	require.Equal(t, domain.ErrCodeTargetConflict, rr.ErrorCode)
	require.Zero(t, site.count(".mp4"))
}
