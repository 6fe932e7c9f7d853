package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/coursefetch/internal/domain"
)

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	// 这个测试锁定对外契约：stdout 非 TTY 时只能输出一个 RunReport JSON（进度/配置必须走 stderr 或直接禁用）。
	root := t.TempDir()

	// dry-run + offline：只读取缓存的目录页，不访问网络，也不需要登录。
	index, err := os.ReadFile(filepath.Join("..", "..", "internal", "course", "testdata", "index.html"))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}
	cacheDir := filepath.Join(root, ".coursefetch", "algo-001")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		t.Fatalf("创建缓存目录失败：%v", err)
	}
	if err := os.WriteFile(filepath.Join(cacheDir, "index.html"), index, 0o644); err != nil {
		t.Fatalf("写入缓存失败：%v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("读取 cwd 失败：%v", err)
	}
	repoRoot := filepath.Clean(filepath.Join(wd, "..", ".."))

	cmd := exec.Command("go", "run", "./cmd/coursefetch", "run", "algo-001", "--dry-run", "--offline", "--out", root)
	cmd.Dir = repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("命令执行失败：%v\nstderr=%s\nstdout=%s", err, stderr.String(), stdout.String())
	}

	// stdout 必须是单个 JSON。
	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if !rr.DryRun || rr.Summary.Planned != 3 {
		t.Fatalf("dry-run 报告不符合预期：%+v", rr.Summary)
	}
	// 进度/配置不应出现在 stdout。
	if strings.Contains(stdout.String(), "配置（生效）") {
		t.Fatalf("stdout 不应包含进度/配置输出：%q", stdout.String())
	}

	// stderr 至少应包含最终摘要行。
	if !strings.Contains(stderr.String(), "完成：downloaded=") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}

	// dry-run 不应创建课程目录。
	if _, err := os.Stat(filepath.Join(root, "Algorithms: Design and Analysis")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应创建课程目录，Stat err=%v", err)
	}
}
