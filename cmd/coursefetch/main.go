package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/John-Robertt/coursefetch/internal/app/run"
	"github.com/John-Robertt/coursefetch/internal/config"
	"github.com/John-Robertt/coursefetch/internal/domain"
	"github.com/John-Robertt/coursefetch/internal/infra/cache"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	cli, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		emitReport(reportForConfigError(cwdAbs, cli, err))
		return 1
	}

	if eff.NeedsLogin() && eff.Password == "" {
		pw, err := promptPassword(os.Stderr)
		if err != nil {
			emitReport(reportForConfigError(cwdAbs, cli, &config.Error{Code: config.ErrCodeInvalid, Path: config.EnvPassword, Err: err}))
			return 1
		}
		eff.Password = pw
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: eff.LogLevel}))

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rr, err := run.Execute(ctx, eff, run.Deps{Log: log}, obs)
	if err != nil {
		log.Debug("运行中止", "error_code", rr.ErrorCode, "err", err)
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.OK() {
		return 0
	}
	return 1
}

func parseRunArgs(args []string) (config.CLIArgs, error) {
	var cli config.CLIArgs
	var positional []string

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--pdfs":
			cli.PDFs = true
		case a == "--pptx":
			cli.PPTX = true
		case a == "--subs":
			cli.Subs = true
		case a == "--no-video":
			cli.NoVideo = true
		case a == "--dry-run":
			cli.DryRun = true
		case a == "--offline":
			cli.Offline = true
		case a == "--section-lecture-format":
			cli.Qualified, cli.QualifiedSet = true, true
		case strings.HasPrefix(a, "--section-lecture-format="):
			v, err := parseBoolFlag("--section-lecture-format", strings.TrimPrefix(a, "--section-lecture-format="))
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.Qualified, cli.QualifiedSet = v, true
		case a == "--continue-on-error":
			cli.ContinueOnError, cli.ContinueOnErrorSet = true, true
		case strings.HasPrefix(a, "--continue-on-error="):
			v, err := parseBoolFlag("--continue-on-error", strings.TrimPrefix(a, "--continue-on-error="))
			if err != nil {
				return config.CLIArgs{}, err
			}
			cli.ContinueOnError, cli.ContinueOnErrorSet = v, true
		case a == "--out" || a == "--name-policy":
			if i+1 >= len(args) {
				return config.CLIArgs{}, fmt.Errorf("%s 需要一个值", a)
			}
			i++
			if a == "--out" {
				cli.OutDir = args[i]
			} else {
				cli.NamePolicy = args[i]
			}
		case strings.HasPrefix(a, "--out="):
			cli.OutDir = strings.TrimPrefix(a, "--out=")
		case strings.HasPrefix(a, "--name-policy="):
			cli.NamePolicy = strings.TrimPrefix(a, "--name-policy=")
		case strings.HasPrefix(a, "-"):
			return config.CLIArgs{}, fmt.Errorf("未知参数 %q", a)
		default:
			positional = append(positional, a)
		}
	}

	switch len(positional) {
	case 3:
		cli.Password = positional[2]
		fallthrough
	case 2:
		cli.Email = positional[1]
		fallthrough
	case 1:
		cli.CourseID = positional[0]
	case 0:
		return config.CLIArgs{}, errors.New("缺少 course_id")
	default:
		return config.CLIArgs{}, fmt.Errorf("多余的参数：%q", positional[3:])
	}
	return cli, nil
}

func parseBoolFlag(name, v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%s 只能是 true 或 false，实际是 %q", name, v)
	}
}

func promptPassword(w io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("未提供密码且 stdin 不是终端（可用 %s 或 .env 提供）", config.EnvPassword)
	}
	fmt.Fprint(w, "Coursera 密码：")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  coursefetch run <course_id> [email] [password] [flags]

命令：
  run    登录并下载课程资源（默认只下载视频）

使用 "coursefetch run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  coursefetch run <course_id> [email] [password] [flags]

参数：
  course_id   课程 URL 中 www.coursera.org/ 之后的部分
  email       登录邮箱（也可用 COURSEFETCH_EMAIL、.env 或 coursefetch.yml 提供）
  password    登录密码（省略时交互式输入；也可用 COURSEFETCH_PASSWORD 或 .env 提供）

选项：
  --pdfs                      同时下载每个 lecture 的 pdf
  --pptx                      同时下载每个 lecture 的 pptx
  --subs                      同时下载每个 lecture 的字幕（srt）
  --no-video                  不下载视频（需至少启用一种其它资源）
  --section-lecture-format    lecture 文件名带 section 序号，例如 "2.1 - abc"
  --out <dir>                 输出根目录（默认当前目录）
  --name-policy <p>           文件名策略：auto|restrictive|permissive
  --dry-run                   只规划，不创建目录、不下载、不写缓存
  --offline                   使用缓存的目录页，不重新抓取
  --continue-on-error         单个文件失败时继续下载其余文件
  -h, --help                  显示帮助
`)
}

func emitReport(rr domain.RunReport) {
	summary := fmt.Sprintf("完成：downloaded=%d skipped=%d failed=%d planned=%d bytes=%s",
		rr.Summary.Downloaded, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Planned, humanize.Bytes(uint64(rr.Summary.Bytes)),
	)

	if isTTY(os.Stdout) {
		fmt.Fprintln(os.Stdout, summary)
		emitFailures(os.Stderr, rr)
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(os.Stderr, summary)
	emitFailures(os.Stderr, rr)
}

func emitFailures(w io.Writer, rr domain.RunReport) {
	if rr.ErrorCode != "" {
		fmt.Fprintf(w, "%s: %s\n", rr.ErrorCode, rr.ErrorMsg)
	}
	for _, it := range rr.Items {
		if it.Status != domain.StatusFailed {
			continue
		}
		key := it.Path
		if key == "" {
			key = "<unknown>"
		}
		fmt.Fprintf(w, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
	}
}

func reportForConfigError(cwdAbs string, cli config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		CourseID:   strings.TrimSpace(cli.CourseID),
		Root:       cwdAbs,
		DryRun:     cli.DryRun,
		StartedAt:  now,
		FinishedAt: now,
		ErrorCode:  code,
		ErrorMsg:   err.Error(),
	}
	rr.Finalize()
	return rr
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if !eff.DryRun {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.OutDir, cache.DirName, string(eff.CourseID), "report.json"))
	}
	fmt.Fprintf(w, "out: %s\n", eff.OutDir)
}
