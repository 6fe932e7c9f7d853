package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/coursefetch/internal/domain"
	"github.com/John-Robertt/coursefetch/internal/fsname"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingCourse 表示没有提供 course id。
	ErrCodeMissingCourse = "config_missing_course_id"
	// ErrCodeMissingEmail 表示 CLI/环境变量/配置文件都没有提供登录邮箱。
	ErrCodeMissingEmail = "config_missing_email"
	// ErrCodeNoKinds 表示关闭了视频却没有启用任何其它资源。
	ErrCodeNoKinds = "config_no_kinds"
)

const (
	// FileName 是 cwd 下可选的配置文件名。
	FileName = "coursefetch.yml"
	// EnvFileName 是 cwd 下可选的凭据文件名。
	EnvFileName = ".env"

	EnvEmail    = "COURSEFETCH_EMAIL"
	EnvPassword = "COURSEFETCH_PASSWORD"

	DefaultBaseURL  = "https://www.coursera.org"
	DefaultLogLevel = "info"
)

// CLIArgs 是 CLI 解析结果，并保留“是否显式指定”的信息。
// 例如 --section-lecture-format=false 必须能覆盖配置文件里的 true。
type CLIArgs struct {
	CourseID string
	Email    string
	Password string

	// PDFs/PPTX/Subs 只做“追加启用”，NoVideo 只做“关闭视频”（与旧命令行保持一致）。
	PDFs    bool
	PPTX    bool
	Subs    bool
	NoVideo bool

	Qualified    bool
	QualifiedSet bool

	OutDir string

	DryRun  bool
	Offline bool

	ContinueOnError    bool
	ContinueOnErrorSet bool

	NamePolicy string
}

// FileConfig 对应 coursefetch.yml 的解析结构。
type FileConfig struct {
	Email                string       `yaml:"email"`
	Kinds                []string     `yaml:"kinds"`
	SectionLectureFormat *bool        `yaml:"section_lecture_format"`
	Out                  string       `yaml:"out"`
	NamePolicy           string       `yaml:"name_policy"`
	BaseURL              string       `yaml:"base_url"`
	Proxy                *ProxyConfig `yaml:"proxy"`
	ContinueOnError      *bool        `yaml:"continue_on_error"`
	LogLevel             string       `yaml:"log_level"`
}

type ProxyConfig struct {
	URL string `yaml:"url"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	CourseID domain.CourseID
	Email    string
	// Password 可以为空：由 CLI 负责交互式询问。
	Password string

	Kinds     domain.KindSet
	Qualified bool

	OutDir string
	Policy fsname.Policy

	BaseURL  string
	ProxyURL string

	DryRun          bool
	Offline         bool
	ContinueOnError bool

	LogLevel slog.Level
}

// NeedsLogin 表示本次运行是否需要访问站点。
// dry-run + offline 只读取本地缓存的目录页，不需要登录。
func (e EffectiveConfig) NeedsLogin() bool {
	return !(e.DryRun && e.Offline)
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeMissingCourse:
		return fmt.Sprintf("%s：缺少 course id（课程 URL 中 www.coursera.org/ 之后的部分）", e.Code)
	case ErrCodeMissingEmail:
		return fmt.Sprintf("%s：缺少登录邮箱（命令行参数、%s 或配置文件 email）", e.Code, EnvEmail)
	case ErrCodeNoKinds:
		return fmt.Sprintf("%s：关闭了视频下载，但没有启用任何其它资源（--pdfs/--pptx/--subs）", e.Code)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取 cwd 下的可选配置（coursefetch.yml、.env），然后与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：CLI > 环境变量（进程环境优先于 .env）> 配置文件 > 默认值。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	fc, _, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	envPath := filepath.Join(cwdAbs, EnvFileName)
	env, err := readEnv(envPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: envPath, Err: err}
	}

	return merge(cwdAbs, cli, env, fc, cfgPath)
}

func merge(cwdAbs string, cli CLIArgs, env map[string]string, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	if strings.TrimSpace(cli.CourseID) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingCourse}
	}
	courseID, ok := domain.ParseCourseID(cli.CourseID)
	if !ok {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: "course_id", Err: fmt.Errorf("非法 course id：%q", cli.CourseID)}
	}

	// kinds：配置文件给出基础集合（默认只有视频），CLI 在其上追加/关闭视频。
	kinds := domain.NewKindSet(domain.KindVideo)
	if len(fc.Kinds) > 0 {
		kinds = 0
		for _, s := range fc.Kinds {
			k, err := domain.ParseKind(s)
			if err != nil {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
			}
			kinds = kinds.Add(k)
		}
	}
	if cli.PDFs {
		kinds = kinds.Add(domain.KindPDF)
	}
	if cli.PPTX {
		kinds = kinds.Add(domain.KindSlides)
	}
	if cli.Subs {
		kinds = kinds.Add(domain.KindSubtitles)
	}
	if cli.NoVideo {
		kinds = kinds.Remove(domain.KindVideo)
	}
	if kinds.Empty() {
		return EffectiveConfig{}, &Error{Code: ErrCodeNoKinds}
	}

	qualified := false
	if cli.QualifiedSet {
		qualified = cli.Qualified
	} else if fc.SectionLectureFormat != nil {
		qualified = *fc.SectionLectureFormat
	}

	continueOnError := false
	if cli.ContinueOnErrorSet {
		continueOnError = cli.ContinueOnError
	} else if fc.ContinueOnError != nil {
		continueOnError = *fc.ContinueOnError
	}

	// out：CLI > config > cwd；相对路径以 cwd 为基准。
	outDir := cwdAbs
	if strings.TrimSpace(cli.OutDir) != "" {
		outDir = absCleanFrom(cwdAbs, cli.OutDir)
	} else if strings.TrimSpace(fc.Out) != "" {
		outDir = absCleanFrom(cwdAbs, fc.Out)
	}

	policyName := firstNonEmpty(cli.NamePolicy, fc.NamePolicy, "auto")
	policy, err := fsname.ParsePolicy(policyName, runtime.GOOS)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	baseURL := strings.TrimRight(firstNonEmpty(fc.BaseURL, DefaultBaseURL), "/")
	if err := validateHTTPURL(baseURL); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("base_url 无效：%w", err)}
	}

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		if _, err := url.Parse(proxyURL); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
		}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(firstNonEmpty(fc.LogLevel, DefaultLogLevel))); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("log_level 无效：%w", err)}
	}

	eff := EffectiveConfig{
		CourseID:        courseID,
		Email:           firstNonEmpty(cli.Email, env[EnvEmail], fc.Email),
		Password:        password(cli.Password, env[EnvPassword]),
		Kinds:           kinds,
		Qualified:       qualified,
		OutDir:          outDir,
		Policy:          policy,
		BaseURL:         baseURL,
		ProxyURL:        proxyURL,
		DryRun:          cli.DryRun,
		Offline:         cli.Offline,
		ContinueOnError: continueOnError,
		LogLevel:        level,
	}
	if eff.NeedsLogin() && eff.Email == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingEmail}
	}
	return eff, nil
}

// password 不做 trim：首尾空白可能是密码的一部分。
func password(cli, env string) string {
	if cli != "" {
		return cli
	}
	return env
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("必须是 http/https：%q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", raw)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// readEnv 合并 .env（可选）与进程环境：进程环境优先。
// 只读取凭据相关的两个键，不修改进程环境。
func readEnv(path string) (map[string]string, error) {
	out := map[string]string{}
	fileEnv, err := godotenv.Read(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	for _, k := range []string{EnvEmail, EnvPassword} {
		if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
			out[k] = v
			continue
		}
		if v, ok := fileEnv[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}
