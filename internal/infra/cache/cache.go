package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/coursefetch/internal/domain"
	"github.com/John-Robertt/coursefetch/internal/infra/fsx"
)

// DirName 是输出根目录下的内部状态目录名。
const DirName = ".coursefetch"

// Store 提供 <root>/.coursefetch/<course id>/ 下的文件缓存读写。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - 正常运行：允许写（ReadOnly=false）
type Store struct {
	FS       afero.Fs
	Root     string // 输出根目录
	CourseID string
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(fs afero.Fs, root, courseID string, readOnly bool) (Store, error) {
	id, err := cleanCourseID(courseID)
	if err != nil {
		return Store{}, err
	}
	return Store{
		FS:       fs,
		Root:     filepath.Clean(strings.TrimSpace(root)),
		CourseID: id,
		ReadOnly: readOnly,
	}, nil
}

// Dir 返回该课程的缓存目录。
func (s Store) Dir() string {
	return filepath.Join(s.Root, DirName, s.CourseID)
}

func (s Store) IndexHTMLPath() string { return filepath.Join(s.Dir(), "index.html") }
func (s Store) OutlinePath() string   { return filepath.Join(s.Dir(), "outline.yaml") }
func (s Store) ReportPath() string    { return filepath.Join(s.Dir(), "report.json") }

// ReadIndexHTML 读取缓存的 lecture/index 页面；不存在时 ok=false 且不报错。
func (s Store) ReadIndexHTML() ([]byte, bool, error) {
	b, err := afero.ReadFile(s.FS, s.IndexHTMLPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) WriteIndexHTML(html []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	return fsx.WriteFileAtomicReplace(s.FS, s.Dir(), "index.html", html)
}

// Outline 是课程结构快照（排序、映射之后），便于排查页面布局漂移。
type Outline struct {
	CourseID string           `yaml:"course_id"`
	Title    string           `yaml:"title"`
	Sections []OutlineSection `yaml:"sections"`
}

type OutlineSection struct {
	Name      string           `yaml:"name"`
	Week      int              `yaml:"week,omitempty"`
	PageOrder int              `yaml:"page_order"`
	Lectures  []OutlineLecture `yaml:"lectures"`
}

type OutlineLecture struct {
	Name      string            `yaml:"name"`
	Resources map[string]string `yaml:"resources,omitempty"`
}

// NewOutline 从课程树构造快照。
func NewOutline(courseID string, c domain.Course) Outline {
	o := Outline{CourseID: courseID, Title: c.Title, Sections: make([]OutlineSection, 0, len(c.Sections))}
	for _, s := range c.Sections {
		name := s.DisplayName
		if name == "" {
			name = s.Name
		}
		sec := OutlineSection{Name: name, Week: s.Week, PageOrder: s.OriginalIndex, Lectures: make([]OutlineLecture, 0, len(s.Lectures))}
		for _, l := range s.Lectures {
			ol := OutlineLecture{Name: l.RawName}
			if len(l.Resources) > 0 {
				ol.Resources = make(map[string]string, len(l.Resources))
				for k, v := range l.Resources {
					ol.Resources[k.String()] = string(v)
				}
			}
			sec.Lectures = append(sec.Lectures, ol)
		}
		o.Sections = append(o.Sections, sec)
	}
	return o
}

func (s Store) WriteOutline(o Outline) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	b, err := yaml.Marshal(o)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(s.FS, s.Dir(), "outline.yaml", b)
}

// ReadOutline 读取课程结构快照；不存在时 ok=false 且不报错。
func (s Store) ReadOutline() (Outline, bool, error) {
	b, err := afero.ReadFile(s.FS, s.OutlinePath())
	if err != nil {
		if os.IsNotExist(err) {
			return Outline{}, false, nil
		}
		return Outline{}, false, err
	}
	var o Outline
	if err := yaml.Unmarshal(b, &o); err != nil {
		return Outline{}, true, err
	}
	return o, true, nil
}

// DiffOutline 比较两份快照的结构（section 名称与顺序、每节的 lecture 名称），
// 返回第一处差异的描述；结构一致时返回 ""。资源链接不参与比较（受启用种类影响）。
func DiffOutline(prev, cur Outline) string {
	if prev.Title != cur.Title {
		return fmt.Sprintf("课程标题 %q → %q", prev.Title, cur.Title)
	}
	if len(prev.Sections) != len(cur.Sections) {
		return fmt.Sprintf("section 数量 %d → %d", len(prev.Sections), len(cur.Sections))
	}
	for i := range prev.Sections {
		a, b := prev.Sections[i], cur.Sections[i]
		if a.Name != b.Name {
			return fmt.Sprintf("第 %d 个 section %q → %q", i+1, a.Name, b.Name)
		}
		if len(a.Lectures) != len(b.Lectures) {
			return fmt.Sprintf("section %q 的 lecture 数量 %d → %d", a.Name, len(a.Lectures), len(b.Lectures))
		}
		for j := range a.Lectures {
			if a.Lectures[j].Name != b.Lectures[j].Name {
				return fmt.Sprintf("section %q 第 %d 个 lecture %q → %q", a.Name, j+1, a.Lectures[j].Name, b.Lectures[j].Name)
			}
		}
	}
	return ""
}

func (s Store) WriteReport(rr domain.RunReport) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(s.FS, s.Dir(), "report.json", b)
}

func cleanCourseID(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("course id 不能为空")
	}
	// 避免路径穿越：course id 会成为缓存目录名。
	cid, ok := domain.ParseCourseID(id)
	if !ok {
		return "", fmt.Errorf("非法 course id：%q", id)
	}
	return string(cid), nil
}
