package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusDownloaded = "downloaded"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
	StatusPlanned    = "planned"
)

const (
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeAuthFailed      = "auth_failed"
	ErrCodePageFetchFailed = "page_fetch_failed"
	ErrCodeStructure       = "structure_error"
	ErrCodeDownloadFailed  = "download_failed"
	ErrCodeTargetConflict  = "target_conflict"
	ErrCodeIOFailed        = "io_failed"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID       string `json:"run_id"`
	CourseID    string `json:"course_id"`
	CourseTitle string `json:"course_title"`
	Root        string `json:"root"`
	DryRun      bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// ErrorCode/ErrorMsg 只在整次运行被致命错误中止时非空。
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Downloaded int   `json:"downloaded"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Planned    int   `json:"planned"`
	Bytes      int64 `json:"bytes"`
}

type ItemResult struct {
	Section string `json:"section"`
	Lecture string `json:"lecture"`
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	URL     string `json:"url"`

	Status    string `json:"status"`
	Bytes     int64  `json:"bytes"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 path 字典序；path=="" 的条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Items == nil {
		r.Items = []ItemResult{}
	}

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Path
		b := r.Items[j].Path
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusDownloaded:
			s.Downloaded++
			s.Bytes += it.Bytes
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusPlanned:
			s.Planned++
		}
	}
	r.Summary = s
}

// OK 表示运行没有致命错误且没有失败条目。
func (r RunReport) OK() bool {
	return r.ErrorCode == "" && r.Summary.Failed == 0
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
