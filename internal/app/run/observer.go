package run

import (
	"time"

	"github.com/John-Robertt/coursefetch/internal/config"
	"github.com/John-Robertt/coursefetch/internal/domain"
	"github.com/John-Robertt/coursefetch/internal/download"
)

// Observer 用于把“运行进度/阶段/文件结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 所有事件都在调用 Execute 的 goroutine 上按顺序发出（下载是串行的）。
type Observer interface {
	// OnStart 在 Execute 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用（auth/index/extract/plan/download）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnFileStart 在某个目标开始处理时调用（idx 从 1 开始）。
	OnFileStart(idx, total int, t domain.DownloadTarget)
	// OnFileProgress 在每写完一个块后调用；CLI 应原地重写进度行。
	OnFileProgress(idx, total int, t domain.DownloadTarget, p download.Progress)
	// OnFileDone 在某个目标处理结束时调用（下载/跳过/失败）。
	OnFileDone(idx, total int, res domain.ItemResult, dur time.Duration)
}
