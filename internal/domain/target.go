package domain

// DownloadTarget 是一次下载的目标描述。
//
// Path 由 section/lecture 名称经 fsname 规范化后确定性地得出；
// 对同一课程重复运行必须得到相同路径（跳过已存在文件依赖这一点）。
type DownloadTarget struct {
	Path string
	Link RemoteLink
	Kind ResourceKind

	Section string // section 展示名（已规范化）
	Lecture string // lecture 文件名主干（已规范化）

	// ExpectedSize 是规划时已知的大小。目录页不提供大小，所以规划结果恒为 -1（未知）；
	// 实际长度由 download.Source.Open 返回，经 download.Progress.Total 上报。
	ExpectedSize int64
}
