package domain

// RemoteLink 是可抓取的远程资源引用（URL），不携带任何本地状态。
type RemoteLink string

// Course 是一次抽取得到的课程树。
type Course struct {
	Title    string
	Sections []Section
}

// Section 是课程中的一组 lecture。
//
// 不变量：
// - OriginalIndex 保留页面顺序，只作为排序的稳定 tie-break，绝不作为主排序键
// - Index/DisplayName 在排序之后才赋值（1..N）
type Section struct {
	Name          string // 去掉 "(week N)" 后缀的名称
	Week          int    // 0 表示无
	OriginalIndex int

	Index       int
	DisplayName string

	Lectures []Lecture
	// Links 是该 section 列表元素下按页面顺序抓到的资源链接（扁平列表）。
	Links []RemoteLink
}

// Lecture 是 section 内的一个条目。Resources 由 course.MapResources 在第二遍填充。
type Lecture struct {
	RawName   string
	Position  int // section 内从 1 开始
	Resources map[ResourceKind]RemoteLink
}

// Resource 返回指定种类的链接（不存在时 ok=false）。
func (l Lecture) Resource(k ResourceKind) (RemoteLink, bool) {
	if l.Resources == nil {
		return "", false
	}
	v, ok := l.Resources[k]
	return v, ok
}
