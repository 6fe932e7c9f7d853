package course

import (
	"errors"
	"fmt"
)

// StructureError 表示页面结构不符合预期（交替的标题/列表、标题或列表节点缺失等）。
//
// 结构无法安全推断时不做“尽力而为”的部分抽取，直接整体失败。
type StructureError struct {
	// Item 是出问题的 item_list 子节点下标；-1 表示与具体子节点无关。
	Item   int
	Reason string
}

func (e *StructureError) Error() string {
	if e.Item >= 0 {
		return fmt.Sprintf("页面结构不符合预期（item_list 第 %d 个子节点）：%s", e.Item, e.Reason)
	}
	return "页面结构不符合预期：" + e.Reason
}

// IsStructureError 判断 err 是否为 StructureError。
func IsStructureError(err error) bool {
	var e *StructureError
	return errors.As(err, &e)
}
