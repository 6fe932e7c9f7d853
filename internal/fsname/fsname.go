package fsname

import (
	"fmt"
	"strings"
)

const (
	// MaxRestrictiveLen 是受限策略下的最大长度（按字符计）。
	MaxRestrictiveLen = 50
	// MaxPermissiveLen 是宽松策略下的最大长度（按字符计）。
	MaxPermissiveLen = 140
)

// Policy 决定如何把任意标签变为安全的路径段。
//
// 约束：策略必须由调用方显式传入（来自配置），Sanitize 不读取任何进程级状态。
type Policy struct {
	restrictive bool
	sep         rune
}

// Restrictive 返回受限策略：只保留 ASCII 字母、数字、空格与 -_.()，最长 50。
func Restrictive() Policy { return Policy{restrictive: true} }

// Permissive 返回宽松策略：只替换路径分隔符 sep，最长 140。
func Permissive(sep rune) Policy { return Policy{sep: sep} }

// ForOS 按目标平台选择默认策略：windows 路径长度与字符集更受限。
func ForOS(goos string) Policy {
	if goos == "windows" {
		return Restrictive()
	}
	return Permissive('/')
}

// ParsePolicy 解析配置中的策略名；auto 使用 ForOS(goos)。
func ParsePolicy(name, goos string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return ForOS(goos), nil
	case "restrictive":
		return Restrictive(), nil
	case "permissive":
		if goos == "windows" {
			return Permissive('\\'), nil
		}
		return Permissive('/'), nil
	default:
		return Policy{}, fmt.Errorf("name_policy 只能是 auto|restrictive|permissive，实际是 %q", name)
	}
}

func (p Policy) IsRestrictive() bool { return p.restrictive }

// MaxLen 返回该策略的最大长度。
func (p Policy) MaxLen() int {
	if p.restrictive {
		return MaxRestrictiveLen
	}
	return MaxPermissiveLen
}

func (p Policy) String() string {
	if p.restrictive {
		return "restrictive"
	}
	return fmt.Sprintf("permissive(%q)", p.sep)
}

// Sanitize 把 label 变为安全的路径段：先替换，再截断（顺序不可颠倒）。
// 对任意输入（包括空串）都有定义，不返回错误。
func Sanitize(label string, p Policy) string {
	out := make([]rune, 0, len(label))
	for _, r := range label {
		if p.restrictive {
			if !allowedRestrictive(r) {
				r = '_'
			}
		} else if p.sep != 0 && r == p.sep {
			r = '_'
		}
		out = append(out, r)
	}
	if max := p.MaxLen(); len(out) > max {
		out = out[:max]
	}
	return string(out)
}

func allowedRestrictive(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-_.() ", r)
}
