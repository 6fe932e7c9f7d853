package session

import (
	"errors"
	"fmt"
	"strings"
)

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// AuthError 表示登录失败（账号/密码错误，或登录页结构不符合预期）。
type AuthError struct {
	Email  string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	msg := "登录失败"
	if strings.TrimSpace(e.Reason) != "" {
		msg += "：" + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf("（%v）", e.Err)
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

func IsAuthError(err error) bool {
	var e *AuthError
	return errors.As(err, &e)
}

// PageFetchError 表示课程目录页打不开（通常是 course id 写错或未注册该课程）。
type PageFetchError struct {
	URL      string
	CourseID string
	Err      error
}

func (e *PageFetchError) Error() string {
	return fmt.Sprintf("无法打开课程目录页 %s：%v。请确认 course id（%s）是否正确", e.URL, e.Err, e.CourseID)
}

func (e *PageFetchError) Unwrap() error { return e.Err }

func IsPageFetchError(err error) bool {
	var e *PageFetchError
	return errors.As(err, &e)
}
