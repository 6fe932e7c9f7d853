package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultBaseURL 是课程站点根地址。
const DefaultBaseURL = "https://www.coursera.org"

// authPath 是登录表单入口；登录一次，后续所有请求共享 cookie。
const authPath = "/crypto/auth/auth_redirector?type=login&subtype=normal&email=&minimal=true"

// Client 封装一次运行的登录态（cookie 存在 HTTP.Jar 中）。
//
// 约束：
// - 不做缓存/重试/限速（重试由 httpx.Transport 统一实现）
// - HTTP 必须带 cookie jar，否则登录态无法保持
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Log     *slog.Logger
}

func New(c *http.Client, baseURL string, log *slog.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{HTTP: c, BaseURL: baseURL, Log: log}
}

// CourseURL 返回课程的 lecture/index 页面地址。
func (c *Client) CourseURL(courseID string) string {
	return c.BaseURL + "/" + url.PathEscape(courseID) + "/lecture/index"
}

// Login 打开登录页，填写第一个表单的 email/password 并提交。
//
// 判定规则：
// - 登录页没有 <form>：AuthError（站点结构变化）
// - 提交后非 2xx，或页面 <title> 含 "Login Failed"：AuthError
func (c *Client) Login(ctx context.Context, email, password string) error {
	if c.HTTP == nil {
		return errors.New("http client 不能为空")
	}
	if c.HTTP.Jar == nil {
		return errors.New("http client 缺少 cookie jar，无法保持登录态")
	}

	loginURL := c.BaseURL + authPath
	c.Log.Debug("打开登录页", "url", loginURL)
	page, final, err := c.get(ctx, loginURL)
	if err != nil {
		return &AuthError{Email: email, Reason: "无法打开登录页", Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return &AuthError{Email: email, Reason: "登录页解析失败", Err: err}
	}
	form := doc.Find("form").First()
	if form.Length() == 0 {
		return &AuthError{Email: email, Reason: "登录页未找到表单"}
	}

	vals := formValues(form)
	vals.Set("email", email)
	vals.Set("password", password)

	action := resolveURL(final, strings.TrimSpace(form.AttrOr("action", "")))
	method := strings.ToUpper(strings.TrimSpace(form.AttrOr("method", http.MethodGet)))

	var req *http.Request
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(vals.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		u, perr := url.Parse(action)
		if perr != nil {
			return &AuthError{Email: email, Reason: "表单 action 无效", Err: perr}
		}
		u.RawQuery = vals.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	}
	if err != nil {
		return &AuthError{Email: email, Reason: "构造登录请求失败", Err: err}
	}

	c.Log.Debug("提交登录表单", "method", req.Method, "action", action)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &AuthError{Email: email, Reason: "提交登录表单失败", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &AuthError{Email: email, Reason: "读取登录响应失败", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &AuthError{Email: email, Reason: "登录请求被拒绝", Err: &HTTPStatusError{URL: action, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}}
	}
	if strings.Contains(pageTitle(body), "Login Failed") {
		return &AuthError{Email: email, Reason: "请检查邮箱与密码"}
	}
	return nil
}

// FetchPage 抓取页面 HTML；非 2xx 返回 HTTPStatusError。
func (c *Client) FetchPage(ctx context.Context, pageURL string) ([]byte, error) {
	b, _, err := c.get(ctx, pageURL)
	return b, err
}

// Open 打开资源流（实现 download.Source）。
//
// size 取自 Content-Length；未声明时为 -1。
func (c *Client) Open(ctx context.Context, link string) (io.ReadCloser, int64, error) {
	if c.HTTP == nil {
		return nil, -1, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, -1, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, -1, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, -1, &HTTPStatusError{URL: link, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	return resp.Body, resp.ContentLength, nil
}

// get 返回 body 与最终落地的 URL（跟随重定向后）。
func (c *Client) get(ctx context.Context, u string) ([]byte, string, error) {
	if c.HTTP == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: strings.TrimSpace(resp.Header.Get("Location"))}
	}
	final := u
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return b, final, nil
}

// formValues 收集表单里带 name 的 input 的当前值（hidden token 等需要原样带回）。
func formValues(form *goquery.Selection) url.Values {
	vals := url.Values{}
	form.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name := strings.TrimSpace(in.AttrOr("name", ""))
		if name == "" {
			return
		}
		switch strings.ToLower(in.AttrOr("type", "text")) {
		case "submit", "button", "image", "file", "reset":
			return
		case "checkbox", "radio":
			if _, ok := in.Attr("checked"); !ok {
				return
			}
			vals.Add(name, in.AttrOr("value", "on"))
			return
		}
		vals.Add(name, in.AttrOr("value", ""))
	})
	return vals
}

func pageTitle(html []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

func resolveURL(base, href string) string {
	if href == "" {
		return base
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return u.String()
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	return b.ResolveReference(u).String()
}
