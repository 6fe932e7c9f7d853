package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/John-Robertt/coursefetch/internal/infra/fsx"
)

// DefaultChunkSize 是每次读取/写入的块大小。
const DefaultChunkSize = 8 * 1024

// partSuffix 是下载中临时文件的后缀；完成后 rename 到目标路径。
const partSuffix = ".part"

// Source 打开远端资源的字节流。
//
// 约束：
// - size < 0 表示长度未知
// - 调用方负责 Close
type Source interface {
	Open(ctx context.Context, link string) (body io.ReadCloser, size int64, err error)
}

// Status 表示一次下载的结果类型。
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusSkipped    Status = "skipped"
)

type Result struct {
	Status Status
	Bytes  int64
}

// Progress 在每写完一个块后上报。Written 单调不减；Total < 0 表示未知。
type Progress struct {
	Written int64
	Total   int64
}

// Driver 把单个远端资源流式写入本地文件。
//
// 约束：
// - 目标已是普通文件：直接跳过，不触发任何网络请求
// - 写入先落到 dst+".part"，完成后 rename；失败时清理 .part，dst 不会出现半截文件
// - 不做重试（由上层决定是否继续）
type Driver struct {
	FS         afero.Fs
	Source     Source
	ChunkSize  int
	OnProgress func(Progress)
}

// Error 是下载阶段的可追溯错误。
type Error struct {
	Op   string // "open" / "read" / "write" / "rename"
	URL  string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("下载失败 op=%s url=%s path=%s: %v", e.Op, e.URL, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Download 把 link 下载到 dst。
func (d Driver) Download(ctx context.Context, link, dst string) (Result, error) {
	if d.FS == nil {
		return Result{}, errors.New("download: FS 不能为空")
	}
	if d.Source == nil {
		return Result{}, errors.New("download: Source 不能为空")
	}

	exists, err := fsx.IsRegularFile(d.FS, dst)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{Status: StatusSkipped}, nil
	}

	body, size, err := d.Source.Open(ctx, link)
	if err != nil {
		return Result{}, &Error{Op: "open", URL: link, Path: dst, Err: err}
	}
	defer body.Close()

	part := dst + partSuffix
	f, err := d.FS.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return Result{}, &Error{Op: "write", URL: link, Path: dst, Err: err}
	}

	written, op, err := d.copy(ctx, f, body, size)
	if cerr := f.Close(); err == nil && cerr != nil {
		op, err = "write", cerr
	}
	if err != nil {
		_ = d.FS.Remove(part)
		return Result{}, &Error{Op: op, URL: link, Path: dst, Err: err}
	}

	if err := d.FS.Rename(part, dst); err != nil {
		_ = d.FS.Remove(part)
		return Result{}, &Error{Op: "rename", URL: link, Path: dst, Err: err}
	}
	return Result{Status: StatusDownloaded, Bytes: written}, nil
}

func (d Driver) copy(ctx context.Context, w io.Writer, r io.Reader, total int64) (int64, string, error) {
	n := d.ChunkSize
	if n <= 0 {
		n = DefaultChunkSize
	}
	buf := make([]byte, n)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, "read", err
		}
		nr, rerr := r.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr == nil && nw != nr {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, "write", werr
			}
			if d.OnProgress != nil {
				d.OnProgress(Progress{Written: written, Total: total})
			}
		}
		if rerr == io.EOF {
			return written, "", nil
		}
		if rerr != nil {
			return written, "read", rerr
		}
	}
}

// FormatProgress 生成进度行文本（十进制 MB，截断到 KB；已写入量右对齐 8 列）。
//
//	"   1.234/10.000 Mb [12.34%]"（长度已知）
//	"   1.234 Mb"（长度未知）
func FormatProgress(written, total int64) string {
	cur := fmt.Sprintf("%8s", mbString(written))
	if total <= 0 {
		return cur + " Mb"
	}
	return fmt.Sprintf("%s/%s Mb [%.2f%%]", cur, mbString(total), float64(written)*100/float64(total))
}

func mbString(n int64) string {
	return fmt.Sprintf("%d.%03d", n/1000000, n/1000%1000)
}
