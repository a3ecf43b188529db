package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"
)

// DefaultProgressInterval 是两次进度回调之间的最小间隔。
const DefaultProgressInterval = 80 * time.Millisecond

// Status 是一次传输的结果分类。
type Status int

const (
	StatusCompleted Status = iota + 1
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrSizeMismatch 表示传输完成后的字节数与解析得到的大小不一致。
	ErrSizeMismatch = errors.New("transfer: size mismatch")
	// ErrOffsetMismatch 表示 partial 文件的实际长度与续传偏移不一致。
	ErrOffsetMismatch = errors.New("transfer: partial length does not match resume offset")
)

// SizeMismatchError 携带期望与实际的字节数，errors.Is(err, ErrSizeMismatch) 为真。
type SizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("transfer: size mismatch: expected %d bytes, got %d", e.Expected, e.Actual)
}

func (e *SizeMismatchError) Is(target error) bool {
	return target == ErrSizeMismatch
}

// Request 描述一次传输。ExpectedTotal 为 0 表示大小未知，不做长度校验。
type Request struct {
	URL           string
	SinkPath      string
	StartOffset   int64
	ExpectedTotal int64
}

// Progress 是一次进度回调的内容，Downloaded 包含续传偏移之前的字节。
type Progress struct {
	Downloaded int64
	Total      int64
	Offset     int64
	Elapsed    time.Duration
}

// ProgressFunc 在独立 goroutine 中被调用，阻塞它不会拖慢传输，只会丢弃中间进度。
type ProgressFunc func(Progress)

// Outcome 汇总传输结果。Written 是本次追加的字节数，Size 是 partial 文件的最终长度。
type Outcome struct {
	Status  Status
	Written int64
	Size    int64
	Err     error
}

// Engine 驱动单个文件写入 partial 文件，支持续传、进度与取消。
type Engine struct {
	transport Transport
	interval  time.Duration
	now       func() time.Time
}

// NewEngine 构造 Engine；interval < 0 时使用 DefaultProgressInterval，0 表示不节流。
func NewEngine(transport Transport, interval time.Duration) *Engine {
	if interval < 0 {
		interval = DefaultProgressInterval
	}
	return &Engine{transport: transport, interval: interval, now: time.Now}
}

// Transfer 以追加方式打开 SinkPath 并从 StartOffset 续传。ctx 取消时返回
// StatusCancelled 并保留 partial 文件；只有传输成功且长度与 ExpectedTotal 一致时才返回
// StatusCompleted。
func (e *Engine) Transfer(ctx context.Context, req Request, onProgress ProgressFunc) Outcome {
	sink, err := os.OpenFile(req.SinkPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("%w: %w", ErrSink, err)}
	}
	info, err := sink.Stat()
	if err != nil {
		sink.Close()
		return Outcome{Status: StatusFailed, Err: fmt.Errorf("%w: %w", ErrSink, err)}
	}
	if info.Size() != req.StartOffset {
		sink.Close()
		return Outcome{
			Status: StatusFailed,
			Size:   info.Size(),
			Err:    fmt.Errorf("%w: have %d bytes, offset %d", ErrOffsetMismatch, info.Size(), req.StartOffset),
		}
	}

	started := e.now()
	pump := newProgressPump(onProgress)
	var lastTick time.Time
	onBytes := func(curTotal, curNow int64) {
		now := e.now()
		if !lastTick.IsZero() && now.Sub(lastTick) < e.interval {
			return
		}
		lastTick = now
		p := progressFor(req, curTotal, curNow)
		p.Elapsed = now.Sub(started)
		pump.offer(p)
	}

	counter := &countingWriter{w: sink}
	fetchErr := e.transport.Fetch(ctx, req.URL, req.StartOffset, counter, onBytes)
	closeErr := sink.Close()

	out := Outcome{Written: counter.n, Size: req.StartOffset + counter.n}
	pump.close(Progress{
		Downloaded: out.Size,
		Total:      totalFor(req, 0, out.Size),
		Offset:     req.StartOffset,
		Elapsed:    e.now().Sub(started),
	})

	if fetchErr != nil && ctx.Err() != nil {
		out.Status = StatusCancelled
		out.Err = ctx.Err()
		return out
	}
	if closeErr != nil {
		closeErr = fmt.Errorf("%w: %w", ErrSink, closeErr)
	}
	if err := multierr.Append(fetchErr, closeErr); err != nil {
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	if req.ExpectedTotal > 0 && out.Size != req.ExpectedTotal {
		out.Status = StatusFailed
		out.Err = &SizeMismatchError{Expected: req.ExpectedTotal, Actual: out.Size}
		return out
	}
	out.Status = StatusCompleted
	return out
}

// progressFor 把传输层的 (curTotal, curNow) 换算为资产字节：
// downloaded = curNow - (curTotal - expectedTotal)。续传时 curTotal 只是剩余长度，
// 因此结果包含了偏移之前的字节。
func progressFor(req Request, curTotal, curNow int64) Progress {
	downloaded := req.StartOffset + curNow
	if req.ExpectedTotal > 0 && curTotal > 0 {
		downloaded = curNow - (curTotal - req.ExpectedTotal)
	}
	if downloaded < 0 {
		downloaded = 0
	}
	return Progress{
		Downloaded: downloaded,
		Total:      totalFor(req, curTotal, downloaded),
		Offset:     req.StartOffset,
	}
}

func totalFor(req Request, curTotal, downloaded int64) int64 {
	switch {
	case req.ExpectedTotal > 0:
		return req.ExpectedTotal
	case curTotal > 0:
		return req.StartOffset + curTotal
	default:
		return downloaded
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// progressPump 通过单槽 channel 把进度交给独立 goroutine，回调慢时只保留最新一次。
type progressPump struct {
	fn   ProgressFunc
	ch   chan Progress
	done chan struct{}
}

func newProgressPump(fn ProgressFunc) *progressPump {
	if fn == nil {
		return nil
	}
	p := &progressPump{fn: fn, ch: make(chan Progress, 1), done: make(chan struct{})}
	go func() {
		defer close(p.done)
		for progress := range p.ch {
			p.fn(progress)
		}
	}()
	return p
}

func (p *progressPump) offer(progress Progress) {
	if p == nil {
		return
	}
	select {
	case p.ch <- progress:
		return
	default:
	}
	select {
	case <-p.ch:
	default:
	}
	select {
	case p.ch <- progress:
	default:
	}
}

// close 等待积压的进度处理完毕，再同步投递最终进度。
func (p *progressPump) close(final Progress) {
	if p == nil {
		return
	}
	close(p.ch)
	<-p.done
	p.fn(final)
}
