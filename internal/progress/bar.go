// Package progress renders transfer progress either as a single redrawn
// terminal line or, when stderr is not a terminal, as debug log entries.
package progress

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/any-hub/hubcache/internal/transfer"
)

const defaultWidth = 80

// Options 配置进度展示。
type Options struct {
	// Output 为进度行的输出目标，默认 os.Stderr。
	Output io.Writer

	// Logger 在非终端模式下接收 transfer_progress 日志。
	Logger *logrus.Logger

	// Label 显示在进度行前，通常是文件名。
	Label string

	// Terminal 强制指定是否按终端模式渲染；nil 时自动检测。
	Terminal *bool

	// Width 固定终端宽度；0 时自动检测。
	Width int
}

// Bar 把 transfer.Progress 渲染为进度条，可直接作为 transfer.ProgressFunc 使用。
type Bar struct {
	out      io.Writer
	logger   *logrus.Logger
	label    string
	terminal bool
	width    int

	mu      sync.Mutex
	drawn   bool
	lastLen int
}

// New 根据 Options 构造 Bar。
func New(opts Options) *Bar {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	terminal := isTerminal(out)
	if opts.Terminal != nil {
		terminal = *opts.Terminal
	}
	width := opts.Width
	if width <= 0 {
		width = detectWidth(out)
	}
	return &Bar{
		out:      out,
		logger:   opts.Logger,
		label:    opts.Label,
		terminal: terminal,
		width:    width,
	}
}

// Update 渲染一次进度。
func (b *Bar) Update(p transfer.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.terminal {
		if b.logger != nil {
			b.logger.WithFields(logrus.Fields{
				"action":     "download",
				"file":       b.label,
				"downloaded": p.Downloaded,
				"total":      p.Total,
				"elapsed_ms": p.Elapsed.Milliseconds(),
			}).Debug("transfer_progress")
		}
		return
	}

	line := Render(p, b.width)
	if b.label != "" {
		line = b.label + " " + line
	}
	pad := ""
	if n := b.lastLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprint(b.out, "\r"+line+pad)
	b.lastLen = len(line)
	b.drawn = true
}

// Finish 结束进度行，终端模式下换行。
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.terminal && b.drawn {
		fmt.Fprintln(b.out)
	}
	b.drawn = false
	b.lastLen = 0
}

// Render 生成单行进度文本。宽度超过 50 列时带进度条，超过 65 列时带速度。
func Render(p transfer.Progress, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	var fraction float64
	if p.Total > 0 {
		fraction = float64(p.Downloaded) / float64(p.Total)
	}
	if fraction > 1 {
		fraction = 1
	}

	// 续传前的字节不计入速度
	session := p.Downloaded - p.Offset
	seconds := p.Elapsed.Seconds()
	var speed float64
	if seconds > 0 && session > 0 {
		speed = float64(session) / seconds
	}

	var sb strings.Builder
	showSpeed := width > 65
	if width > 50 {
		barWidth := width - 65
		if !showSpeed {
			barWidth += 10
		}
		if barWidth < 10 {
			barWidth = 10
		}
		filled := int(fraction * float64(barWidth))
		sb.WriteString("[")
		sb.WriteString(strings.Repeat("#", filled))
		sb.WriteString(strings.Repeat(" ", barWidth-filled))
		sb.WriteString("] ")
	}
	sb.WriteString(strconv.FormatFloat(fraction*100, 'f', 2, 64))
	sb.WriteString("%   ")
	sb.WriteString(formatBytes(p.Downloaded))
	sb.WriteString(" / ")
	sb.WriteString(formatBytes(p.Total))
	if showSpeed {
		sb.WriteString("  ")
		sb.WriteString(formatBytes(int64(speed)))
		sb.WriteString("/s")
	}
	sb.WriteString(" | ETA: ")
	if speed > 0 && p.Total > p.Downloaded {
		remaining := float64(p.Total-p.Downloaded) / speed
		sb.WriteString(formatDuration(time.Duration(remaining * float64(time.Second))))
	} else if p.Total > 0 && p.Downloaded >= p.Total {
		sb.WriteString("0s")
	} else {
		sb.WriteString("--")
	}
	return sb.String()
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func detectWidth(out io.Writer) int {
	if f, ok := out.(*os.File); ok && f != nil {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			if w, _, err := term.GetSize(fd); err == nil && w > 0 {
				return w
			}
		}
	}
	if cols := strings.TrimSpace(os.Getenv("COLUMNS")); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 0 {
			return n
		}
	}
	return defaultWidth
}

func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
