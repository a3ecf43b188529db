package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/hubcache/internal/transfer"
)

func TestRenderWideTerminal(t *testing.T) {
	line := Render(transfer.Progress{
		Downloaded: 50 * 1024 * 1024,
		Total:      100 * 1024 * 1024,
		Elapsed:    10 * time.Second,
	}, 100)

	require.True(t, strings.HasPrefix(line, "["))
	require.Contains(t, line, "50.00%")
	require.Contains(t, line, "50.00 MB / 100.00 MB")
	require.Contains(t, line, "5.00 MB/s")
	require.Contains(t, line, "ETA: 10s")
	require.Equal(t, 35+2, strings.Index(line, "]")+1)
}

func TestRenderNarrowTerminalDropsBar(t *testing.T) {
	line := Render(transfer.Progress{Downloaded: 10, Total: 40}, 40)
	require.False(t, strings.HasPrefix(line, "["))
	require.NotContains(t, line, "/s")
	require.Contains(t, line, "25.00%")
	require.Contains(t, line, "ETA: --")
}

func TestRenderExcludesResumedBytesFromSpeed(t *testing.T) {
	line := Render(transfer.Progress{
		Downloaded: 3 * 1024,
		Total:      4 * 1024,
		Offset:     2 * 1024,
		Elapsed:    time.Second,
	}, 80)
	require.Contains(t, line, "1.00 KB/s")
	require.Contains(t, line, "ETA: 1s")
}

func TestBarTerminalRedrawsLine(t *testing.T) {
	var out bytes.Buffer
	yes := true
	bar := New(Options{Output: &out, Terminal: &yes, Width: 80, Label: "model.bin"})

	bar.Update(transfer.Progress{Downloaded: 1, Total: 2})
	bar.Update(transfer.Progress{Downloaded: 2, Total: 2})
	bar.Finish()

	text := out.String()
	require.Equal(t, 2, strings.Count(text, "\r"))
	require.Contains(t, text, "model.bin [")
	require.True(t, strings.HasSuffix(text, "\n"))
}

func TestBarNonTerminalLogs(t *testing.T) {
	var out, logs bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&logs)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})
	no := false
	bar := New(Options{Output: &out, Terminal: &no, Logger: logger, Label: "a.txt"})

	bar.Update(transfer.Progress{Downloaded: 5, Total: 10})
	bar.Finish()

	require.Empty(t, out.String())
	require.Contains(t, logs.String(), `"msg":"transfer_progress"`)
	require.Contains(t, logs.String(), `"downloaded":5`)
}

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "512 B", formatBytes(512))
	require.Equal(t, "1.50 KB", formatBytes(1536))
	require.Equal(t, "2.00 GB", formatBytes(2<<30))
}
