package summary

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const sampleLog = `timestamp,cpu_percent,mem_used_mb,disk_write_kbps
1750000000,10.0,1000,500.0
1750000001,20.0,1200,700.0
1750000002,30.0,1100,600.0
`

func TestSummarizeAggregatesStats(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "video0_mjpeg_copy_20250601_120000.log", sampleLog)
	// matching recording, 2 MiB
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "video0_mjpeg_copy_20250601_120000.avi"),
		bytes.Repeat([]byte{0xff}, 2*1024*1024), 0o644))

	entries, err := Summarize(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "video0_mjpeg_copy_20250601_120000", e.Test)
	assert.InDelta(t, 20.0, e.AvgCPU, 0.001)
	assert.InDelta(t, 1200.0, e.MaxMem, 0.001)
	assert.InDelta(t, 600.0, e.AvgDisk, 0.001)
	assert.InDelta(t, 2.0, e.SizeMB, 0.001)
	assert.Equal(t, 3, e.Samples)
}

func TestSummarizeMissingRecordingIsZeroSize(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "video0_yuyv_libx264_20250601_120000.log", sampleLog)

	entries, err := Summarize(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].SizeMB)
}

func TestSummarizeSortsByAvgCPU(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "heavy.log", "timestamp,cpu_percent,mem_used_mb,disk_write_kbps\n1,90.0,100,1.0\n")
	writeLog(t, dir, "light.log", "timestamp,cpu_percent,mem_used_mb,disk_write_kbps\n1,5.0,100,1.0\n")
	writeLog(t, dir, "medium.log", "timestamp,cpu_percent,mem_used_mb,disk_write_kbps\n1,40.0,100,1.0\n")

	entries, err := Summarize(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "light", entries[0].Test)
	assert.Equal(t, "medium", entries[1].Test)
	assert.Equal(t, "heavy", entries[2].Test)
}

func TestSummarizeIgnoresErrorLogs(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "video0_mjpeg_copy_20250601_120000.log", sampleLog)
	writeLog(t, dir, "video0_nv12_copy_20250601_120100.mp4.error.log", "ffmpeg exploded\n")

	entries, err := Summarize(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSummarizeEmptyDir(t *testing.T) {
	_, err := Summarize(t.TempDir())
	assert.True(t, errors.Is(err, ErrNoLogs), "want ErrNoLogs, got %v", err)
}

func TestSummarizeHeaderOnlyLog(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "stub.log", "timestamp,cpu_percent,mem_used_mb,disk_write_kbps\n")

	entries, err := Summarize(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].AvgCPU)
	assert.Zero(t, entries[0].Samples)
}

func TestSummarizeColumnOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "reordered.log",
		"mem_used_mb,disk_write_kbps,timestamp,cpu_percent\n1500,300.0,1750000000,42.0\n")

	entries, err := Summarize(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.InDelta(t, 42.0, entries[0].AvgCPU, 0.001)
	assert.InDelta(t, 1500.0, entries[0].MaxMem, 0.001)
	assert.InDelta(t, 300.0, entries[0].AvgDisk, 0.001)
}

func TestSummarizeSkipsMalformedLog(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "good.log", sampleLog)
	writeLog(t, dir, "bad.log", "not,a,sampler\nlog at all\n")

	entries, err := Summarize(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].Test)
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	err := RenderText(&buf, []Entry{
		{Test: "video0_mjpeg_copy_20250601_120000", AvgCPU: 20.0, MaxMem: 1200, AvgDisk: 600.0, SizeMB: 2.0},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "TEST")
	assert.Contains(t, out, "video0_mjpeg_copy_20250601_120000")
	assert.Contains(t, out, "20.0")
	assert.Contains(t, out, "1200")
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	err := RenderHTML(&buf, []Entry{
		{Test: "video0_mjpeg_copy_20250601_120000", AvgCPU: 20.0, MaxMem: 1200, AvgDisk: 600.0, SizeMB: 2.0},
		{Test: "video0_yuyv_libx264_20250601_120100", AvgCPU: 75.0, MaxMem: 1800, AvgDisk: 900.0},
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, "video0_mjpeg_copy_20250601_120000")
	// missing recording gets the warning class
	assert.Contains(t, out, "table-warning")
}

func TestWatchRendersOnNewLog(t *testing.T) {
	dir := t.TempDir()
	rendered := make(chan []Entry, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, func(entries []Entry) error {
			rendered <- entries
			return nil
		})
	}()

	// give the watcher a moment to register, then drop a log in
	time.Sleep(100 * time.Millisecond)
	writeLog(t, dir, "video0_mjpeg_copy_20250601_120000.log", sampleLog)

	select {
	case entries := <-rendered:
		require.NotEmpty(t, entries)
		assert.True(t, strings.HasPrefix(entries[0].Test, "video0_mjpeg_copy"))
	case <-ctx.Done():
		t.Fatal("watch never rendered")
	}

	cancel()
	require.NoError(t, <-done)
}
