package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

const (
	DefaultAudioFormat = "mp3"
	// OutputTemplate is joined onto the caller's folder.
	OutputTemplate = "%(title)s.%(ext)s"
	// FFmpegEnvVar carries the transcoder path to yt-dlp as a fallback to PATH.
	FFmpegEnvVar = "FFMPEG_BINARY"
)

type DownloadOptions struct {
	URL         string
	OutputDir   string
	AudioFormat string
}

// DownloadArgs builds the yt-dlp argv for one job. Output is line-buffered
// plain text so the progress parser can follow it.
func DownloadArgs(opts DownloadOptions, tools Tools) ([]string, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("video URL is required")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	format := strings.ToLower(strings.TrimSpace(opts.AudioFormat))
	if format == "" {
		format = DefaultAudioFormat
	}

	args := []string{
		"--extract-audio",
		"--audio-format", format,
		"--audio-quality", "0",
		"--embed-thumbnail",
		"--add-metadata",
		"--no-warnings",
		"--no-playlist",
		"--newline",
		"--progress",
		"-o", filepath.Join(opts.OutputDir, OutputTemplate),
	}
	if tools.HasFFmpeg() {
		args = append(args, "--ffmpeg-location", filepath.Dir(tools.FFmpeg))
	}
	args = append(args, opts.URL)
	return args, nil
}

// Command prepares, but does not start, a yt-dlp process for one job.
func Command(ctx context.Context, tools Tools, opts DownloadOptions) (*exec.Cmd, error) {
	if strings.TrimSpace(tools.YTDLP) == "" {
		return nil, fmt.Errorf("yt-dlp path is required")
	}
	args, err := DownloadArgs(opts, tools)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, tools.YTDLP, args...)
	cmd.Env = Environ(os.Environ(), tools)
	return cmd, nil
}

// Environ returns base with the ffmpeg directory prepended to PATH and
// FFMPEG_BINARY set. base is returned unchanged when ffmpeg is unavailable.
func Environ(base []string, tools Tools) []string {
	if !tools.HasFFmpeg() {
		return base
	}
	dir := filepath.Dir(tools.FFmpeg)
	env := make([]string, 0, len(base)+2)
	currentPath := ""
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch {
		case strings.EqualFold(key, "PATH"):
			currentPath = value
		case key == FFmpegEnvVar:
			// replaced below
		default:
			env = append(env, kv)
		}
	}
	newPath := dir
	if currentPath != "" {
		newPath = dir + string(os.PathListSeparator) + currentPath
	}
	env = append(env, "PATH="+newPath, FFmpegEnvVar+"="+tools.FFmpeg)
	return env
}

// SplitLines is a bufio.SplitFunc that treats both '\n' and '\r' as line
// terminators, since yt-dlp redraws progress with carriage returns.
func SplitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// TailBuffer keeps the last maxKeep bytes of diagnostic output. A line cut
// by the limit is dropped unless it is the only one left.
type TailBuffer struct {
	mu      sync.Mutex
	buf     []byte
	maxKeep int
}

func NewTailBuffer(maxKeep int) *TailBuffer {
	if maxKeep <= 0 {
		maxKeep = 8192
	}
	return &TailBuffer{maxKeep: maxKeep}
}

func (t *TailBuffer) AppendLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if len(t.buf) <= t.maxKeep {
		return
	}
	cut := len(t.buf) - t.maxKeep
	if cut > 0 && t.buf[cut-1] != '\n' {
		if i := bytes.IndexByte(t.buf[cut:], '\n'); i >= 0 && cut+i < len(t.buf)-1 {
			cut += i + 1
		}
	}
	t.buf = append(t.buf[:0], t.buf[cut:]...)
}

func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(strings.ToValidUTF8(string(t.buf), ""))
}
