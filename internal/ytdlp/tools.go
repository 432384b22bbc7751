package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	BinaryYTDLP  = "yt-dlp"
	BinaryFFmpeg = "ffmpeg"
)

var ErrBinaryNotFound = errors.New("binary not found")

// Tools holds resolved executable paths. FFmpeg may be empty.
type Tools struct {
	YTDLP  string `json:"yt_dlp,omitempty"`
	FFmpeg string `json:"ffmpeg,omitempty"`
}

func (t Tools) HasFFmpeg() bool {
	return strings.TrimSpace(t.FFmpeg) != ""
}

type ResolveOptions struct {
	YTDLPPath  string
	FFmpegPath string
	BinaryDir  string
}

// ResolveTools finds both executables: explicit path, then the bundled
// binaries directory, then PATH. A missing ffmpeg is not an error.
func ResolveTools(opts ResolveOptions) (Tools, error) {
	var tools Tools
	yt, err := resolveBinary(BinaryYTDLP, opts.YTDLPPath, opts.BinaryDir)
	if err != nil {
		return Tools{}, err
	}
	tools.YTDLP = yt
	if ff, err := resolveBinary(BinaryFFmpeg, opts.FFmpegPath, opts.BinaryDir); err == nil {
		tools.FFmpeg = ff
	}
	return tools, nil
}

func resolveBinary(name, explicit, binaryDir string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		if err := CheckExecutable(p); err != nil {
			return "", err
		}
		return p, nil
	}
	if dir := strings.TrimSpace(binaryDir); dir != "" {
		candidate := filepath.Join(dir, ExecutableName(name))
		if CheckExecutable(candidate) == nil {
			return candidate, nil
		}
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("%s: %w", name, ErrBinaryNotFound)
}

// CheckExecutable fails unless path is a regular file the process may execute.
func CheckExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, ErrBinaryNotFound)
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", path, ErrBinaryNotFound)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%s is not executable: %w", path, ErrBinaryNotFound)
	}
	return nil
}

func ExecutableName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

type DependencyReport struct {
	YTDLPFound  bool   `json:"yt_dlp_found"`
	YTDLPPath   string `json:"yt_dlp_path,omitempty"`
	FFmpegFound bool   `json:"ffmpeg_found"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
}

func DependencyStatus(opts ResolveOptions) DependencyReport {
	report := DependencyReport{}
	if path, err := resolveBinary(BinaryYTDLP, opts.YTDLPPath, opts.BinaryDir); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if path, err := resolveBinary(BinaryFFmpeg, opts.FFmpegPath, opts.BinaryDir); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	return report
}

// Version runs `yt-dlp --version` and returns the trimmed first line.
func Version(ctx context.Context, ytdlpPath string) (string, error) {
	cmd := exec.CommandContext(ctx, ytdlpPath, "--version")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("yt-dlp --version failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	line, _, _ := strings.Cut(strings.TrimSpace(stdout.String()), "\n")
	if line == "" {
		return "", fmt.Errorf("yt-dlp returned empty version")
	}
	return strings.TrimSpace(line), nil
}
