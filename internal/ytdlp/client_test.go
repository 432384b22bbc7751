package ytdlp

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDownloadArgs(t *testing.T) {
	args, err := DownloadArgs(DownloadOptions{URL: "https://youtu.be/abc", OutputDir: "/music"}, Tools{YTDLP: "/bin/yt-dlp"})
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(args, " ")
	for _, want := range []string{"--newline", "--progress", "--audio-format mp3", "-o /music/%(title)s.%(ext)s"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in args, got %q", want, joined)
		}
	}
	if args[len(args)-1] != "https://youtu.be/abc" {
		t.Fatalf("expected URL as last arg, got %q", args[len(args)-1])
	}
	if strings.Contains(joined, "--ffmpeg-location") {
		t.Fatalf("unexpected ffmpeg location without ffmpeg: %q", joined)
	}

	args, err = DownloadArgs(DownloadOptions{URL: "u", OutputDir: "/o", AudioFormat: "M4A"}, Tools{YTDLP: "y", FFmpeg: "/opt/ff/ffmpeg"})
	if err != nil {
		t.Fatal(err)
	}
	joined = strings.Join(args, " ")
	if !strings.Contains(joined, "--audio-format m4a") || !strings.Contains(joined, "--ffmpeg-location /opt/ff") {
		t.Fatalf("unexpected args: %q", joined)
	}
}

func TestDownloadArgsRequiresURLAndDir(t *testing.T) {
	if _, err := DownloadArgs(DownloadOptions{OutputDir: "/o"}, Tools{}); err == nil {
		t.Fatalf("expected error for missing URL")
	}
	if _, err := DownloadArgs(DownloadOptions{URL: "u"}, Tools{}); err == nil {
		t.Fatalf("expected error for missing output dir")
	}
}

func TestEnvironPrependsFFmpegDir(t *testing.T) {
	base := []string{"HOME=/home/u", "PATH=/usr/bin", "FFMPEG_BINARY=/old/ffmpeg"}
	env := Environ(base, Tools{YTDLP: "y", FFmpeg: "/opt/ff/ffmpeg"})

	got := map[string]string{}
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		got[k] = v
	}
	wantPath := "/opt/ff" + string(os.PathListSeparator) + "/usr/bin"
	if got["PATH"] != wantPath {
		t.Fatalf("unexpected PATH: got %q want %q", got["PATH"], wantPath)
	}
	if got[FFmpegEnvVar] != "/opt/ff/ffmpeg" {
		t.Fatalf("unexpected %s: %q", FFmpegEnvVar, got[FFmpegEnvVar])
	}
	if got["HOME"] != "/home/u" {
		t.Fatalf("expected unrelated vars to survive, got %v", env)
	}
}

func TestEnvironWithoutFFmpegIsUnchanged(t *testing.T) {
	base := []string{"PATH=/usr/bin"}
	env := Environ(base, Tools{YTDLP: "y"})
	if len(env) != 1 || env[0] != "PATH=/usr/bin" {
		t.Fatalf("expected base env, got %v", env)
	}
}

func TestSplitLinesHandlesCarriageReturns(t *testing.T) {
	s := bufio.NewScanner(strings.NewReader("a\r\nb\rc\n\nd"))
	s.Split(SplitLines)
	var got []string
	for s.Scan() {
		got = append(got, s.Text())
	}
	want := []string{"a", "b", "c", "d"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected lines: got %v want %v", got, want)
	}
}

func TestTailBufferKeepsLastLines(t *testing.T) {
	b := NewTailBuffer(16)
	b.AppendLine("aaaaaaaaaa")
	b.AppendLine("bbbbbbbbbb")
	b.AppendLine("ERROR: boom")
	if got := b.String(); got != "ERROR: boom" {
		t.Fatalf("unexpected tail buffer: %q", got)
	}
}

func TestTailBufferKeepsEndOfOverlongLine(t *testing.T) {
	b := NewTailBuffer(5)
	b.AppendLine("abcdefghij")
	if got := b.String(); got != "ghij" {
		t.Fatalf("unexpected tail buffer: %q", got)
	}
}

func TestResolveToolsPrefersBinaryDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{BinaryYTDLP, BinaryFFmpeg} {
		if err := os.WriteFile(filepath.Join(dir, ExecutableName(name)), []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", t.TempDir())

	tools, err := ResolveTools(ResolveOptions{BinaryDir: dir})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if tools.YTDLP != filepath.Join(dir, ExecutableName(BinaryYTDLP)) || !tools.HasFFmpeg() {
		t.Fatalf("unexpected tools: %+v", tools)
	}
}

func TestResolveToolsMissingYTDLP(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	if _, err := ResolveTools(ResolveOptions{BinaryDir: t.TempDir()}); err == nil {
		t.Fatalf("expected error when yt-dlp is missing")
	}
}

func TestCheckExecutableRejectsPlainFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := CheckExecutable(p); err == nil {
		t.Fatalf("expected non-executable file to be rejected")
	}
}
