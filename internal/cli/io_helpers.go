package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"ytbatch/internal/config"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func stdinIsTTY() bool {
	return isTTY(os.Stdin)
}

func stdoutIsTTY() bool {
	return isTTY(os.Stdout)
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func loadSettings(path string) (*config.Store, error) {
	store, err := config.Load(config.Options{ConfigFile: strings.TrimSpace(path)})
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	return store, nil
}

// openLogger returns a logger writing to path, or to fallback when path is
// empty. The closer is never nil.
func openLogger(path string, fallback io.Writer) (*log.Logger, func() error, error) {
	noop := func() error { return nil }
	path = strings.TrimSpace(path)
	if path == "" {
		if fallback == nil {
			fallback = io.Discard
		}
		return log.New(fallback, "ytbatch ", log.LstdFlags), noop, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, noop, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, noop, fmt.Errorf("open log file: %w", err)
	}
	return log.New(f, "ytbatch ", log.LstdFlags|log.Lmicroseconds), f.Close, nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
