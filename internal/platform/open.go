// Package platform opens files and folders with the desktop's default handler.
package platform

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

var ErrNotFound = errors.New("path does not exist")

// OpenFileCommand returns the launcher invocation for opening path with its
// default application on goos.
func OpenFileCommand(goos, path string) (string, []string) {
	switch goos {
	case "windows":
		return "cmd", []string{"/C", "start", "", path}
	case "darwin":
		return "open", []string{path}
	default:
		return "xdg-open", []string{path}
	}
}

// RevealCommand returns the invocation that shows path in the file manager.
// For a file, platforms that support it select the file in its folder;
// elsewhere the containing folder is opened.
func RevealCommand(goos, path string, isFile bool) (string, []string) {
	folder := path
	if isFile {
		folder = filepath.Dir(path)
	}
	switch goos {
	case "windows":
		if isFile {
			return "explorer", []string{"/select,", path}
		}
		return "explorer", []string{folder}
	case "darwin":
		if isFile {
			return "open", []string{"-R", path}
		}
		return "open", []string{folder}
	default:
		return "xdg-open", []string{folder}
	}
}

func OpenFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	name, args := OpenFileCommand(runtime.GOOS, path)
	return launch(name, args)
}

// OpenFolder reveals path, which may be a file or a directory.
func OpenFolder(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	name, args := RevealCommand(runtime.GOOS, path, !info.IsDir())
	return launch(name, args)
}

// launch starts the launcher detached and reaps it in the background.
func launch(name string, args []string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
