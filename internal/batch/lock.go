package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const (
	folderLockDirName   = ".ytbatch.lock"
	folderLockOwnerFile = "owner.json"
)

var ErrFolderLocked = errors.New("output folder is in use by another batch")

// FolderLock marks an output folder as owned by one batch across processes.
type FolderLock struct {
	dir string
}

type folderLockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireFolderLock takes the lock in outputDir. A lock left behind by a
// process that no longer exists on this host is reclaimed.
func AcquireFolderLock(outputDir string) (FolderLock, error) {
	target := strings.TrimSpace(outputDir)
	if target == "" {
		return FolderLock{}, fmt.Errorf("%w: output directory is required", ErrInvalidOutputDir)
	}
	lockDir := filepath.Join(target, folderLockDirName)

	for attempt := 0; attempt < 2; attempt++ {
		err := os.Mkdir(lockDir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return FolderLock{}, fmt.Errorf("acquire folder lock for %s: %w", target, err)
		}
		owner, readErr := readFolderLockOwner(lockDir)
		if attempt == 0 && readErr == nil && ownerGone(owner) {
			_ = os.RemoveAll(lockDir)
			continue
		}
		if readErr == nil && owner.PID > 0 {
			return FolderLock{}, fmt.Errorf("%w: %s (pid=%d created_at=%s host=%s)",
				ErrFolderLocked, target, owner.PID, owner.CreatedAt, owner.Hostname)
		}
		return FolderLock{}, fmt.Errorf("%w: %s", ErrFolderLocked, target)
	}

	owner := folderLockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	raw, _ := json.Marshal(owner)
	if err := os.WriteFile(filepath.Join(lockDir, folderLockOwnerFile), raw, 0o644); err != nil {
		_ = os.RemoveAll(lockDir)
		return FolderLock{}, fmt.Errorf("write folder lock owner for %s: %w", target, err)
	}
	return FolderLock{dir: lockDir}, nil
}

func (l FolderLock) Release() error {
	if strings.TrimSpace(l.dir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.dir, folderLockOwnerFile))
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release folder lock %s: %w", l.dir, err)
	}
	return nil
}

func readFolderLockOwner(lockDir string) (folderLockOwner, error) {
	var owner folderLockOwner
	raw, err := os.ReadFile(filepath.Join(lockDir, folderLockOwnerFile))
	if err != nil {
		return owner, err
	}
	if err := json.Unmarshal(raw, &owner); err != nil {
		return owner, err
	}
	return owner, nil
}

// ownerGone is true only for a same-host owner whose pid is dead.
func ownerGone(owner folderLockOwner) bool {
	if owner.PID <= 0 || owner.Hostname != hostnameOrUnknown() {
		return false
	}
	alive, err := process.PidExists(int32(owner.PID))
	return err == nil && !alive
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
