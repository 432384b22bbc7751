// Package doctor checks that the host can run batches with the current
// settings.
package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/shirou/gopsutil/v3/mem"

	"ytbatch/internal/config"
	"ytbatch/internal/ytdlp"
)

// MinYTDLPVersion is the oldest yt-dlp known to accept every flag the
// runner passes.
const MinYTDLPVersion = "2023.3.4"

const versionTimeout = 15 * time.Second

type Options struct {
	Config     config.Config
	ConfigPath string
}

type Result struct {
	OK     bool    `json:"ok"`
	Checks []Check `json:"checks"`
}

type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Run executes every check. It never fails as a whole; problems are
// reported as failed checks.
func Run(ctx context.Context, opts Options) Result {
	checks := make([]Check, 0, 6)

	dep := ytdlp.DependencyStatus(opts.Config.ResolveOptions())
	checks = append(checks, Check{
		Name:    "dependency:yt-dlp",
		OK:      dep.YTDLPFound,
		Message: dependencyMessage(dep.YTDLPFound, dep.YTDLPPath, ytdlp.BinaryYTDLP),
	})
	// ffmpeg is optional for the runner, but audio extraction needs it.
	checks = append(checks, Check{
		Name:    "dependency:ffmpeg",
		OK:      dep.FFmpegFound,
		Message: dependencyMessage(dep.FFmpegFound, dep.FFmpegPath, ytdlp.BinaryFFmpeg),
	})
	if dep.YTDLPFound {
		checks = append(checks, versionCheck(ctx, dep.YTDLPPath))
	}

	outOK, outMsg := folderCheck(opts.Config.OutputFolder)
	checks = append(checks, Check{Name: "directory:output", OK: outOK, Message: outMsg})

	if p := strings.TrimSpace(opts.ConfigPath); p != "" {
		cfgOK, cfgMsg := writableDir(filepath.Dir(p))
		checks = append(checks, Check{Name: "directory:config", OK: cfgOK, Message: cfgMsg})
	}

	checks = append(checks, hostCheck(opts.Config.MaxParallel))

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return Result{OK: ok, Checks: checks}
}

func dependencyMessage(ok bool, path, name string) string {
	if ok {
		return name + " found at " + path
	}
	return name + " not found in configured paths, binaries dir, or PATH"
}

func versionCheck(ctx context.Context, path string) Check {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	check := Check{Name: "version:yt-dlp"}
	raw, err := ytdlp.Version(ctx, path)
	if err != nil {
		check.Message = err.Error()
		return check
	}
	ok, err := AtLeast(raw, MinYTDLPVersion)
	if err != nil {
		check.Message = fmt.Sprintf("unrecognized version %q: %v", raw, err)
		return check
	}
	check.OK = ok
	if ok {
		check.Message = raw
	} else {
		check.Message = fmt.Sprintf("%s is older than %s; run yt-dlp -U", raw, MinYTDLPVersion)
	}
	return check
}

// ParseToolVersion reads date-style yt-dlp versions ("2024.08.06",
// "2024.08.06.232922") as semver, dropping zero padding and any fourth
// nightly segment.
func ParseToolVersion(raw string) (*semver.Version, error) {
	v := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	parts := strings.Split(v, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	for i, p := range parts {
		trimmed := strings.TrimLeft(p, "0")
		if trimmed == "" {
			trimmed = "0"
		}
		parts[i] = trimmed
	}
	return semver.NewVersion(strings.Join(parts, "."))
}

// AtLeast reports whether version raw is >= min.
func AtLeast(raw, min string) (bool, error) {
	have, err := ParseToolVersion(raw)
	if err != nil {
		return false, err
	}
	want, err := ParseToolVersion(min)
	if err != nil {
		return false, err
	}
	return !have.LessThan(want), nil
}

func folderCheck(path string) (bool, string) {
	if err := config.ValidateOutputFolder(path); err != nil {
		return false, err.Error()
	}
	return true, path + " writable"
}

func writableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "ytbatch-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}

// hostCheck is informational: it fails only when the host reports less
// free memory than a rough per-download budget.
func hostCheck(parallel int) Check {
	check := Check{Name: "host", OK: true}
	vm, err := mem.VirtualMemory()
	if err != nil {
		check.Message = fmt.Sprintf("%d CPUs; memory unavailable: %v", runtime.NumCPU(), err)
		return check
	}
	const perJob = 256 << 20
	if parallel < 1 {
		parallel = 1
	}
	check.Message = fmt.Sprintf("%d CPUs; %.1f GiB available of %.1f GiB",
		runtime.NumCPU(), float64(vm.Available)/(1<<30), float64(vm.Total)/(1<<30))
	if vm.Available < uint64(parallel)*perJob {
		check.OK = false
		check.Message += fmt.Sprintf("; below %d MiB for %d parallel downloads", parallel*(perJob>>20), parallel)
	}
	return check
}
