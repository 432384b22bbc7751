package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytbatch/internal/config"
)

func writeFakeYTDLP(t *testing.T, version string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "yt-dlp")
	script := "#!/usr/bin/env bash\nif [ \"$1\" = \"--version\" ]; then echo '" + version + "'; fi\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func checkByName(res Result, name string) (Check, bool) {
	for _, c := range res.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

func TestRunReportsDependenciesAndVersion(t *testing.T) {
	cfg := config.Default()
	cfg.OutputFolder = filepath.Join(t.TempDir(), "out")
	cfg.Binaries.YTDLP = writeFakeYTDLP(t, "2024.08.06")

	res := Run(context.Background(), Options{Config: cfg, ConfigPath: filepath.Join(t.TempDir(), "ytbatch.yml")})

	yt, ok := checkByName(res, "dependency:yt-dlp")
	require.True(t, ok)
	assert.True(t, yt.OK)

	ver, ok := checkByName(res, "version:yt-dlp")
	require.True(t, ok)
	assert.True(t, ver.OK, ver.Message)
	assert.Equal(t, "2024.08.06", ver.Message)

	out, ok := checkByName(res, "directory:output")
	require.True(t, ok)
	assert.True(t, out.OK)

	cfgDir, ok := checkByName(res, "directory:config")
	require.True(t, ok)
	assert.True(t, cfgDir.OK)

	_, ok = checkByName(res, "host")
	assert.True(t, ok)
}

func TestRunFlagsOldVersion(t *testing.T) {
	cfg := config.Default()
	cfg.OutputFolder = t.TempDir()
	cfg.Binaries.YTDLP = writeFakeYTDLP(t, "2021.12.01")

	res := Run(context.Background(), Options{Config: cfg})
	ver, ok := checkByName(res, "version:yt-dlp")
	require.True(t, ok)
	assert.False(t, ver.OK)
	assert.False(t, res.OK)
	assert.Contains(t, ver.Message, "older than")
}

func TestRunMissingYTDLP(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	cfg := config.Default()
	cfg.OutputFolder = t.TempDir()
	cfg.Binaries.Dir = t.TempDir()

	res := Run(context.Background(), Options{Config: cfg})
	assert.False(t, res.OK)
	_, hasVersion := checkByName(res, "version:yt-dlp")
	assert.False(t, hasVersion)
}

func TestParseToolVersion(t *testing.T) {
	cases := map[string]string{
		"2024.08.06":        "2024.8.6",
		"2024.08.06.232922": "2024.8.6",
		"v2023.03.04":       "2023.3.4",
		"2023.10.0":         "2023.10.0",
	}
	for raw, want := range cases {
		v, err := ParseToolVersion(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, v.String(), raw)
	}
	_, err := ParseToolVersion("nightly")
	assert.Error(t, err)

	ok, err := AtLeast("2023.03.04", MinYTDLPVersion)
	require.NoError(t, err)
	assert.True(t, ok)
}
