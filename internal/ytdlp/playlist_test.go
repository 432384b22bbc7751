package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemsPlaylist(t *testing.T) {
	data := []byte(`{"id":"v1","title":"First","duration":75,"url":"https://www.youtube.com/watch?v=v1"}
{"id":"v2","duration":3725,"thumbnails":[{"url":"small.jpg"},{"url":"big.jpg"}]}

{"id":"v1","title":"First again"}
`)
	items, err := ParseItems(data, true)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "First", items[0].Title)
	assert.Equal(t, "1:15", items[0].Duration)
	assert.Equal(t, "https://www.youtube.com/watch?v=v1", items[0].URL)

	assert.Equal(t, unknownTitle, items[1].Title)
	assert.Equal(t, "1:02:05", items[1].Duration)
	assert.Equal(t, "big.jpg", items[1].Thumbnail)
	assert.Equal(t, "https://www.youtube.com/watch?v=v2", items[1].URL)
}

func TestParseItemsSingleVideoPrefersWebpageURL(t *testing.T) {
	data := []byte(`{"display_id":"abc","title":"Song","url":"https://cdn/x.webm","webpage_url":"https://www.youtube.com/watch?v=abc"}`)
	items, err := ParseItems(data, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "abc", items[0].ID)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", items[0].URL)
	assert.Equal(t, "abc", items[0].Job().ID)
}

func TestParseItemsErrors(t *testing.T) {
	_, err := ParseItems([]byte("\n\n"), true)
	assert.True(t, errors.Is(err, ErrNoItems))

	_, err = ParseItems([]byte(`{"title":"no id"}`), true)
	assert.Error(t, err)

	_, err = ParseItems([]byte(`not json`), true)
	assert.Error(t, err)
}

func TestValidateURL(t *testing.T) {
	assert.True(t, ValidateURL("https://www.youtube.com/watch?v=abc"))
	assert.True(t, ValidateURL("https://youtu.be/abc"))
	assert.True(t, ValidateURL("https://music.youtube.com/watch?v=abc"))
	assert.False(t, ValidateURL("https://vimeo.com/123"))

	assert.True(t, IsPlaylistURL("https://www.youtube.com/playlist?list=PL1"))
	assert.True(t, IsPlaylistURL("https://www.youtube.com/watch?v=a&list=RD1"))
	assert.False(t, IsPlaylistURL("https://youtu.be/abc"))
}

func TestFetchPlaylistWithFakeBinary(t *testing.T) {
	tmp := t.TempDir()
	argsFile := filepath.Join(tmp, "args.txt")
	script := `#!/usr/bin/env bash
set -euo pipefail
printf '%s\n' "$@" > "` + argsFile + `"
echo '{"id":"a1","title":"One","url":"https://www.youtube.com/watch?v=a1"}'
echo '{"id":"a2","title":"Two","url":"https://www.youtube.com/watch?v=a2"}'
`
	bin := filepath.Join(tmp, "yt-dlp")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	items, err := FetchPlaylist(context.Background(), bin, PlaylistOptions{URL: "https://www.youtube.com/playlist?list=PL1", Limit: 5})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a2", items[1].ID)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "--flat-playlist\n--playlist-end\n5\n")
}

func TestFetchPlaylistRejectsNonYouTube(t *testing.T) {
	_, err := FetchPlaylist(context.Background(), "/nonexistent", PlaylistOptions{URL: "https://example.com/x"})
	assert.True(t, errors.Is(err, ErrInvalidURL))
}

func TestFetchPlaylistReportsToolFailure(t *testing.T) {
	tmp := t.TempDir()
	bin := filepath.Join(tmp, "yt-dlp")
	require.NoError(t, os.WriteFile(bin, []byte("#!/usr/bin/env bash\necho 'ERROR: private video' >&2\nexit 1\n"), 0o755))

	_, err := FetchPlaylist(context.Background(), bin, PlaylistOptions{URL: "https://youtu.be/abc"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "private video")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", FormatDuration(0))
	assert.Equal(t, "0:59", FormatDuration(59))
	assert.Equal(t, "10:00", FormatDuration(600))
	assert.Equal(t, "2:00:01", FormatDuration(7201))
}
