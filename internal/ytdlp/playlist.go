package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"ytbatch/internal/model"
)

const (
	DefaultPlaylistLimit = 100
	watchURLTemplate     = "https://www.youtube.com/watch?v=%s"
	unknownTitle         = "Unknown Title"
)

var (
	ErrInvalidURL = errors.New("invalid YouTube URL")
	ErrNoItems    = errors.New("no items found")
)

var youtubeURLPatterns = []string{
	"youtube.com/watch",
	"youtube.com/playlist",
	"youtu.be/",
	"youtube.com/mix",
	"music.youtube.com",
}

func ValidateURL(url string) bool {
	for _, p := range youtubeURLPatterns {
		if strings.Contains(url, p) {
			return true
		}
	}
	return false
}

// IsPlaylistURL reports whether url names a playlist or mix rather than a
// single video.
func IsPlaylistURL(url string) bool {
	return strings.Contains(url, "playlist") || strings.Contains(url, "mix") || strings.Contains(url, "&list=")
}

type PlaylistOptions struct {
	URL   string
	Limit int
}

// FetchPlaylist runs one metadata-only yt-dlp invocation and returns the
// entries it reports, deduplicated by id.
func FetchPlaylist(ctx context.Context, ytdlpPath string, opts PlaylistOptions) ([]model.Item, error) {
	url := strings.TrimSpace(opts.URL)
	if !ValidateURL(url) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, url)
	}
	if err := CheckExecutable(ytdlpPath); err != nil {
		return nil, err
	}

	playlist := IsPlaylistURL(url)
	args := []string{"--dump-json", "--no-warnings"}
	if playlist {
		limit := opts.Limit
		if limit <= 0 {
			limit = DefaultPlaylistLimit
		}
		args = append(args, "--flat-playlist", "--playlist-end", fmt.Sprintf("%d", limit))
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, ytdlpPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("fetch playlist: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParseItems(stdout.Bytes(), playlist)
}

type rawEntry struct {
	ID         string  `json:"id"`
	DisplayID  string  `json:"display_id"`
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
	URL        string `json:"url"`
	WebpageURL string `json:"webpage_url"`
}

// ParseItems decodes yt-dlp JSON lines. Flat playlist entries carry a bare
// url; single-video dumps prefer webpage_url.
func ParseItems(data []byte, playlist bool) ([]model.Item, error) {
	items := make([]model.Item, 0)
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw rawEntry
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("parse JSON line %d: %w", lineNo, err)
		}
		item, err := toItem(raw, playlist)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read yt-dlp output: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	return items, nil
}

func toItem(raw rawEntry, playlist bool) (model.Item, error) {
	id := raw.ID
	if id == "" && !playlist {
		id = raw.DisplayID
	}
	if id == "" {
		return model.Item{}, fmt.Errorf("missing video ID")
	}

	title := raw.Title
	if title == "" {
		title = unknownTitle
	}

	item := model.Item{
		ID:        id,
		Title:     title,
		Thumbnail: raw.Thumbnail,
	}
	if raw.Duration > 0 {
		item.Duration = FormatDuration(int64(raw.Duration))
	}
	if item.Thumbnail == "" {
		for i := len(raw.Thumbnails) - 1; i >= 0; i-- {
			if raw.Thumbnails[i].URL != "" {
				item.Thumbnail = raw.Thumbnails[i].URL
				break
			}
		}
	}

	switch {
	case !playlist && raw.WebpageURL != "":
		item.URL = raw.WebpageURL
	case raw.URL != "":
		item.URL = raw.URL
	default:
		item.URL = fmt.Sprintf(watchURLTemplate, id)
	}
	return item, nil
}

func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}
