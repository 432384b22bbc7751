package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"ytbatch/internal/ytdlp"
)

func runPlaylist(args []string) error {
	fs := flag.NewFlagSet("playlist", flag.ContinueOnError)
	configPath := fs.String("config", "", "settings file")
	limit := fs.Int("limit", 0, "max playlist entries (default: settings playlist.limit)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ytbatch playlist [--limit N] [--json] <url>")
	}
	url := strings.TrimSpace(fs.Arg(0))

	store, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	cfg := store.Get()
	if *limit > 0 {
		cfg.Playlist.Limit = *limit
	}
	tools, err := ytdlp.ResolveTools(cfg.ResolveOptions())
	if err != nil {
		return err
	}
	items, err := ytdlp.FetchPlaylist(context.Background(), tools.YTDLP, ytdlp.PlaylistOptions{URL: url, Limit: cfg.Playlist.Limit})
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(map[string]any{
			"url":         url,
			"is_playlist": ytdlp.IsPlaylistURL(url),
			"items":       items,
		})
	}
	fmt.Printf("%d item(s)\n", len(items))
	for i, it := range items {
		duration := it.Duration
		if duration == "" {
			duration = "-"
		}
		fmt.Printf("%3d. %-8s %s\n     %s\n", i+1, duration, truncate(it.Title, 70), it.URL)
	}
	return nil
}
