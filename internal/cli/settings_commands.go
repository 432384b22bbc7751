package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"ytbatch/internal/config"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	configPath := fs.String("config", "", "settings file")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": store.Path(),
			"settings":    store.Get(),
		})
	}
	fmt.Printf("config: %s\n", store.Path())
	printSettings(store.Get())
	return nil
}

func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	configPath := fs.String("config", "", "settings file")
	outputFolder := fs.String("output-folder", "", "download folder (empty keeps current)")
	maxParallel := fs.Int("max-parallel", -1, "concurrent downloads 1..10 (-1 keeps current)")
	audioFormat := fs.String("audio-format", "", "audio format, e.g. mp3|m4a|opus (empty keeps current)")
	ytdlpPath := fs.String("yt-dlp", "", "explicit yt-dlp binary path (empty keeps current)")
	ffmpegPath := fs.String("ffmpeg", "", "explicit ffmpeg binary path (empty keeps current)")
	binariesDir := fs.String("binaries-dir", "", "directory searched for bundled binaries (empty keeps current)")
	addr := fs.String("addr", "", "serve listen address (empty keeps current)")
	playlistLimit := fs.Int("playlist-limit", -1, "max playlist entries (-1 keeps current)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *maxParallel != -1 && (*maxParallel < config.MinParallel || *maxParallel > config.MaxParallel) {
		return fmt.Errorf("--max-parallel must be between %d and %d", config.MinParallel, config.MaxParallel)
	}
	if *playlistLimit != -1 && *playlistLimit <= 0 {
		return errors.New("--playlist-limit must be >= 1")
	}

	store, err := loadSettings(*configPath)
	if err != nil {
		return err
	}
	next, err := store.Update(func(c *config.Config) {
		if v := strings.TrimSpace(*outputFolder); v != "" {
			c.OutputFolder = v
		}
		if *maxParallel != -1 {
			c.MaxParallel = *maxParallel
		}
		if v := strings.TrimSpace(*audioFormat); v != "" {
			c.AudioFormat = v
		}
		if v := strings.TrimSpace(*ytdlpPath); v != "" {
			c.Binaries.YTDLP = v
		}
		if v := strings.TrimSpace(*ffmpegPath); v != "" {
			c.Binaries.FFmpeg = v
		}
		if v := strings.TrimSpace(*binariesDir); v != "" {
			c.Binaries.Dir = v
		}
		if v := strings.TrimSpace(*addr); v != "" {
			c.Server.Addr = v
		}
		if *playlistLimit != -1 {
			c.Playlist.Limit = *playlistLimit
		}
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": store.Path(),
			"settings":    next,
		})
	}
	fmt.Printf("updated settings in %s\n", store.Path())
	printSettings(next)
	return nil
}

func printSettings(c config.Config) {
	fmt.Printf("output_folder: %s\n", c.OutputFolder)
	fmt.Printf("max_parallel: %d\n", c.MaxParallel)
	fmt.Printf("audio_format: %s\n", c.AudioFormat)
	fmt.Printf("binaries.yt_dlp: %s\n", orNone(c.Binaries.YTDLP))
	fmt.Printf("binaries.ffmpeg: %s\n", orNone(c.Binaries.FFmpeg))
	fmt.Printf("binaries.dir: %s\n", orNone(c.Binaries.Dir))
	fmt.Printf("server.addr: %s\n", c.Server.Addr)
	fmt.Printf("playlist.limit: %d\n", c.Playlist.Limit)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(auto)"
	}
	return s
}

func printSettingsUsage() {
	fmt.Println("settings commands:")
	fmt.Println("  settings show")
	fmt.Println("  settings set [--output-folder DIR] [--max-parallel N] [--audio-format FMT]")
	fmt.Println("               [--yt-dlp PATH] [--ffmpeg PATH] [--binaries-dir DIR]")
	fmt.Println("               [--addr HOST:PORT] [--playlist-limit N]")
}
