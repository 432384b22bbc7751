package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "download", "dl":
		return runDownload(args[1:])
	case "playlist":
		return runPlaylist(args[1:])
	case "serve":
		return runServe(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "open":
		return runOpen(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("ytbatch: parallel YouTube audio downloader driving yt-dlp")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  ytbatch doctor")
	fmt.Println("  ytbatch download --playlist <url>")
	fmt.Println("  ytbatch download <url> [<url>...]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  download  download audio for a playlist and/or video URLs (s / ctrl+c stops all)")
	fmt.Println("  playlist  list the entries of a playlist, mix or video URL")
	fmt.Println("  serve     run the local HTTP + websocket control surface")
	fmt.Println("  doctor    run dependency and filesystem preflight checks")
	fmt.Println("  settings  show/update settings")
	fmt.Println("  open      open a downloaded file, or reveal it with --reveal")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Settings load from ./ytbatch.yml or the user config dir; YTBATCH_* env vars override")
}
