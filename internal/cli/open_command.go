package cli

import (
	"errors"
	"flag"
	"strings"

	"ytbatch/internal/platform"
)

func runOpen(args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	reveal := fs.Bool("reveal", false, "show the file in its folder instead of opening it")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ytbatch open [--reveal] <path>")
	}
	path := strings.TrimSpace(fs.Arg(0))
	if *reveal {
		return platform.OpenFolder(path)
	}
	return platform.OpenFile(path)
}
