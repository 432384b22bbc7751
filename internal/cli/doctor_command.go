package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"ytbatch/internal/doctor"
)

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
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
	res := doctor.Run(context.Background(), doctor.Options{Config: store.Get(), ConfigPath: store.Path()})
	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			status := "OK"
			if !c.OK {
				status = "FAIL"
			}
			fmt.Printf("[%s] %s: %s\n", status, c.Name, c.Message)
		}
	}
	if !res.OK {
		return errors.New("doctor found issues")
	}
	return nil
}
