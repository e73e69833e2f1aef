package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/midbel/cli"

	"github.com/midbel/symbolic"
)

func runPatch(cmd *cli.Command, args []string) error {
	verbose := cmd.Flag.Bool("v", false, "verbose")
	if err := cmd.Flag.Parse(args); err != nil {
		return err
	}
	if cmd.Flag.NArg() != 2 {
		return fmt.Errorf("usage: %s", cmd.Usage)
	}
	var (
		lib = cmd.Flag.Arg(0)
		dir = cmd.Flag.Arg(1)
	)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	p := symbolic.New(symbolic.WithLogger(newLogger(*verbose)))
	res, err := p.Patch(lib, dir)
	if err != nil {
		return err
	}
	printResult(res)
	return nil
}

func printResult(res symbolic.Result) {
	switch res.Status {
	case symbolic.Compliant:
		fmt.Fprintf(os.Stderr, "%s: Already linked with -Bsymbolic (%s)\n", res.Path, res.State.Reason)
	case symbolic.Cached:
		fmt.Printf("Using cached %s\n", color.CyanString(res.Path))
	case symbolic.Patched:
		fmt.Printf("Modified to %s (%s)\n", color.GreenString(res.Path), res.State.Plan.Strategy)
	}
}
