package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/go-kit/log/level"
	"github.com/midbel/cli"
	"golang.org/x/sync/errgroup"

	"github.com/midbel/symbolic"
	"github.com/midbel/symbolic/internal/manifest"
)

func runBatch(cmd *cli.Command, args []string) error {
	var (
		verbose = cmd.Flag.Bool("v", false, "verbose")
		jobs    = cmd.Flag.Int("j", 0, "number of libraries patched in parallel")
	)
	if err := cmd.Flag.Parse(args); err != nil {
		return err
	}
	if cmd.Flag.NArg() != 1 {
		return fmt.Errorf("usage: %s", cmd.Usage)
	}
	m, err := manifest.Open(cmd.Flag.Arg(0))
	if err != nil {
		return err
	}
	if *jobs > 0 {
		m.Parallel = *jobs
	}

	var (
		logger  = newLogger(*verbose)
		p       = symbolic.New(symbolic.WithLogger(logger))
		results = make([]symbolic.Result, len(m.Libraries))
		errs    = make([]error, len(m.Libraries))
		group   errgroup.Group
	)
	group.SetLimit(m.Parallel)
	for i, lib := range m.Libraries {
		group.Go(func() error {
			if err := os.MkdirAll(lib.Output, 0755); err != nil {
				errs[i] = err
				return nil
			}
			results[i], errs[i] = p.Patch(lib.Path, lib.Output)
			return nil
		})
	}
	group.Wait()

	var failed int
	for i, lib := range m.Libraries {
		if err := errs[i]; err != nil {
			failed++
			level.Error(logger).Log("msg", "patch failed", "lib", lib.Path, "err", err)
			fmt.Printf("%s: %s\n", lib.Path, color.RedString("failed"))
			continue
		}
		printResult(results[i])
	}
	if failed > 0 {
		return fmt.Errorf("%d/%d libraries not patched", failed, len(m.Libraries))
	}
	return nil
}
