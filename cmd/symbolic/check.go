package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/go-kit/log/level"
	"github.com/midbel/cli"
	"github.com/midbel/textwrap"

	"github.com/midbel/symbolic"
	"github.com/midbel/symbolic/dynamic"
)

func runCheck(cmd *cli.Command, args []string) error {
	verbose := cmd.Flag.Bool("v", false, "verbose")
	if err := cmd.Flag.Parse(args); err != nil {
		return err
	}
	if cmd.Flag.NArg() == 0 {
		return fmt.Errorf("usage: %s", cmd.Usage)
	}
	var (
		logger = newLogger(*verbose)
		p      = symbolic.New(symbolic.WithLogger(logger))
		w      = tabwriter.NewWriter(os.Stdout, 12, 2, 2, ' ', 0)
		failed int
	)
	for _, lib := range cmd.Flag.Args() {
		r, err := p.Inspect(lib)
		if err != nil {
			failed++
			level.Debug(logger).Log("msg", "inspection failed", "lib", lib, "err", err)
			fmt.Fprintf(w, "%s\t-\t%s\n", lib, color.RedString("error"))
			fmt.Fprintln(w, indent(textwrap.Wrap(err.Error())))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", lib, r.Class, describe(r.State))
	}
	w.Flush()
	if failed > 0 {
		return fmt.Errorf("%d/%d libraries could not be inspected", failed, cmd.Flag.NArg())
	}
	return nil
}

func describe(s dynamic.State) string {
	if s.Compliant() {
		return color.GreenString("symbolic (%s)", s.Reason)
	}
	return color.YellowString("not symbolic (%s at %#x)", s.Plan.Strategy, s.Plan.Offset)
}

func indent(str string) string {
	lines := strings.Split(strings.TrimRight(str, "\n"), "\n")
	for i := range lines {
		lines[i] = "    " + lines[i]
	}
	return strings.Join(lines, "\n")
}
