package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/midbel/cli"
	"github.com/olekukonko/tablewriter"

	"github.com/midbel/symbolic"
)

func runShow(cmd *cli.Command, args []string) error {
	if err := cmd.Flag.Parse(args); err != nil {
		return err
	}
	if cmd.Flag.NArg() != 1 {
		return fmt.Errorf("usage: %s", cmd.Usage)
	}
	list, err := symbolic.List(cmd.Flag.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("%-12s: %s\n", "File", list.File)
	fmt.Printf("%-12s: %s\n", "Size", humanize.Bytes(uint64(list.Size)))
	fmt.Printf("%-12s: %s\n", "Class", list.Class)
	fmt.Printf("%-12s: %#x\n", "Dynamic", list.Segment.Offset)
	fmt.Printf("%-12s: %s (%d entries)\n", "Dynamic size", humanize.Bytes(uint64(list.Segment.Size)), len(list.Entries))
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Offset", "Tag", "Value"})
	for i, e := range list.Entries {
		table.Append([]string{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%#08x", e.Offset),
			e.String(),
			fmt.Sprintf("%#x", e.Value),
		})
	}
	table.Render()
	return nil
}
