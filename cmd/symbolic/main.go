package main

import (
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/midbel/cli"
)

const helpText = `{{.Name}} makes shared libraries resolve their own symbols first, as if
linked with -Bsymbolic, by patching a copy of their dynamic section.

Usage:

  {{.Name}} command [arguments]

The commands are:

{{range .Commands}}{{printf "  %-9s %s" (name .) .Short}}
{{end}}

Use {{.Name}} [command] -h for more information about its usage.
`

var commands = []*cli.Command{
	{
		Usage:   "patch [-v] <library> <directory>",
		Short:   "write a symbolic copy of a library unless it is already symbolic",
		Alias:   []string{"fix"},
		Run:     runPatch,
		Default: true,
	},
	{
		Usage: "check [-v] <library...>",
		Short: "report whether libraries are linked with -Bsymbolic",
		Alias: []string{"inspect"},
		Run:   runCheck,
	},
	{
		Usage: "show <library>",
		Short: "list the entries of the dynamic section of a library",
		Alias: []string{"dump"},
		Run:   runShow,
	},
	{
		Usage: "batch [-v] [-j <jobs>] <manifest.toml>",
		Short: "patch all the libraries listed in a manifest",
		Run:   runBatch,
	},
}

func main() {
	cli.RunAndExit(commands, usage)
}

func usage() {
	data := struct {
		Name     string
		Commands []*cli.Command
	}{
		Name:     filepath.Base(os.Args[0]),
		Commands: commands,
	}
	fs := template.FuncMap{
		"name": func(c *cli.Command) string {
			if parts := strings.Fields(c.Usage); len(parts) > 0 {
				return parts[0]
			}
			return ""
		},
	}
	t := template.Must(template.New("help").Funcs(fs).Parse(helpText))
	t.Execute(os.Stderr, data)

	os.Exit(2)
}

func newLogger(verbose bool) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	if !verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return log.With(logger, "ts", log.DefaultTimestampUTC)
}
