package main

import (
	"flag"
	"fmt"

	"github.com/example/coverpaper/internal/display"
)

type monitorsCmd struct {
	*root
	fs *flag.FlagSet
}

func (m *monitorsCmd) FlagSet() *flag.FlagSet {
	return m.fs
}

func (m *monitorsCmd) Program() string {
	return m.subcommand("monitors")
}

func parseMonitorsCmd(args []string, r *root) (*monitorsCmd, error) {
	fs := flag.NewFlagSet("monitors", flag.ContinueOnError)
	cmd := &monitorsCmd{root: r, fs: fs}
	fs.SetOutput(r.stderr)
	fs.Usage = usageFunc(cmd)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, &UsageError{of: cmd}
	}
	return cmd, nil
}

func (m *monitorsCmd) Run() error {
	monitors, err := listMonitors()
	if err != nil {
		return fmt.Errorf("list monitors: %w", err)
	}
	printMonitors(m, monitors)
	return nil
}

var listMonitors = display.ListMonitors

func printMonitors(m *monitorsCmd, monitors []display.Monitor) {
	if len(monitors) == 0 {
		fmt.Fprintln(m.stdout, "no monitors available")
		return
	}
	fmt.Fprintln(m.stdout, "monitors (* marks the primary monitor):")
	for _, mon := range monitors {
		marker := " "
		if mon.Primary {
			marker = "*"
		}
		r := mon.Rect
		fmt.Fprintf(m.stdout, "%s %d: %s %dx%d+%d+%d %s\n",
			marker, mon.Index, mon.Name, r.Dx(), r.Dy(), r.Min.X, r.Min.Y, mon.Label())
	}
}
