package main

import (
	"flag"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/example/coverpaper/internal/store"
)

type historyCmd struct {
	*root
	fs    *flag.FlagSet
	limit int
}

func (h *historyCmd) FlagSet() *flag.FlagSet {
	return h.fs
}

func (h *historyCmd) Program() string {
	return h.subcommand("history")
}

func parseHistoryCmd(args []string, r *root) (*historyCmd, error) {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	h := &historyCmd{root: r, fs: fs}
	fs.SetOutput(r.stderr)
	fs.Usage = usageFunc(h)
	fs.IntVar(&h.limit, "n", 10, "number of entries to list, 0 for all")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, &UsageError{of: h}
	}
	return h, nil
}

func (h *historyCmd) Run() error {
	if h.noStore {
		return fmt.Errorf("history: the wallpaper store is disabled")
	}
	st, err := store.Open(h.config.Store.Path, store.WithLogger(h.logger()))
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer st.Close()

	entries, err := st.History(h.limit)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Fprintln(h.stdout, "no wallpapers recorded")
		return nil
	}
	fmt.Fprintln(h.stdout, "recent wallpapers (* marks entries that can still be restored):")
	for _, e := range entries {
		marker := " "
		if e.HasData {
			marker = "*"
		}
		fmt.Fprintf(h.stdout, "%s %4d  %-14s %8s  %s\n",
			marker, e.ID, humanize.Time(e.AcceptedAt), humanize.Bytes(uint64(e.Size)), e.Origin)
	}
	return nil
}
