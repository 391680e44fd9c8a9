package ctl

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/SHAIKYASIR/skillsync/pkg/state"
	"github.com/SHAIKYASIR/skillsync/pkg/store"
	"github.com/SHAIKYASIR/skillsync/pkg/store/db"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [db-path]",
		Short: "Summarize rows and index entries of a stopped database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectDatabase(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func inspectDatabase(ctx context.Context, w io.Writer, path string) error {
	path = state.StorePath(path)
	d, err := db.Open(path, db.Options{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer d.Close()

	st, err := store.Scan(ctx, d)
	if err != nil {
		return err
	}

	version := st.Version
	if version == "" {
		version = "unversioned"
	}
	fmt.Fprintf(w, "Database: %s\n", path)
	fmt.Fprintf(w, "  Layout version: %s\n", version)
	fmt.Fprintf(w, "  Disk usage: %s\n", humanize.IBytes(st.DiskSize))

	fmt.Fprintf(w, "\nRows:\n")
	total := 0
	for _, t := range sortedKeys(st.Rows) {
		fmt.Fprintf(w, "  %-12s %s\n", t, humanize.Comma(int64(st.Rows[t])))
		total += st.Rows[t]
	}
	fmt.Fprintf(w, "  %-12s %s\n", "total", humanize.Comma(int64(total)))

	fmt.Fprintf(w, "\nIndex entries:\n")
	for _, ix := range sortedKeys(st.Indexes) {
		fmt.Fprintf(w, "  %-28s %s\n", ix, humanize.Comma(int64(st.Indexes[ix])))
	}
	if st.Unknown > 0 {
		fmt.Fprintf(w, "\nUnrecognized keys: %d\n", st.Unknown)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
