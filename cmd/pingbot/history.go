package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hazz-dev/pingbot/internal/storage"
)

type historyStore interface {
	AllLatest(ctx context.Context) ([]storage.Entry, error)
	ServiceHistory(ctx context.Context, service string, limit, offset int) ([]storage.Entry, int, error)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func executeHistory(cmd *cobra.Command, db historyStore) error {
	out := cmd.OutOrStdout()
	entries, err := db.AllLatest(context.Background())
	if err != nil {
		return fmt.Errorf("querying journal: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No deliveries journaled. Run 'pingbot run' with journal.path set first.")
		return nil
	}
	printEntries(out, entries)
	return nil
}

func executeServiceHistory(cmd *cobra.Command, db historyStore, service string, limit int) error {
	out := cmd.OutOrStdout()
	entries, total, err := db.ServiceHistory(context.Background(), service, limit, 0)
	if err != nil {
		return fmt.Errorf("querying journal: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(out, "No deliveries journaled for %q.\n", service)
		return nil
	}
	printEntries(out, entries)
	fmt.Fprintf(out, "showing %d of %d\n", len(entries), total)
	return nil
}

func printEntries(out io.Writer, entries []storage.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tSTATUS\tDELIVERED\tOBSERVED\tERROR")
	for _, e := range entries {
		delivered := "yes"
		if !e.Delivered {
			delivered = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Service,
			e.Status,
			delivered,
			e.ObservedAt.Local().Format("2006-01-02 15:04:05"),
			e.Error,
		)
	}
	w.Flush()
}
