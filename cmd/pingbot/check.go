package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/cobra"

	"github.com/hazz-dev/pingbot/internal/checker"
	"github.com/hazz-dev/pingbot/internal/config"
)

func executeCheck(cmd *cobra.Command, cfg *config.Config) error {
	c := checker.New(checker.DefaultRegistry(), discardLogger())
	return runChecks(cmd.Context(), cmd.OutOrStdout(), c, cfg)
}

type checkRow struct {
	svc       config.Service
	status    checker.Status
	supported bool
}

func runChecks(ctx context.Context, out io.Writer, c *checker.Checker, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rows := iter.Map(cfg.Enabled(), func(svc *config.Service) checkRow {
		st, ok := c.Check(ctx, *svc)
		return checkRow{svc: *svc, status: st, supported: ok}
	})

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SERVICE\tTYPE\tSTATUS\tRESPONSE\tERROR")
	allUp := true
	for _, r := range rows {
		status, resp := "unsupported", "-"
		if r.supported {
			status = r.status.Word()
			if r.status.Up {
				resp = r.status.Latency.Round(time.Millisecond).String()
			} else {
				allUp = false
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.svc.Name,
			r.svc.Type,
			status,
			resp,
			r.status.Error,
		)
	}
	w.Flush()

	if !allUp {
		return fmt.Errorf("one or more services are down")
	}
	return nil
}
