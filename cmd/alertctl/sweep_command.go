package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/mindalert/internal/alert"
	"github.com/kiranshivaraju/mindalert/internal/config"
)

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one delivery sweep over due alerts and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd.Context(), func(m *alert.Manager, cfg *config.Config) error {
				report, err := alert.NewSweeper(m, cfg.Delivery).SweepOnce(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d alerts due\n", report.Due)
				if report.Due > 0 {
					fmt.Fprintln(out, renderTable([]string{"Outcome", "Alerts"}, sweepRows(report), 1))
				}
				return nil
			})
		},
	}
}

func sweepRows(r alert.SweepReport) [][]string {
	outcomes := make([]string, 0, len(r.Outcomes))
	for o := range r.Outcomes {
		outcomes = append(outcomes, string(o))
	}
	sort.Strings(outcomes)

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{o, strconv.Itoa(r.Outcomes[alert.Outcome(o)])})
	}
	return rows
}
