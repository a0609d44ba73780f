package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/mindalert/internal/alert"
	"github.com/kiranshivaraju/mindalert/internal/config"
	"github.com/kiranshivaraju/mindalert/pkg/models"
)

func newAlertsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and retry email alerts",
	}
	cmd.AddCommand(newAlertsStatsCommand(ctx))
	cmd.AddCommand(newAlertsDeadCommand(ctx))
	cmd.AddCommand(newAlertsRetryCommand(ctx))
	return cmd
}

func newAlertsStatsCommand(ctx *commandContext) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show delivery statistics for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("--user must be a UUID: %w", err)
			}
			return ctx.withManager(cmd.Context(), func(m *alert.Manager, _ *config.Config) error {
				stats, err := m.Stats(cmd.Context(), userID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Metric", "Count"}, statsRows(stats), 1))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "User ID")
	return cmd
}

func newAlertsDeadCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "dead",
		Short: "List alerts that exhausted their retries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withManager(cmd.Context(), func(m *alert.Manager, _ *config.Config) error {
				dead, err := m.Dead(cmd.Context(), limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Type", "Recipient", "Retries", "Created", "Last error"},
					alertRows(dead), 3,
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum alerts to list")
	return cmd
}

func newAlertsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <alert-id>",
		Short: "Attempt delivery of one alert now, ignoring backoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid alert id: %w", err)
			}
			return ctx.withManager(cmd.Context(), func(m *alert.Manager, _ *config.Config) error {
				outcome, err := m.RetryAlert(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", id, outcome)
				return nil
			})
		},
	}
}

func statsRows(s models.AlertStats) [][]string {
	rows := [][]string{
		{"total", strconv.Itoa(s.Total)},
		{"sent", strconv.Itoa(s.Sent)},
		{"failed", strconv.Itoa(s.Failed)},
		{"pending", strconv.Itoa(s.Pending)},
		{"config gaps", strconv.Itoa(s.ConfigGaps)},
	}
	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		rows = append(rows, []string{"type " + t, strconv.Itoa(s.ByType[models.AlertType(t)])})
	}
	return rows
}

func alertRows(alerts []*models.EmailAlert) [][]string {
	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		lastErr := ""
		if a.ErrorMessage != nil {
			lastErr = ellipsize(*a.ErrorMessage, 60)
		}
		rows = append(rows, []string{
			a.ID.String(),
			string(a.AlertType),
			a.RecipientEmail,
			fmt.Sprintf("%d/%d", a.RetryCount, a.MaxRetries),
			a.CreatedAt.Format(time.RFC3339),
			lastErr,
		})
	}
	return rows
}

func ellipsize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
