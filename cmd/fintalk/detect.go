package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fintalk/fintalk/internal/cli"
	"github.com/fintalk/fintalk/internal/model"
	"github.com/fintalk/fintalk/internal/recurrence"
)

func detectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect recurring transactions",
		Long: `Analyze historical entries for recurring patterns: rent, salary,
subscriptions, anything that repeats on a regular cadence.

With --promote, detections at or above the confidence floor are saved as
recurring rules. With --upcoming, previously promoted rules expected this
month are listed instead of running detection.`,
		RunE: runDetect,
	}

	cmd.Flags().String("user", "local", "user whose history to analyze")
	cmd.Flags().Int("window", 365, "trailing window in days")
	cmd.Flags().Float64("min-confidence", 0.5, "minimum detection confidence to report")
	cmd.Flags().Bool("promote", false, "persist detections as recurring rules")
	cmd.Flags().Bool("upcoming", false, "list promoted rules due this month")

	return cmd
}

func runDetect(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	userID, _ := cmd.Flags().GetString("user")
	window, _ := cmd.Flags().GetInt("window")
	minConfidence, _ := cmd.Flags().GetFloat64("min-confidence")
	promote, _ := cmd.Flags().GetBool("promote")
	upcoming, _ := cmd.Flags().GetBool("upcoming")

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if upcoming {
		rules, err := store.ListRecurringRules(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load recurring rules: %w", err)
		}
		due := recurrence.Forecast(rules, time.Now())
		if len(due) == 0 {
			fmt.Println(cli.SubtleStyle.Render("Nothing recurring expected this month."))
			return nil
		}
		printPatternTable(due)
		return nil
	}

	since := time.Now().AddDate(0, 0, -window)
	entries, err := store.ListEntriesSince(ctx, userID, since)
	if err != nil {
		return fmt.Errorf("failed to load entries: %w", err)
	}

	patterns := recurrence.Detect(entries, recurrence.Options{MinConfidence: minConfidence})
	if len(patterns) == 0 {
		fmt.Println(cli.SubtleStyle.Render("No recurring patterns found."))
		return nil
	}
	printPatternTable(patterns)

	if !promote {
		return nil
	}

	promoted := 0
	for _, p := range patterns {
		if err := store.UpsertRecurringRule(ctx, userID, p); err != nil {
			return fmt.Errorf("failed to save rule %q: %w", p.Keywords, err)
		}
		promoted++
	}
	fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("Promoted %d recurring rules.", promoted)))
	return nil
}

func printPatternTable(patterns []model.RecurringPattern) {
	header := fmt.Sprintf("%-24s %-10s %-10s %-12s %-6s", "DESCRIPTION", "FREQ", "AVG", "NEXT", "CONF")
	fmt.Println(cli.TableHeaderStyle.Render(header))
	for _, p := range patterns {
		row := fmt.Sprintf("%-24s %-10s %-10s %-12s %.2f",
			truncate(p.Description, 24), p.Frequency, p.AvgAmount.StringFixed(2),
			p.NextExpected.Format("2006-01-02"), p.Confidence)
		fmt.Println(cli.TableCellStyle.Render(row))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
