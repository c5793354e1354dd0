package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fintalk/fintalk/internal/cli"
	"github.com/fintalk/fintalk/internal/learning"
	"github.com/fintalk/fintalk/internal/model"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Manage learned category patterns",
	}

	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsForgetCmd())
	return cmd
}

func patternsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show learned patterns, strongest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			userID, _ := cmd.Flags().GetString("user")
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			patterns, err := learning.NewStore(store, nil).List(ctx, userID, limit)
			if err != nil {
				return fmt.Errorf("failed to list patterns: %w", err)
			}
			if len(patterns) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No patterns learned yet."))
				return nil
			}

			header := fmt.Sprintf("%-24s %-8s %-14s %-5s %-5s", "KEYWORDS", "KIND", "CATEGORY", "SEEN", "CONF")
			fmt.Println(cli.TableHeaderStyle.Render(header))
			for _, p := range patterns {
				row := fmt.Sprintf("%-24s %-8s %-14s %-5d %.2f",
					truncate(p.Keywords, 24), p.Kind, truncate(p.CategoryName, 14),
					p.Occurrences, p.Confidence)
				fmt.Println(cli.TableCellStyle.Render(row))
			}
			return nil
		},
	}

	cmd.Flags().String("user", "local", "user whose patterns to list")
	cmd.Flags().Int("limit", 50, "maximum patterns to show")
	return cmd
}

func patternsForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget <description>",
		Short: "Remove a learned pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, _ := cmd.Flags().GetString("user")
			income, _ := cmd.Flags().GetBool("income")

			kind := model.KindExpense
			if income {
				kind = model.KindIncome
			}

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			if err := learning.NewStore(store, nil).Forget(ctx, userID, args[0], kind); err != nil {
				return fmt.Errorf("failed to forget pattern: %w", err)
			}
			fmt.Println(cli.SuccessStyle.Render("Pattern forgotten."))
			return nil
		},
	}

	cmd.Flags().String("user", "local", "user whose pattern to forget")
	cmd.Flags().Bool("income", false, "the pattern is for income, not expense")
	return cmd
}
