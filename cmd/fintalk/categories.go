package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fintalk/fintalk/internal/cli"
	"github.com/fintalk/fintalk/internal/model"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage transaction categories",
	}

	cmd.AddCommand(categoriesListCmd())
	cmd.AddCommand(categoriesAddCmd())
	return cmd
}

func categoriesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show all active categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			categories, err := store.GetCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to list categories: %w", err)
			}

			header := fmt.Sprintf("%-4s %-16s %-8s %s", "ID", "NAME", "KIND", "DESCRIPTION")
			fmt.Println(cli.TableHeaderStyle.Render(header))
			for _, c := range categories {
				row := fmt.Sprintf("%-4d %-16s %-8s %s", c.ID, c.Name, c.Kind, c.Description)
				fmt.Println(cli.TableCellStyle.Render(row))
			}
			return nil
		},
	}
}

func categoriesAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			income, _ := cmd.Flags().GetBool("income")
			description, _ := cmd.Flags().GetString("description")

			kind := model.KindExpense
			if income {
				kind = model.KindIncome
			}

			store, err := initStorage(ctx)
			if err != nil {
				return fmt.Errorf("failed to open storage: %w", err)
			}
			defer func() { _ = store.Close() }()

			category := &model.Category{Name: args[0], Kind: kind, Description: description}
			if err := store.SaveCategory(ctx, category); err != nil {
				return fmt.Errorf("failed to save category: %w", err)
			}
			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("Category %q added (id %d).", category.Name, category.ID)))
			return nil
		},
	}

	cmd.Flags().Bool("income", false, "the category applies to income")
	cmd.Flags().String("description", "", "optional description")
	return cmd
}
