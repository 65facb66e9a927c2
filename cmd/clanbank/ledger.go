package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/clanbank/internal/cli"
	"github.com/Veraticus/clanbank/internal/ledger"
)

func depositCmd() *cobra.Command {
	var location, category string

	cmd := &cobra.Command{
		Use:   "deposit <user-id> <item> <quantity>",
		Short: "Deposit items into the clan bank",
		Long: `Record that a member put items into the clan bank and award them reputation.

The item is matched against the catalog; when several items match you pick
one. Deposits above an item's storage limit are trimmed to what fits.`,
		Example: `  clanbank deposit 1234 "P4-AR Rifle" 3 --location Area18
  clanbank deposit 1234 gold 250`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, term := args[0], args[1]

			quantity, err := ledger.ParseQuantity(args[2])
			if err != nil {
				return err
			}

			return withApp(ctx, func(a *app) error {
				match, err := resolveItem(ctx, cmd, "What are you depositing?", term, catalogSearch(a), true)
				if err != nil {
					return err
				}

				opts := []ledger.DepositOption{ledger.WithLocation(location)}
				if category != "" {
					opts = append(opts, ledger.WithCategoryHint(category))
				} else if match.Category != "" {
					opts = append(opts, ledger.WithCategoryHint(match.Category))
				}

				res, err := a.engine.Deposit(ctx, userID, match.Key, quantity, opts...)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.render.Deposit(userID, res))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&location, "location", "l", "", "where the items were left")
	cmd.Flags().StringVarP(&category, "category", "c", "", "category hint for items the bank has not seen before")

	return cmd
}

func withdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <user-id> <item> <quantity>",
		Short: "Withdraw items a member deposited",
		Long: `Take items back out of the clan bank. Members can only withdraw from what
they hold; reputation earned on deposit is kept.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, term := args[0], args[1]

			quantity, err := ledger.ParseQuantity(args[2])
			if err != nil {
				return err
			}

			return withApp(ctx, func(a *app) error {
				match, err := resolveItem(ctx, cmd, "What are you withdrawing?", term, holdingSearch(ctx, a, userID), false)
				if err != nil {
					return err
				}

				res, err := a.engine.Withdraw(ctx, userID, match.Key, quantity)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.render.Withdraw(userID, res))
				return nil
			})
		},
	}
}

func transferCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "transfer <from-user-id> <to-user-id> <item> <quantity>",
		Short: "Hand held items to another member",
		Long: `Move part of one member's holding to another member. The clan stock does
not change and no reputation moves.`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			from, to, term := args[0], args[1], args[2]

			quantity, err := ledger.ParseQuantity(args[3])
			if err != nil {
				return err
			}

			return withApp(ctx, func(a *app) error {
				match, err := resolveItem(ctx, cmd, "What are you handing over?", term, holdingSearch(ctx, a, from), false)
				if err != nil {
					return err
				}

				selections := ledger.NewSelectionRegistry(a.cfg.Ledger.SelectionTTL, time.Now)
				sel, err := selections.Create(from, match.Key, quantity)
				if err != nil {
					return err
				}

				if !yes {
					question := fmt.Sprintf("Give %d of %s to %s?", quantity, match.DisplayName, a.render.Name(to))
					ok, err := cli.NewCLIPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).Confirm(ctx, question)
					if err != nil {
						return err
					}
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), cli.SubtleStyle.Render("Transfer cancelled."))
						return nil
					}
				}

				taken, err := selections.Take(sel.ID, from)
				if err != nil {
					return err
				}
				res, err := a.engine.Transfer(ctx, taken, to)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.render.Transfer(res))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func searchCmd() *cobra.Command {
	var (
		userID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search the item catalog",
		Long:  `Search the catalog, or with --user only the items that member holds.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if limit < 0 {
				return fmt.Errorf("%w: limit cannot be negative", ledger.ErrInvalidRequest)
			}

			return withApp(ctx, func(a *app) error {
				if userID == "" {
					fmt.Fprintln(cmd.OutOrStdout(), a.render.Matches(a.engine.SearchCatalog(args[0], limit)))
					return nil
				}
				matches, err := a.engine.SearchUserHoldings(ctx, userID, args[0], limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.render.Matches(matches))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "only search items this member holds")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results (default from ledger.search_limit)")

	return cmd
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <item> [user-id]",
		Short: "Show how much of an item the clan has",
		Long:  `Show the clan-wide stock of an item, and a member's share when a user ID is given.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withApp(ctx, func(a *app) error {
				total, err := a.engine.CurrentBalance(ctx, args[0])
				if err != nil {
					return err
				}
				line := fmt.Sprintf("%s: %d in the bank", args[0], total)

				if len(args) == 2 {
					held, err := a.engine.UserHolding(ctx, args[1], args[0])
					if err != nil {
						return err
					}
					line += fmt.Sprintf(", %d held by %s", held, a.render.Name(args[1]))
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(line))
				return nil
			})
		},
	}
}

func reputationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reputation <user-id>",
		Short: "Show a member's reputation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			return withApp(ctx, func(a *app) error {
				points, err := a.engine.UserReputation(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), a.render.Balance(args[0], points))
				return nil
			})
		},
	}
}
