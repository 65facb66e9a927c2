package main

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Veraticus/clanbank/internal/cli"
	"github.com/Veraticus/clanbank/internal/model"
	"github.com/Veraticus/clanbank/internal/tui"
)

// resolveItem turns free text into one item. An exact or single match is
// used directly; otherwise the member picks from the matches. With allowNew,
// text that matches nothing is taken as a new item name.
func resolveItem(ctx context.Context, cmd *cobra.Command, title, term string, search tui.SearchFunc, allowNew bool) (model.CatalogMatch, error) {
	key := model.NormalizeKey(term)
	matches := search(term)
	if len(matches) == 0 {
		if allowNew && key != "" {
			return model.CatalogMatch{Key: key, DisplayName: term}, nil
		}
		return model.CatalogMatch{}, fmt.Errorf("%w for %q", cli.ErrNoMatches, term)
	}
	for _, m := range matches {
		if m.Key == key {
			return m, nil
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	if plain, _ := cmd.Flags().GetBool("plain"); plain {
		return cli.NewCLIPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).PickMatch(ctx, matches)
	}

	choice, err := tui.Run(ctx, tui.Config{
		Search:      search,
		Title:       title,
		InitialTerm: term,
	}, tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))
	if err != nil {
		return model.CatalogMatch{}, err
	}
	return choice.Match, nil
}

// holdingSearch searches only the items userID currently holds.
func holdingSearch(ctx context.Context, a *app, userID string) tui.SearchFunc {
	return func(term string) []model.CatalogMatch {
		matches, err := a.engine.SearchUserHoldings(ctx, userID, term, 0)
		if err != nil {
			slog.Warn("Failed to search holdings", "user", userID, "error", err)
			return nil
		}
		return matches
	}
}

// catalogSearch searches the whole catalog.
func catalogSearch(a *app) tui.SearchFunc {
	return func(term string) []model.CatalogMatch {
		return a.engine.SearchCatalog(term, 0)
	}
}
