package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/rpggio/fundflow/internal/config"
	"github.com/rpggio/fundflow/internal/sqlite"
	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild state from the event log and compare it with stored rows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		a, err := openEngine(cmd.Context(), cfg, slog.New(slog.DiscardHandler), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		snap, err := a.engine.Rebuild(cmd.Context())
		if err != nil {
			return err
		}
		diffs, err := a.engine.Verify(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "replayed %d events: %d projects, %d packages\n", snap.LastSeq, len(snap.Projects), len(snap.Packages))
		for _, diff := range diffs {
			fmt.Fprintln(out, diff)
		}
		if len(diffs) > 0 {
			return fmt.Errorf("%d differences between event log and stored state", len(diffs))
		}
		fmt.Fprintln(out, "state matches event log")
		return nil
	},
}

var apikeyDescription string

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage bearer tokens",
}

var apikeyAddCmd = &cobra.Command{
	Use:   "add <token> <identity>",
	Short: "Register a bearer token for an identity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(cfg config.Config) string { return cfg.DB.Path }, func(ctx context.Context, db *sqlite.DB) error {
			if err := sqlite.NewAPIKeys(db).Add(ctx, args[0], args[1], apikeyDescription); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added key for %s\n", args[1])
			return nil
		})
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Administer the token ledger",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <token> <holder> <supply>",
	Short: "Create a token with its whole supply held by holder",
	Args:  cobra.ExactArgs(3),
	RunE: ledgerCommand(2, func(ctx context.Context, ledger *sqlite.TokenLedger, args []string, amount uint64) (string, error) {
		return fmt.Sprintf("issued %d %s to %s", amount, args[0], args[1]), ledger.Issue(ctx, args[0], args[1], amount)
	}),
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint <token> <to> <amount>",
	Short: "Mint additional supply of a token",
	Args:  cobra.ExactArgs(3),
	RunE: ledgerCommand(2, func(ctx context.Context, ledger *sqlite.TokenLedger, args []string, amount uint64) (string, error) {
		return fmt.Sprintf("minted %d %s to %s", amount, args[0], args[1]), ledger.Mint(ctx, args[0], args[1], amount)
	}),
}

var tokenApproveCmd = &cobra.Command{
	Use:   "approve <token> <owner> <spender> <amount>",
	Short: "Set the allowance of spender over owner's balance",
	Args:  cobra.ExactArgs(4),
	RunE: ledgerCommand(3, func(ctx context.Context, ledger *sqlite.TokenLedger, args []string, amount uint64) (string, error) {
		return fmt.Sprintf("%s may spend %d %s of %s", args[2], amount, args[0], args[1]), ledger.Approve(ctx, args[0], args[1], args[2], amount)
	}),
}

var tokenBalanceCmd = &cobra.Command{
	Use:   "balance <token> <holder>",
	Short: "Print the balance of a holder",
	Args:  cobra.ExactArgs(2),
	RunE: ledgerCommand(-1, func(ctx context.Context, ledger *sqlite.TokenLedger, args []string, _ uint64) (string, error) {
		balance, err := ledger.BalanceOf(ctx, args[0], args[1])
		return strconv.FormatUint(balance, 10), err
	}),
}

func init() {
	apikeyAddCmd.Flags().StringVar(&apikeyDescription, "description", "", "note stored with the key")
	apikeyCmd.AddCommand(apikeyAddCmd)

	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenMintCmd)
	tokenCmd.AddCommand(tokenApproveCmd)
	tokenCmd.AddCommand(tokenBalanceCmd)
}

// ledgerCommand runs fn against the token database. amountArg is the index of
// the amount argument, or -1 when the command takes none.
func ledgerCommand(amountArg int, fn func(ctx context.Context, ledger *sqlite.TokenLedger, args []string, amount uint64) (string, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var amount uint64
		if amountArg >= 0 {
			parsed, err := strconv.ParseUint(args[amountArg], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[amountArg], err)
			}
			amount = parsed
		}
		return withDB(cmd.Context(), func(cfg config.Config) string { return cfg.Tokens.Path }, func(ctx context.Context, db *sqlite.DB) error {
			msg, err := fn(ctx, sqlite.NewTokenLedger(db), args, amount)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		})
	}
}

func withDB(ctx context.Context, path func(config.Config) string, fn func(context.Context, *sqlite.DB) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	db, err := openDB(path(cfg))
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, db)
}
