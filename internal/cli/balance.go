package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"playersync/internal/rpc"
)

func (a *app) newBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Balance commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <player>",
		Short: "Show a player's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.call(cmd, func(ctx context.Context, c *rpc.Client) (any, error) {
				return c.GetBalance(ctx, args[0])
			})
		},
	})
	cmd.AddCommand(a.amountCmd("set", "Replace a player's balance", (*rpc.Client).SetBalance))
	cmd.AddCommand(a.amountCmd("add", "Credit a player", (*rpc.Client).AddBalance))
	cmd.AddCommand(a.amountCmd("remove", "Debit a player", (*rpc.Client).RemoveBalance))
	cmd.AddCommand(&cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Move funds between two players",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			return a.call(cmd, func(ctx context.Context, c *rpc.Client) (any, error) {
				return c.TransferBalance(ctx, args[0], args[1], amount)
			})
		},
	})

	return cmd
}

type amountCall func(c *rpc.Client, ctx context.Context, player string, amount float64) (*rpc.BalanceResponse, error)

func (a *app) amountCmd(use, short string, call amountCall) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <player> <amount>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			return a.call(cmd, func(ctx context.Context, c *rpc.Client) (any, error) {
				return call(c, ctx, args[0], amount)
			})
		},
	}
}

func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}
