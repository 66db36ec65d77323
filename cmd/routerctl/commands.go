package main

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hxuan190/steamm-router/internal/domain"
)

func withApp(opts *options, run func(a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		a, err := newApp(opts)
		if err != nil {
			return err
		}
		defer a.close()
		return run(a, args)
	}
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("amount must be a positive integer, got %q", s)
	}
	return v, nil
}

func poolsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "Sync the registry and list routable pools",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(a *app, _ []string) error {
			ctx, cancel := a.context()
			defer cancel()
			snap, err := a.agg.Snapshot(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"pools": snap.Pools,
				"banks": snap.Banks(),
			})
		}),
	}
}

type routeOut struct {
	Path  []string `json:"path"`
	Pools []string `json:"pools"`
}

func toRouteOut(r domain.Route) routeOut {
	return routeOut{Path: r.Path(), Pools: r.PoolIDs()}
}

func routesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "routes <from> <to>",
		Short: "List candidate routes between two coin types",
		Args:  cobra.ExactArgs(2),
		RunE: withApp(opts, func(a *app, args []string) error {
			ctx, cancel := a.context()
			defer cancel()
			routes, err := a.agg.FindRoutes(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			out := make([]routeOut, len(routes))
			for i, r := range routes {
				out[i] = toRouteOut(r)
			}
			return printJSON(out)
		}),
	}
}

func quoteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "quote <from> <to> <amount>",
		Short: "Quote every candidate route and show the best",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(opts, func(a *app, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			ctx, cancel := a.context()
			defer cancel()
			res, err := a.agg.Quote(ctx, args[0], args[1], amount)
			if err != nil {
				return err
			}

			type candidate struct {
				routeOut
				AmountOut uint64 `json:"amountOut,omitempty"`
				Error     string `json:"error,omitempty"`
			}
			cands := make([]candidate, len(res.Candidates))
			for i, c := range res.Candidates {
				cands[i].routeOut = toRouteOut(c.Route)
				if c.Err != nil {
					cands[i].Error = c.Err.Error()
				} else {
					cands[i].AmountOut = c.Quote.AmountOut
				}
			}
			return printJSON(map[string]any{
				"best":       toRouteOut(res.Route),
				"quote":      res.Quote,
				"candidates": cands,
			})
		}),
	}
}

func buildCmd(opts *options) *cobra.Command {
	var (
		sender    string
		recipient string
		slippage  int
	)
	cmd := &cobra.Command{
		Use:   "build <from> <to> <amount>",
		Short: "Build the unsigned swap bundle for the best route",
		Args:  cobra.ExactArgs(3),
		RunE: withApp(opts, func(a *app, args []string) error {
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}
			req := &domain.SwapRequest{
				Sender:     sender,
				Recipient:  recipient,
				InputType:  args[0],
				OutputType: args[1],
				Amount:     amount,
			}
			if slippage >= 10_000 {
				return fmt.Errorf("slippage-bps must be below 10000, got %d", slippage)
			}
			if slippage >= 0 {
				bps := uint16(slippage)
				req.SlippageBps = &bps
			}

			ctx, cancel := a.context()
			defer cancel()
			plan, err := a.agg.BuildSwap(ctx, req)
			if err != nil {
				return err
			}
			stages := make([]string, len(plan.Stages))
			for i, s := range plan.Stages {
				stages[i] = s.String()
			}
			return printJSON(map[string]any{
				"route":           toRouteOut(plan.Route),
				"quote":           plan.Quote,
				"minAmountOut":    plan.MinAmountOut,
				"inputCoin":       plan.InputCoin,
				"stages":          stages,
				"transactionKind": base64.StdEncoding.EncodeToString(plan.TxKind),
			})
		}),
	}
	cmd.Flags().StringVar(&sender, "sender", "", "address that signs and pays (required)")
	cmd.Flags().StringVar(&recipient, "recipient", "", "output recipient, defaults to sender")
	cmd.Flags().IntVar(&slippage, "slippage-bps", -1, "slippage tolerance in bps; negative uses the configured default")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}
