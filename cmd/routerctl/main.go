// Command routerctl queries routes and quotes against a live fullnode using
// the same configuration as the API server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hxuan190/steamm-router/internal/adapters/chain"
	"github.com/hxuan190/steamm-router/internal/adapters/oracle"
	"github.com/hxuan190/steamm-router/internal/adapters/persistence"
	"github.com/hxuan190/steamm-router/internal/aggregator"
	"github.com/hxuan190/steamm-router/internal/config"
	"github.com/hxuan190/steamm-router/internal/services"
	"github.com/hxuan190/steamm-router/internal/services/registry"
)

type options struct {
	envFile  string
	dbPath   string
	logLevel string
	timeout  time.Duration
}

// app is everything a command needs, built once per invocation.
type app struct {
	agg     *aggregator.Service
	reg     *registry.Service
	client  *chain.Client
	store   *persistence.Storage
	timeout time.Duration
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	a.client.Close()
}

func (a *app) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.timeout)
}

func newApp(opts *options) (*app, error) {
	if err := godotenv.Load(opts.envFile); err != nil && opts.envFile != ".env" {
		return nil, fmt.Errorf("load %s: %w", opts.envFile, err)
	}
	services.SetLevel(opts.logLevel)

	chainCfg := &config.ChainConfig{}
	protocolCfg := &config.ProtocolConfig{}
	routerCfg := &config.RouterConfig{}
	oracleCfg := &config.OracleConfig{}
	for _, c := range []interface{ Load() error }{chainCfg, protocolCfg, routerCfg, oracleCfg} {
		if err := c.Load(); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	client, events, err := chain.Dial(ctx, chainCfg)
	if err != nil {
		return nil, err
	}

	a := &app{client: client, timeout: opts.timeout}
	var store registry.Store
	if opts.dbPath != "" {
		if a.store, err = persistence.NewStorage(opts.dbPath); err != nil {
			client.Close()
			return nil, err
		}
		store = a.store
	}

	pkgs := protocolCfg.Packages()
	a.reg = registry.New(events, store, pkgs, routerCfg.EventPageSize)

	rc := routerCfg.RouterConfig(pkgs)
	rc.OracleUpdateFee = oracleCfg.UpdateFee
	prices := &oracle.Source{Chain: client, Hermes: oracle.NewHermes(oracleCfg.HermesURL, oracleCfg.RequestTimeout)}
	a.agg = aggregator.New(a.reg, client, prices, rc)
	return a, nil
}

func printJSON(v any) error {
	out, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	opts := &options{}
	root := &cobra.Command{
		Use:           "routerctl",
		Short:         "Inspect Steamm routes, quotes and swap bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "dotenv file with chain and protocol settings")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "registry database; empty syncs from genesis every run")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall command timeout")

	root.AddCommand(
		poolsCmd(opts),
		routesCmd(opts),
		quoteCmd(opts),
		buildCmd(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
