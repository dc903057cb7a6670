// Package main is ledgerctl, the operator CLI of tradeledger.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tradeledger/internal/app"
	"tradeledger/internal/config"
	appctx "tradeledger/internal/core/context"
	"tradeledger/internal/infrastructure/storage/postgres"
	"tradeledger/pkg/logger"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	var verbose bool

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operate the tradeledger invoice and journal engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if verbose {
				level = "debug"
			}
			log, err := logger.New(logger.Config{Level: level, Development: true, Service: "ledgerctl"})
			if err != nil {
				return err
			}
			logger.SetDefault(log)

			ctx := appctx.StartTrace(cmd.Context(), appctx.OriginCLI)
			cmd.SetContext(appctx.WithActor(ctx, cliActor()))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	loadConfig := func() (*config.Config, error) { return config.Load(envFile) }

	root.AddCommand(
		newMigrateCmd(loadConfig),
		newSeedCmd(loadConfig),
		newVerifyCmd(loadConfig),
		newTokenCmd(loadConfig),
		newCounterCmd(loadConfig),
		newDemoCmd(),
	)
	return root
}

// cliActor stamps audit rows written by ledgerctl with the OS user.
func cliActor() *appctx.Actor {
	name := os.Getenv("USER")
	if name == "" {
		name = "unknown"
	}
	return &appctx.Actor{UserID: "ledgerctl:" + name, Name: name}
}

type configLoader func() (*config.Config, error)

// openServices connects to the configured database and wires the services.
// The returned func releases the pool.
func openServices(ctx context.Context, cfg *config.Config) (*app.Services, func(), error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, nil, err
	}
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.ApplicationName = "ledgerctl"
	poolCfg.MaxConns, poolCfg.MinConns = 2, 0
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	txm := postgres.NewTxManager(pool).WithStatementTimeout(cfg.DBStatementTimeout)
	storage, err := app.PostgresStorage(pool, txm)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	svc := app.New(storage, app.Options{
		BaseCurrency:      cfg.BaseCurrency,
		SettlementJournal: cfg.SettlementJournalEnabled,
	})
	return svc, pool.Close, nil
}
