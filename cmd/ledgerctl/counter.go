package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tradeledger/internal/core/numerator"
)

// sequences maps the operator-facing prefix to its numbering layout.
var sequences = map[string]numerator.Config{
	"FAC": numerator.DefaultConfig("FAC"),
	"FAF": numerator.DefaultConfig("FAF"),
	"AV":  numerator.DefaultConfig("AV"),
	"AVF": numerator.DefaultConfig("AVF"),
	"PRO": numerator.DefaultConfig("PRO"),
	"REG": numerator.DefaultConfig("REG"),
	"JE":  numerator.JournalEntryConfig(),
}

func newCounterCmd(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "counter PREFIX YYYY-MM-DD LAST",
		Short: "Continue a numbering sequence after LAST (after importing documents)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, at, last, err := parseCounterArgs(args)
			if err != nil {
				return err
			}
			conf, err := load()
			if err != nil {
				return err
			}
			svc, closeFn, err := openServices(cmd.Context(), conf)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := svc.Numbers.SetNextNumber(cmd.Context(), cfg, at, last); err != nil {
				return err
			}
			cmd.Printf("%s sequence for %s continues after %d\n", cfg.Prefix, at.Format(time.DateOnly), last)
			return nil
		},
	}
}

func parseCounterArgs(args []string) (numerator.Config, time.Time, int64, error) {
	cfg, ok := sequences[strings.ToUpper(args[0])]
	if !ok {
		return numerator.Config{}, time.Time{}, 0, fmt.Errorf("unknown sequence %q", args[0])
	}
	at, err := time.Parse(time.DateOnly, args[1])
	if err != nil {
		return numerator.Config{}, time.Time{}, 0, fmt.Errorf("invalid date: %w", err)
	}
	last, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil || last < 0 {
		return numerator.Config{}, time.Time{}, 0, fmt.Errorf("invalid counter value %q", args[2])
	}
	return cfg, at, last, nil
}
