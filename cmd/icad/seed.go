package main

import (
	"context"
	"fmt"

	"github.com/fentz26/icad/internal/fixtures"
	"github.com/fentz26/icad/internal/store"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Load cassettes and system codes from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	seed, err := fixtures.LoadSeed(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := seed.Apply(context.Background(), s)
	if err != nil {
		return fmt.Errorf("seed stopped after %s: %w", n, err)
	}
	fmt.Printf("Seeded %s\n", n)
	return nil
}
