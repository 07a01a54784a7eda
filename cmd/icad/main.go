package main

import (
	"fmt"
	"os"

	"github.com/fentz26/icad/internal/config"
	"github.com/fentz26/icad/internal/controlplane"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at link time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "icad",
	Short: "icad - ICA inspection result orchestrator",
	Long: `icad receives ICA inspection results for transport cassettes, validates them
against the cassette master, applies the result, notifies MES and dispatches
the cassette onward.`,
	SilenceUsage: true,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr    string
	configPath string
	dbPath     string
	dbDriver   string

	settings = config.New()
)

func init() {
	controlplane.Version = version

	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:7466", "API server address")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", config.DefaultDBPath(), "Database DSN (SQLite path or Postgres URL)")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "driver", "sqlite", "Database driver (sqlite or pgx)")
	bindFlag(settings, "database.dsn", "db")
	bindFlag(settings, "database.driver", "driver")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(cassetteCmd)
	rootCmd.AddCommand(modeCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(alarmsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(versionCmd)
}

func bindFlag(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

// loadConfig merges defaults, the config file, ICAD_* env and flags.
func loadConfig() (*config.Config, error) {
	return config.Load(settings, configPath)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the icad version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("icad %s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
