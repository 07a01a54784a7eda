package main

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/fentz26/icad/internal/modegate"
	"github.com/fentz26/icad/internal/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	consoleUser    string
	consoleDomain  string
	consoleNoStart bool
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Launch the interactive operator console",
	RunE:  runConsole,
}

func init() {
	consoleCmd.Flags().StringVar(&consoleUser, "user", "OPERATOR", "User ID stamped on results submitted from the console")
	consoleCmd.Flags().StringVar(&consoleDomain, "domain", modegate.DomainICAAuto, "Mode domain toggled by auto/manual")
	consoleCmd.Flags().BoolVar(&consoleNoStart, "no-start", false, "Do not start a background daemon when none is reachable")
}

func runConsole(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) || !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("console requires an interactive terminal")
	}
	if !isDaemonRunning() {
		if consoleNoStart {
			return fmt.Errorf("icad daemon not reachable at %s", apiAddr)
		}
		fmt.Println("icad daemon not running. Starting background service...")
		if err := startDaemon(); err != nil {
			return fmt.Errorf("failed to start daemon: %w", err)
		}
	}

	app := tui.New(apiAddr, consoleUser, consoleDomain)
	if err := app.Run(); err != nil {
		return fmt.Errorf("console error: %w", err)
	}
	return nil
}

func isDaemonRunning() bool {
	health, err := CheckHealth()
	return err == nil && health != nil && health.OK
}

// startDaemon runs "icad serve" detached, forwarding the store and config
// flags, and waits for /health to answer.
func startDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	serveArgs := []string{"serve", "--db", dbPath, "--driver", dbDriver}
	if configPath != "" {
		serveArgs = append(serveArgs, "--config", configPath)
	}
	proc := exec.Command(exe, serveArgs...)
	configureDaemonProc(proc)
	proc.Stdin = nil
	proc.Stdout = nil
	proc.Stderr = nil

	if err := proc.Start(); err != nil {
		return err
	}

	fmt.Print("   Waiting for daemon...")
	for i := 0; i < 20; i++ {
		if isDaemonRunning() {
			fmt.Println(" Done.")
			return nil
		}
		time.Sleep(250 * time.Millisecond)
		fmt.Print(".")
	}
	fmt.Println(" Timeout!")
	return fmt.Errorf("daemon started but API not reachable at %s", apiAddr)
}
