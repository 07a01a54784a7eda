package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/fentz26/icad/internal/models"
	"github.com/spf13/cobra"
)

var alarmsCmd = &cobra.Command{
	Use:   "alarms",
	Short: "List recent alarms",
	RunE:  runAlarms,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health",
	RunE:  runStatus,
}

var alarmLimit int

func init() {
	alarmsCmd.Flags().IntVar(&alarmLimit, "limit", 20, "Maximum number of alarms")
}

func runAlarms(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/alarms?limit=" + strconv.Itoa(alarmLimit))
	if err != nil {
		return err
	}

	var alarms []models.Alarm
	if err := json.Unmarshal(resp, &alarms); err != nil {
		return err
	}

	if len(alarms) == 0 {
		fmt.Println("No alarms")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tCST\tUSER\tMESSAGE")
	for _, a := range alarms {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			a.RaisedAt.Local().Format("2006-01-02 15:04:05"), a.Kind, a.CassetteID, a.UserID, truncate(a.Message, 60))
	}
	w.Flush()
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	health, err := CheckHealth()
	if health != nil {
		fmt.Printf("Daemon:   %s (version %s)\n", apiAddr, health.Version)
		fmt.Printf("Database: %s [%s]\n", health.DB, health.Driver)
		if s := health.Scheduler; s != nil {
			fmt.Printf("Workers:  %d (queued %d, in flight %d, processed %d)\n", s.Workers, s.Queued, s.InFlight, s.Processed)
		}
	}
	return err
}
