package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/fentz26/icad/internal/models"
	"github.com/spf13/cobra"
)

var cassetteCmd = &cobra.Command{
	Use:     "cassette",
	Aliases: []string{"cst"},
	Short:   "Inspect cassettes",
}

var cassetteGetCmd = &cobra.Command{
	Use:   "get [cst-id]",
	Short: "Show a cassette record",
	Args:  cobra.ExactArgs(1),
	RunE:  runCassetteGet,
}

var cassetteTxCmd = &cobra.Command{
	Use:   "tx [cst-id]",
	Short: "Show a cassette's transaction history",
	Args:  cobra.ExactArgs(1),
	RunE:  runCassetteTx,
}

var txLimit int

func init() {
	cassetteCmd.AddCommand(cassetteGetCmd, cassetteTxCmd)
	cassetteTxCmd.Flags().IntVar(&txLimit, "limit", 20, "Maximum number of transactions")
}

func runCassetteGet(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/cassettes/" + url.PathEscape(args[0]))
	if err != nil {
		return err
	}

	var c models.Cassette
	if err := json.Unmarshal(resp, &c); err != nil {
		return err
	}

	fmt.Printf("ID:             %s\n", c.ID)
	fmt.Printf("Cycle:          %s\n", c.CycleID)
	fmt.Printf("Location:       %s (%s)\n", c.Location, c.PortName)
	fmt.Printf("Registration:   %s\n", c.RegStatus)
	fmt.Printf("ICA Result:     %s\n", c.ICAResult)
	fmt.Printf("ICA Required:   %v\n", c.ICARequired)
	fmt.Printf("Clean Required: %v\n", c.CleanRequired)
	fmt.Printf("Return Type:    %s\n", c.ReturnType)
	fmt.Printf("Unload Request: %s\n", c.UnloadRequest)
	if c.Dimension != "" || c.Capacity != "" {
		fmt.Printf("Dimension:      %s / %s\n", c.Dimension, c.Capacity)
	}
	if c.UpdatedBy != "" {
		fmt.Printf("Updated By:     %s\n", c.UpdatedBy)
	}
	fmt.Printf("Updated:        %s\n", c.UpdatedAt.Format(time.RFC3339))
	return nil
}

func runCassetteTx(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/cassettes/" + url.PathEscape(args[0]) + "/transactions?limit=" + strconv.Itoa(txLimit))
	if err != nil {
		return err
	}

	var txs []models.Transaction
	if err := json.Unmarshal(resp, &txs); err != nil {
		return err
	}

	if len(txs) == 0 {
		fmt.Println("No transactions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tCHANNEL\tUSER\tLOCATION")
	for _, t := range txs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Timestamp.Local().Format("2006-01-02 15:04:05"), t.Action, t.Outcome, t.Channel, t.UserID, t.Location)
	}
	w.Flush()
	return nil
}
