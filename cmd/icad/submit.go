package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fentz26/icad/internal/inspection"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an ICA result to the daemon",
	RunE:  runSubmit,
}

var (
	submitCst    string
	submitResult string
	submitTID    string
	submitUser   string
)

func init() {
	hostname, _ := os.Hostname()
	submitCmd.Flags().StringVar(&submitCst, "cst", "", "Cassette ID (required)")
	submitCmd.Flags().StringVar(&submitResult, "result", "", "Inspection result, OK or NG (required)")
	submitCmd.Flags().StringVar(&submitTID, "tid", "", "Transaction ID (default: random)")
	submitCmd.Flags().StringVar(&submitUser, "user", fmt.Sprintf("cli@%s", hostname), "Operator ID")
	submitCmd.MarkFlagRequired("cst")
	submitCmd.MarkFlagRequired("result")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	tid := submitTID
	if tid == "" {
		tid = uuid.NewString()
	}
	ev := inspection.Event{
		TID:         tid,
		MessageName: inspection.MessageICAResult,
		UserID:      submitUser,
		CassetteID:  submitCst,
		ICAResult:   submitResult,
	}

	resp, err := apiPost("/events/ica-result", ev)
	if err != nil {
		return err
	}

	var reply inspection.Reply
	if err := json.Unmarshal(resp, &reply); err != nil {
		return err
	}

	fmt.Printf("TID:         %s\n", reply.TID)
	fmt.Printf("Return Code: %s (%s)\n", reply.ReturnCode, reply.ReturnCode.Name())
	fmt.Printf("Message:     %s\n", reply.ReturnMsg)
	fmt.Printf("Time:        %s\n", reply.TimeStamp)
	if !reply.ReturnCode.OK() {
		return fmt.Errorf("ICA result rejected: %s", reply.ReturnMsg)
	}
	return nil
}
