package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/fentz26/icad/internal/modegate"
	"github.com/spf13/cobra"
)

var modeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Show or switch the AUTO/MANUAL mode",
}

var modeGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current mode",
	Args:  cobra.NoArgs,
	RunE:  runModeGet,
}

var modeSetCmd = &cobra.Command{
	Use:   "set [AUTO|MANUAL]",
	Short: "Switch the mode",
	Args:  cobra.ExactArgs(1),
	RunE:  runModeSet,
}

var modeDomain string

func init() {
	modeCmd.AddCommand(modeGetCmd, modeSetCmd)
	modeCmd.PersistentFlags().StringVar(&modeDomain, "domain", modegate.DomainICAAuto, "Mode domain")
}

type modeReply struct {
	Domain string `json:"domain"`
	Mode   string `json:"mode"`
}

func runModeGet(cmd *cobra.Command, args []string) error {
	resp, err := apiGet("/modes/" + url.PathEscape(modeDomain))
	if err != nil {
		return err
	}

	var m modeReply
	if err := json.Unmarshal(resp, &m); err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", m.Domain, m.Mode)
	return nil
}

func runModeSet(cmd *cobra.Command, args []string) error {
	mode, err := modegate.ParseMode(args[0])
	if err != nil {
		return err
	}

	resp, err := apiPut("/modes/"+url.PathEscape(modeDomain), map[string]string{"mode": string(mode)})
	if err != nil {
		return err
	}

	var m modeReply
	if err := json.Unmarshal(resp, &m); err != nil {
		return err
	}
	fmt.Printf("%s set to %s\n", m.Domain, m.Mode)
	return nil
}
