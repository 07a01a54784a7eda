package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fentz26/icad/internal/archive"
	"github.com/fentz26/icad/internal/fixtures"
	"github.com/fentz26/icad/internal/inspection"
	"github.com/spf13/cobra"
)

var replayFromArchive bool

var replayCmd = &cobra.Command{
	Use:   "replay [file]",
	Short: "Process recorded ICA results offline",
	Long: `Runs every event in a YAML replay file through the workflow in order.
Events are recorded with channel OFFLINE.

With --archive the argument is an object key in the configured archive
bucket, and a reconciliation report is uploaded under reports/ afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayFromArchive, "archive", false, "Read the capture from the archive bucket and upload a report")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var (
		events []inspection.Event
		arc    *archive.Archive
	)
	if replayFromArchive {
		if !cfg.Archive.Enabled() {
			return fmt.Errorf("--archive requires archive.endpoint to be configured")
		}
		if arc, err = archive.New(cfg.Archive, nil); err != nil {
			return err
		}
		data, err := arc.Fetch(ctx, args[0])
		if err != nil {
			return err
		}
		if events, err = fixtures.ParseReplay(data); err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
	} else if events, err = fixtures.LoadReplay(args[0]); err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	report := &archive.ReplayReport{Source: args[0], ReplayedAt: time.Now()}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TID\tCST\tCODE\tSTATE\tMESSAGE")
	for _, ev := range events {
		res := a.proc.Process(ctx, ev, nil)
		if !res.Reply.ReturnCode.OK() {
			report.Rejected++
		}
		state := string(res.State)
		if res.Duplicate {
			state = "DUPLICATE"
			report.Duplicates++
		}
		report.Results = append(report.Results, archive.ReplayResult{
			TID:        ev.TID,
			CassetteID: ev.CassetteID,
			Code:       string(res.Reply.ReturnCode),
			CodeName:   res.Reply.ReturnCode.Name(),
			State:      state,
			Message:    res.Reply.ReturnMsg,
		})
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", ev.TID, ev.CassetteID, res.Reply.ReturnCode.Name(), state, truncate(res.Reply.ReturnMsg, 60))
	}
	w.Flush()
	report.Events = len(events)

	fmt.Printf("\n%d events replayed, %d rejected\n", report.Events, report.Rejected)

	if arc != nil {
		key, err := arc.PutReport(ctx, report)
		if err != nil {
			return fmt.Errorf("upload report: %w", err)
		}
		fmt.Printf("Report stored at %s/%s\n", arc.Bucket(), key)
	}
	return nil
}
