package history

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/vnetscan/vnetscan/database"
	"github.com/vnetscan/vnetscan/pkg/config"
	"github.com/vnetscan/vnetscan/speedtester"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	listLimit int
	listRun   int64
)

// listCmd represents the history list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists the most recent samples from the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			records []database.SampleRecord
			err     error
		)
		if listRun > 0 {
			records, err = database.GetRunSamples(cmd.Context(), listRun)
		} else {
			records, err = database.GetSampleHistory(cmd.Context(), listLimit)
		}
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No samples found in the database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "RUN\tTIME\tSTATUS\tLATENCY\tJITTER\tDOWNLOAD\tUPLOAD\tMETHOD\tTARGET")
		fmt.Fprintln(w, "---\t----\t------\t-------\t------\t--------\t------\t------\t------")

		for _, rec := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.2fms\t%.2fms\t%s\t%s\t%s\t%s\n",
				rec.RunID,
				rec.CapturedAt.Local().Format(time.DateTime),
				statusColor(rec.Status),
				rec.LatencyMs, rec.JitterMs,
				speedtester.FormatSpeed(rec.DownloadMbps),
				speedtester.FormatSpeed(rec.UploadMbps),
				rec.Method,
				rec.Target)
		}

		return w.Flush()
	},
}

// runsCmd represents the history runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Lists probe runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, err := database.ListProbeRuns(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No probe runs found in the database.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTARTED\tFINISHED\tTARGETS\tSOURCE")
		fmt.Fprintln(w, "--\t-------\t--------\t-------\t------")
		for _, r := range runs {
			finished := "running"
			if r.EndTime != nil {
				finished = r.EndTime.Local().Format(time.DateTime)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", r.ID, r.StartTime.Local().Format(time.DateTime), finished, r.TargetCount, r.Source)
		}
		return w.Flush()
	},
}

func statusColor(status string) string {
	switch status {
	case "passed":
		return color.GreenString(status)
	case "partial":
		return color.YellowString(status)
	default:
		return color.RedString(status)
	}
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", config.DefaultHistoryLimit, "Limit the number of samples to show (0 = all)")
	listCmd.Flags().Int64VarP(&listRun, "run", "r", 0, "Only show the samples of this run")
	runsCmd.Flags().IntVarP(&listLimit, "limit", "l", config.DefaultHistoryLimit, "Limit the number of runs to show (0 = all)")
}
