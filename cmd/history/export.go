package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vnetscan/vnetscan/database"
	"github.com/vnetscan/vnetscan/utils/customlog"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
)

var (
	exportOut   string
	exportLimit int
	pruneOlder  time.Duration
)

// exportCmd writes samples to a CSV or JSON file
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Exports stored samples to CSV or JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOut == "" {
			return fmt.Errorf("--out is required")
		}
		records, err := database.GetSampleHistory(cmd.Context(), exportLimit)
		if err != nil {
			return err
		}

		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		defer f.Close()

		switch strings.ToLower(filepath.Ext(exportOut)) {
		case ".json":
			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")
			err = enc.Encode(records)
		default:
			err = gocsv.MarshalFile(&records, f)
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", exportOut, err)
		}

		customlog.Printf(customlog.Finished, "Exported %d sample(s) to %s\n", len(records), exportOut)
		return nil
	},
}

// pruneCmd deletes old runs and their samples
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Deletes runs older than the given age",
	RunE: func(cmd *cobra.Command, args []string) error {
		if pruneOlder <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		n, err := database.DeleteRunsBefore(cmd.Context(), time.Now().Add(-pruneOlder))
		if err != nil {
			return err
		}
		customlog.Printf(customlog.Success, "Deleted %d run(s)\n", n)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (.csv or .json)")
	exportCmd.Flags().IntVarP(&exportLimit, "limit", "l", 0, "Export only the most recent N samples (0 = all)")
	pruneCmd.Flags().DurationVar(&pruneOlder, "older-than", 30*24*time.Hour, "Delete runs started before now minus this age")
}
