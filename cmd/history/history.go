package history

import (
	"fmt"

	"github.com/vnetscan/vnetscan/database"
	"github.com/vnetscan/vnetscan/pkg/config"

	"github.com/spf13/cobra"
)

// HistoryCmd groups the commands that read the probe history database.
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect, export and prune stored probe samples",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.LoadFrom(path)
		if err != nil {
			return err
		}
		dbPath, _ := cmd.Flags().GetString("db")
		if dbPath == "" {
			dbPath = cfg.Database.Path
		}
		if err := database.InitDB(dbPath); err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return database.CloseDB()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func addSubcommandPalettes() {
	HistoryCmd.AddCommand(listCmd)
	HistoryCmd.AddCommand(runsCmd)
	HistoryCmd.AddCommand(exportCmd)
	HistoryCmd.AddCommand(pruneCmd)
}

func init() {
	HistoryCmd.PersistentFlags().String("db", "", "History database path (defaults to the config file's)")
	addSubcommandPalettes()
}
