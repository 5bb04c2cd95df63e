package config

import (
	"fmt"
	"os"

	appconfig "github.com/vnetscan/vnetscan/pkg/config"
	"github.com/vnetscan/vnetscan/utils/customlog"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ConfigCmd groups the configuration file helpers.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and inspect the vnetscan configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var (
	initOut   string
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with every default filled in",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := initOut
		if path == "" {
			path = appconfig.DefaultPath()
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := appconfig.Save(path, appconfig.Default()); err != nil {
			return err
		}
		customlog.Printf(customlog.Success, "Wrote %s\n", path)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := appconfig.LoadFrom(path)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(&cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	initCmd.Flags().StringVarP(&initOut, "out", "o", "", "Where to write the file (default ~/.vnetscan/vnetscan.yaml)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
	ConfigCmd.AddCommand(initCmd)
	ConfigCmd.AddCommand(showCmd)
}
