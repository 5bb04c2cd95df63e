package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vnetscan/vnetscan/database"
	"github.com/vnetscan/vnetscan/pkg/config"
	"github.com/vnetscan/vnetscan/utils/customlog"
	"github.com/vnetscan/vnetscan/web"

	"github.com/spf13/cobra"
)

// serveCmdConfig holds the configuration for the serve command
type serveCmdConfig struct {
	ListenAddress string
	Port          uint16
	Username      string
	Password      string
	GeoIPDatabase string
	DatabasePath  string
	NoHistory     bool
}

// ServeCmd represents the serve command
var ServeCmd = newServeCommand()

func newServeCommand() *cobra.Command {
	cfg := &serveCmdConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the vNetscan diagnostics server and dashboard.",
		Long: `Serves the probe endpoints consumed by "vnetscan probe" and browsers
(/api/ping, /api/bandwidth-test/download, /api/bandwidth-test/upload,
/api/geolocation), an embedded dashboard, and a control API that runs
detection cycles server-side and streams their progress over a websocket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			file, err := config.LoadFrom(path)
			if err != nil {
				return err
			}
			applyFileConfig(cmd, cfg, file)

			if !cfg.NoHistory {
				if err := database.InitDB(cfg.DatabasePath); err != nil {
					return fmt.Errorf("failed to open history database: %w", err)
				}
				defer database.CloseDB()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			geo, closeGeo, err := newGeoResolver(ctx, cfg, file)
			if err != nil {
				return err
			}
			defer closeGeo()

			addr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.Port)
			server, err := web.NewServer(web.Options{
				ListenAddr:  addr,
				Username:    cfg.Username,
				Password:    cfg.Password,
				JWTSecret:   file.Server.JWTSecret,
				Geo:         geo,
				MaxTransfer: file.Server.MaxTransferBytes,
				Probe:       file.ProbeOptions(),
				Threads:     file.Probe.Threads,
				Save:        file.Database.Save && !cfg.NoHistory,
			})
			if err != nil {
				return fmt.Errorf("could not create web server: %w", err)
			}

			fmt.Printf("%s Starting vNetscan server on http://%s\n", customlog.GetColor(customlog.Success, "[+]"), addr)
			if cfg.Username != "" {
				fmt.Printf("%s Control API requires login as %q\n", customlog.GetColor(customlog.Info, "[i]"), cfg.Username)
			}
			fmt.Printf("%s Press CTRL+C to stop the server.\n", customlog.GetColor(customlog.Info, "[i]"))

			return server.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfg.ListenAddress, "addr", "a", config.DefaultListenHost, "The IP address for the server to listen on.")
	flags.Uint16VarP(&cfg.Port, "port", "p", config.DefaultListenPort, "The port for the server to listen on.")
	flags.StringVar(&cfg.Username, "user", "", "Username guarding the control API")
	flags.StringVar(&cfg.Password, "password", "", "Password guarding the control API")
	flags.StringVar(&cfg.GeoIPDatabase, "geoip-db", "", "GeoLite2/GeoIP2 City database; ip-api.com is used without one")
	flags.StringVar(&cfg.DatabasePath, "db", "", "History database path")
	flags.BoolVar(&cfg.NoHistory, "no-history", false, "Run without the history database")

	return cmd
}

func applyFileConfig(cmd *cobra.Command, cfg *serveCmdConfig, file config.Config) {
	flags := cmd.Flags()
	if !flags.Changed("addr") {
		cfg.ListenAddress = file.Server.Host
	}
	if !flags.Changed("port") {
		cfg.Port = uint16(file.Server.Port)
	}
	if !flags.Changed("user") && !flags.Changed("password") {
		cfg.Username, cfg.Password = file.Server.Username, file.Server.Password
	}
	if !flags.Changed("geoip-db") {
		cfg.GeoIPDatabase = file.Server.GeoIPDatabase
	}
	if !flags.Changed("db") {
		cfg.DatabasePath = file.Database.Path
	}
}

func newGeoResolver(ctx context.Context, cfg *serveCmdConfig, file config.Config) (*web.GeoResolver, func(), error) {
	var (
		lookup  web.GeoLookup
		closeFn = func() {}
	)
	if cfg.GeoIPDatabase != "" {
		mm, err := web.OpenMaxMind(cfg.GeoIPDatabase)
		if err != nil {
			return nil, nil, err
		}
		lookup = mm
		closeFn = func() { mm.Close() }
		customlog.Printf(customlog.Info, "Geolocation from %s\n", cfg.GeoIPDatabase)
	} else {
		lookup = web.NewIPAPILookup(5 * time.Second)
		customlog.Printf(customlog.Info, "Geolocation via ip-api.com\n")
	}

	geo := web.NewGeoResolver(lookup, file.Server.GeoCacheTTL)
	go geo.Janitor(ctx, 10*time.Minute)
	return geo, closeFn, nil
}
