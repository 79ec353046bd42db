package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// serveOptions are the flags of the serve command.
type serveOptions struct {
	ConfigFile string
	DataFile   string
	BackendURL string
	Listen     string
	LogLevel   string
	Platform   string
	RateLimit  float64
}

// NewServeCommand runs the daemon until interrupted.
func NewServeCommand() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the services and the status server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := newApp(opts)

			startCtx, cancel := context.WithTimeout(cmd.Context(), app.StartTimeout())
			defer cancel()
			if err := app.Start(startCtx); err != nil {
				return err
			}

			select {
			case <-app.Done():
			case <-cmd.Context().Done():
			}

			stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
			defer cancelStop()
			return app.Stop(stopCtx)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.ConfigFile, "config", "c", "", "config file to load and watch (.yaml, .yml, .toml or .json)")
	f.StringVar(&opts.DataFile, "data", "alouette-data.json", "file persisting settings; empty keeps them in memory")
	f.StringVar(&opts.BackendURL, "backend", "http://127.0.0.1:1420", "base URL of the native backend")
	f.StringVar(&opts.Listen, "listen", "127.0.0.1:8080", "address of the status server")
	f.StringVar(&opts.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	f.StringVar(&opts.Platform, "platform", "", "host platform (android, ios, ...); defaults to the running OS")
	f.Float64Var(&opts.RateLimit, "rate-limit", 0, "backend requests per second; 0 disables throttling")
	return cmd
}
