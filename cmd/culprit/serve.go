package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openshift/culprit/pkg/bigquery/bqlabel"
	"github.com/openshift/culprit/pkg/culpritserver"
	"github.com/openshift/culprit/pkg/flags"
)

type ServerFlags struct {
	EnvFlags *EnvFlags

	ListenAddr  string
	MetricsAddr string
}

func NewServerFlags() *ServerFlags {
	return &ServerFlags{
		EnvFlags:    NewEnvFlags(),
		ListenAddr:  ":8080",
		MetricsAddr: ":2112",
	}
}

func (f *ServerFlags) BindFlags(flagSet *pflag.FlagSet) {
	f.EnvFlags.BindFlags(flagSet)
	flagSet.StringVar(&f.ListenAddr, "listen", f.ListenAddr, "The address to serve regression reports on (default :8080)")
	flagSet.StringVar(&f.MetricsAddr, "listen-metrics", f.MetricsAddr, "The address to serve prometheus metrics on (default :2112)")
}

func NewServeCommand() *cobra.Command {
	f := NewServerFlags()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the culprit server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			env, err := f.EnvFlags.GetEnv(ctx, cmd.Name(), bqlabel.EnvServer)
			if err != nil {
				return err
			}
			flags.RunMaintenance(ctx, env.Cache)

			server := culpritserver.NewServer(f.ListenAddr, env.Data, env.Config, env.Cache)

			if f.MetricsAddr != "" {
				// Serve our metrics endpoint for prometheus to scrape
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					err := http.ListenAndServe(f.MetricsAddr, mux) //nolint
					if err != nil {
						log.WithError(err).Fatal("metrics server exited")
					}
				}()
			}

			server.Serve()
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
