package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/habiliai/agentmarket"
	"github.com/habiliai/agentmarket/config"
	"github.com/habiliai/agentmarket/internal/mylog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	ConfigFile string
}

func newCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "agentmarket",
		Short:         "AI agent marketplace ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.ConfigFile, "config", "c", "", "path to a YAML config file")

	cmd.AddCommand(
		newServeCmd(flags),
		newAgentCmd(flags),
		newTxCmd(flags),
		newStatsCmd(flags),
		newJobsCmd(flags),
	)

	return cmd
}

// openMarketplace builds a marketplace from the resolved config. One-shot
// commands pass configure to turn off what they do not need.
func openMarketplace(ctx context.Context, flags *rootFlags, configure ...func(*config.MarketConfig)) (*agentmarket.Marketplace, error) {
	conf, err := config.LoadMarketConfig(flags.ConfigFile)
	if err != nil {
		return nil, err
	}
	for _, f := range configure {
		f(conf)
	}

	return agentmarket.New(
		ctx,
		agentmarket.WithConfig(conf),
		agentmarket.WithLogger(mylog.NewLogger(conf.LogLevel, conf.LogHandler)),
	)
}

func quiet(conf *config.MarketConfig) {
	conf.LogLevel = "warn"
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the marketplace HTTP API and run background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			m, err := openMarketplace(ctx, flags)
			if err != nil {
				return err
			}
			defer m.Close()

			conf := m.Config()
			logger := m.Logger()
			logger.Debug("start agentmarket", "config", conf)

			server := http.Server{
				Addr:              net.JoinHostPort(conf.Host, fmt.Sprint(conf.Port)),
				Handler:           m.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}

			workersDone := make(chan struct{})
			go func() {
				defer close(workersDone)
				m.Start(ctx)
			}()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("failed to shutdown server", mylog.Err(err))
				}
			}()

			logger.Info("Starting server", "host", conf.Host, "port", conf.Port)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrapf(err, "failed to serve on %s", server.Addr)
			}

			<-workersDone
			logger.Info("server stopped")
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.WithStack(enc.Encode(v))
}
