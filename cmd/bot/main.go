package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lacymorrow/trade/internal/logger"
	"github.com/lacymorrow/trade/internal/metrics"
	"github.com/lacymorrow/trade/internal/server"
	"github.com/lacymorrow/trade/internal/trace"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "trade-bot",
		Short:        "Automated data -> signal -> trade loop against a brokerage API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	root.AddCommand(runCmd(), onceCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// runCmd starts the bot loop and the control server, and blocks until a
// shutdown signal.
func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot loop with the HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := initializeSystem(); err != nil {
				return err
			}
			defer trace.Shutdown(context.Background())

			sys, err := buildSystem(ctx, configPath)
			if err != nil {
				return err
			}

			if err := sys.controller.Start(ctx); err != nil {
				return err
			}

			srv := server.New(sys.cfg.ServerAddr, sys.controller, sys.data)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.ErrorWithErr(ctx, "control server failed", err)
				}
			}()

			var metricsSrv *http.Server
			if sys.cfg.MetricsAddr != "" {
				metricsSrv = metrics.Serve(sys.cfg.MetricsAddr)
			}

			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
			<-sigc

			logger.Info(ctx, "shutdown signal received")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), sys.cfg.Poll())
			defer cancel()

			if err := sys.controller.Stop(shutdownCtx); err != nil {
				logger.ErrorWithErr(shutdownCtx, "controller stop failed", err)
			}
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.ErrorWithErr(shutdownCtx, "server shutdown failed", err)
			}
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
}

// onceCmd runs a single analysis cycle and prints the summary.
func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run one analysis cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := initializeSystem(); err != nil {
				return err
			}
			defer trace.Shutdown(context.Background())

			sys, err := buildSystem(ctx, configPath)
			if err != nil {
				return err
			}

			summary, err := sys.controller.RunOnce(ctx)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(summary, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		},
	}
}
