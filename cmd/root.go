// Package cmd implements the dispatchd CLI.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fleetops/dispatchd/app"
	"github.com/fleetops/dispatchd/config"
	"github.com/fleetops/dispatchd/infra/logger"
)

var (
	cfgPath  string
	seedPath string
)

var rootCmd = &cobra.Command{
	Use:   "dispatchd",
	Short: "Delivery dispatch and assignment engine",
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&seedPath, "seed", "", "fixture file loaded into the in-memory store")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// newService loads the environment, configuration and wiring shared by all
// commands.
func newService() (*app.Service, error) {
	_ = godotenv.Load() // a missing .env is fine
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return nil, err
	}
	if seedPath != "" {
		if err := svc.Seed(seedPath); err != nil {
			_ = svc.Close()
			return nil, err
		}
	}
	return svc, nil
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := newService()
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
