// Package main provides the secqr CLI and HTTP server.
//
// secqr decodes QR codes from images, checks the embedded URL against a
// reputation service, and classifies it as safe or malicious.
//
// Usage:
//
//	secqr scan photo.png
//	secqr report https://suspicious.example
//	secqr serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/secqr/internal/acquire"
	"github.com/example/secqr/internal/config"
	"github.com/example/secqr/internal/logging"
	"github.com/example/secqr/internal/scanapi"
)

func main() {
	Execute()
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secqr",
		Short: "Scan QR codes and flag malicious URLs",
		Long: `secqr decodes QR codes from images, checks the embedded URL against a
reputation service, and classifies it as safe or malicious.

Configuration is read from --config, .secqr.yaml in the current directory,
or config.yaml under $XDG_CONFIG_HOME/secqr. Environment variables
SECQR_API_URL, SECQR_ADDR, REDIS_ADDR, DATABASE_DSN, JWT_SECRET and
JWT_AUDIENCE override file values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file path")
	cmd.PersistentFlags().String("api-url", "", "Base URL of the scan services (overrides config)")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewReportCmd())
	cmd.AddCommand(NewServeCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	verbose bool
}

// newApp loads configuration, applies global flags, and builds the logger.
func newApp(cmd *cobra.Command) (*app, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	apiURL, err := cmd.Flags().GetString("api-url")
	if err != nil {
		return nil, err
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}
	verbose = verbose || cfg.Verbose

	logger, err := logging.NewLogger(verbose)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, verbose: verbose}, nil
}

func (rt *app) apiClient() *scanapi.Client {
	return scanapi.NewClient(rt.cfg.API.BaseURL, rt.logger,
		scanapi.WithTimeouts(rt.cfg.API.DecodeTimeout, rt.cfg.API.ReputationTimeout, rt.cfg.API.ReportTimeout))
}

func (rt *app) cameraConstraints() acquire.Constraints {
	return acquire.Constraints{
		Facing: acquire.FacingMode(rt.cfg.Camera.Facing),
		Width:  rt.cfg.Camera.Width,
		Height: rt.cfg.Camera.Height,
	}
}
