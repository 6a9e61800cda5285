package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/secqr/internal/usecase"
)

// NewReportCmd creates the report command.
func NewReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report URL",
		Short: "Report a URL as malicious",
		Long: `Report submits a URL to the report service. When a reputation cache is
configured, the URL is also flagged locally so later scans classify it as
malicious.`,
		Args: cobra.ExactArgs(1),
		RunE: runReportCmd,
	}
}

func runReportCmd(cmd *cobra.Command, args []string) error {
	rt, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer rt.logger.Sync() //nolint:errcheck

	client := rt.apiClient()
	b, err := newBackends(cmd.Context(), rt, client)
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	outcome := usecase.NewReporter(client, b.marker, rt.logger).Report(cmd.Context(), args[0])
	if !outcome.Succeeded {
		return errors.New(outcome.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), outcome.Message)
	return nil
}
