package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/secqr/internal/acquire"
	"github.com/example/secqr/internal/config"
	"github.com/example/secqr/internal/scanerror"
	"github.com/example/secqr/internal/usecase"
)

// openURL launches the system browser. Replaced in tests.
var openURL = openInBrowser

// fileResult is the outcome of scanning one file.
type fileResult struct {
	File           string                 `json:"file"`
	RequestID      string                 `json:"request_id,omitempty"`
	Classification usecase.Classification `json:"classification,omitempty"`
	URL            string                 `json:"url,omitempty"`
	Error          *scanerror.Error       `json:"error,omitempty"`

	result *usecase.ScanResult
}

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan FILE...",
		Short: "Decode and classify QR codes in image files",
		Long: `Scan uploads each image to the decode service, checks the decoded URL
against the reputation service, and prints the classification.

Examples:
  # Scan one image
  secqr scan code.png

  # Scan several images, four at a time, as JSON
  secqr scan --batch 4 --json *.png

  # Open the decoded URL; flagged URLs ask for confirmation first
  secqr scan --open code.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: runScanCmd,
	}

	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize, "Number of concurrent scans")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	cmd.Flags().BoolP("open", "o", false, "Open decoded URLs in the browser")

	return cmd
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	rt, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer rt.logger.Sync() //nolint:errcheck

	batch, err := cmd.Flags().GetInt("batch")
	if err != nil {
		return err
	}
	if batch < 1 {
		batch = 1
	}
	jsonOut, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	open, err := cmd.Flags().GetBool("open")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := rt.apiClient()
	b, err := newBackends(ctx, rt, client)
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	results := scanFiles(ctx, rt, client, b, args, batch)

	out := cmd.OutOrStdout()
	if jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printResults(out, results)
	}

	if open {
		openResults(cmd.InOrStdin(), cmd.ErrOrStderr(), results)
	}

	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scans failed", failed, len(results))
	}
	return nil
}

// scanFiles runs one scan attempt per file with at most batch in flight.
// Results keep the order of paths.
func scanFiles(ctx context.Context, rt *app, decoder usecase.Decoder, b *backends, paths []string, batch int) []fileResult {
	results := make([]fileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batch)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = scanFile(gctx, rt, decoder, b, path)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func scanFile(ctx context.Context, rt *app, decoder usecase.Decoder, b *backends, path string) fileResult {
	uc := usecase.NewScanUseCase(decoder, b.reputation, rt.logger, b.scanOptions()...)
	acq := acquire.New(nil, rt.logger,
		acquire.WithConstraints(rt.cameraConstraints()),
		acquire.WithMaxUploadSize(rt.cfg.Upload.MaxBytes))
	defer acq.Close() //nolint:errcheck

	result, err := uc.Run(ctx, func(ctx context.Context) (acquire.CapturedImage, error) {
		f, err := os.Open(path) //nolint:gosec // user-supplied image path
		if err != nil {
			return acquire.CapturedImage{}, scanerror.Wrap(scanerror.KindFileReadFailed, "", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return acquire.CapturedImage{}, scanerror.Wrap(scanerror.KindFileReadFailed, "", err)
		}
		return acq.Upload(ctx, acquire.FileInfo{Name: filepath.Base(path), Size: info.Size()}, f)
	})

	r := fileResult{File: path, RequestID: uc.State().RequestID}
	if err != nil {
		r.Error = scanerror.From(err)
		return r
	}
	r.RequestID = result.RequestID
	r.Classification = result.Classification
	r.URL = result.URL
	r.result = result
	return r
}

func printResults(w io.Writer, results []fileResult) {
	for _, r := range results {
		if r.Error != nil {
			fmt.Fprintf(w, "%s: %s\n", r.File, r.Error.Message)
			continue
		}
		fmt.Fprintf(w, "%s: %s %s\n", r.File, strings.ToUpper(string(r.Classification)), r.URL)
	}
}

// openResults opens each decoded URL in turn. Flagged URLs are only opened
// after an explicit "y" on in.
func openResults(in io.Reader, prompt io.Writer, results []fileResult) {
	reader := bufio.NewReader(in)
	confirm := func(message string) bool {
		fmt.Fprintf(prompt, "%s [y/N]: ", message)
		line, _ := reader.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}

	for _, r := range results {
		if r.result == nil {
			continue
		}
		err := usecase.OpenResult(*r.result, confirm, openURL)
		switch {
		case errors.Is(err, usecase.ErrOpenDeclined):
			fmt.Fprintf(prompt, "not opening %s\n", r.URL)
		case err != nil:
			fmt.Fprintf(prompt, "failed to open %s: %v\n", r.URL, err)
		}
	}
}

func openInBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
