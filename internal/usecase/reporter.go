package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/example/secqr/internal/logging"
)

const (
	reportMissingURLMessage = "No URL provided"
	reportFailedMessage     = "Error reporting URL. Please try again."
)

// ReportSubmitter sends a report to the report service.
type ReportSubmitter interface {
	Report(ctx context.Context, url string) (string, error)
}

// MaliciousMarker learns about URLs confirmed malicious outside a scan.
type MaliciousMarker interface {
	MarkMalicious(ctx context.Context, url string)
}

// ReportOutcome is the result of one report action. It is never cached and
// never changes the ScanResult it came from.
type ReportOutcome struct {
	Succeeded bool   `json:"succeeded"`
	Message   string `json:"message"`
}

// Reporter submits user-initiated URL reports independently of the scan
// orchestrator.
type Reporter struct {
	submitter ReportSubmitter
	marker    MaliciousMarker
	logger    *zap.Logger
}

// NewReporter constructs a Reporter. marker may be nil.
func NewReporter(submitter ReportSubmitter, marker MaliciousMarker, logger *zap.Logger) *Reporter {
	return &Reporter{
		submitter: submitter,
		marker:    marker,
		logger:    logger.Named("reporter"),
	}
}

// Report submits url. An empty url fails locally without a network call.
func (r *Reporter) Report(ctx context.Context, url string) ReportOutcome {
	return r.ReportAs(ctx, "", url)
}

// ReportAs is Report on behalf of an authenticated subject, which is
// attached to every log line of the report.
func (r *Reporter) ReportAs(ctx context.Context, subject, url string) ReportOutcome {
	url = strings.TrimSpace(url)
	if url == "" {
		return ReportOutcome{Succeeded: false, Message: reportMissingURLMessage}
	}

	opLogger := logging.WithOperation(r.logger, "usecase.report", "")
	if subject != "" {
		opLogger = opLogger.With(zap.String("reported_by", subject))
	}
	message, err := r.submitter.Report(ctx, url)
	if err != nil {
		opLogger.Warn("report failed", zap.Error(err))
		return ReportOutcome{Succeeded: false, Message: reportFailedMessage}
	}

	if r.marker != nil {
		r.marker.MarkMalicious(ctx, url)
	}
	opLogger.Info("url reported")
	return ReportOutcome{Succeeded: true, Message: message}
}
