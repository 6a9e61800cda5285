package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/example/secqr/internal/repository"
)

// HistoryRepository defines the read operations needed for scan history.
type HistoryRepository interface {
	FindByRequestID(ctx context.Context, requestID string) (*repository.ScanLog, error)
	FindDuplicatesByHash(ctx context.Context, hash, excludeRequestID string) ([]*repository.ScanLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// DuplicateReport lists earlier scans of the same image.
type DuplicateReport struct {
	Scan       *repository.ScanLog
	Duplicates []*repository.ScanLog
}

// HistoryUseCase answers questions about past scans.
type HistoryUseCase struct {
	repo   HistoryRepository
	logger *zap.Logger
}

// NewHistoryUseCase constructs a new history use case.
func NewHistoryUseCase(repo HistoryRepository, logger *zap.Logger) *HistoryUseCase {
	return &HistoryUseCase{repo: repo, logger: logger.Named("history_usecase")}
}

// GetScan loads one attempt by request id.
func (uc *HistoryUseCase) GetScan(ctx context.Context, requestID string) (*repository.ScanLog, error) {
	return uc.repo.FindByRequestID(ctx, requestID)
}

// GetDuplicateReport returns an attempt together with earlier scans of the
// same image. Attempts that never acquired an image have no duplicates.
func (uc *HistoryUseCase) GetDuplicateReport(ctx context.Context, requestID string) (*DuplicateReport, error) {
	log, err := uc.GetScan(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if log.ImageSHA1 == "" {
		return &DuplicateReport{Scan: log}, nil
	}

	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, log.ImageSHA1, log.RequestID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{
		Scan:       log,
		Duplicates: duplicates,
	}, nil
}
