package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/secqr/internal/logging"
)

// ScanLog is one terminal scan attempt. Exactly one of Classification and
// ErrorKind is set.
type ScanLog struct {
	ID             uint      `gorm:"primaryKey"`
	RequestID      string    `gorm:"column:request_id;uniqueIndex;size:64"`
	AttemptID      uint64    `gorm:"column:attempt_id"`
	Source         string    `gorm:"column:source;size:16"`
	URL            string    `gorm:"column:url;type:text"`
	Classification string    `gorm:"column:classification;size:16;index"`
	ErrorKind      string    `gorm:"column:error_kind;size:32"`
	ImageSHA1      string    `gorm:"column:image_sha1;size:40;index"`
	ImageBytes     int       `gorm:"column:image_bytes"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ScanLog) TableName() string {
	return "scan_logs"
}

// MetricsAggregation is the raw tally behind usecase.MetricsSummary.
type MetricsAggregation struct {
	TotalCount     int64
	SafeCount      int64
	MaliciousCount int64
	FailedCount    int64
}

// ScanRepository persists scan history.
type ScanRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewScanRepository creates a new repository instance.
func NewScanRepository(db *gorm.DB, logger *zap.Logger) *ScanRepository {
	return &ScanRepository{
		db:             db,
		logger:         logger.Named("scan_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ScanRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ScanLog{})
}

// SaveLog persists a scan log entry.
func (r *ScanRepository) SaveLog(ctx context.Context, log *ScanLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestID retrieves the log of one attempt.
func (r *ScanRepository) FindByRequestID(ctx context.Context, requestID string) (*ScanLog, error) {
	var log ScanLog
	err := r.executeWithRetry(ctx, "repository.find_by_request_id", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ?", requestID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// FindDuplicatesByHash returns earlier scans of the same image.
func (r *ScanRepository) FindDuplicatesByHash(ctx context.Context, hash, excludeRequestID string) ([]*ScanLog, error) {
	var logs []*ScanLog
	err := r.executeWithRetry(ctx, "repository.find_duplicates", excludeRequestID, func() error {
		return r.db.WithContext(ctx).
			Where("image_sha1 = ? AND request_id <> ?", hash, excludeRequestID).
			Order("created_at desc").
			Limit(50).
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateMetrics tallies attempts by outcome.
func (r *ScanRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).Model(&ScanLog{}).Select(
			"COUNT(*) AS total_count, " +
				"COUNT(*) FILTER (WHERE classification = 'safe') AS safe_count, " +
				"COUNT(*) FILTER (WHERE classification = 'malicious') AS malicious_count, " +
				"COUNT(*) FILTER (WHERE error_kind <> '') AS failed_count",
		).Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *ScanRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !IsTransientError(err) || attempt == r.retryAttempts-1 {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			}
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

// IsTransientError reports whether err is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
