package usecase

import "context"

// MetricsSummary represents aggregated scan insights.
type MetricsSummary struct {
	TotalScans     int64   `json:"total_scans"`
	SafeScans      int64   `json:"safe_scans"`
	MaliciousScans int64   `json:"malicious_scans"`
	FailedScans    int64   `json:"failed_scans"`
	MaliciousRate  float64 `json:"malicious_rate"`
	FailureRate    float64 `json:"failure_rate"`
}

// GetMetricsSummary aggregates scan metrics from persisted logs. The
// malicious rate is relative to classified scans, not failed ones.
func (uc *HistoryUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalScans:     aggregation.TotalCount,
		SafeScans:      aggregation.SafeCount,
		MaliciousScans: aggregation.MaliciousCount,
		FailedScans:    aggregation.FailedCount,
	}

	if classified := aggregation.SafeCount + aggregation.MaliciousCount; classified > 0 {
		summary.MaliciousRate = float64(aggregation.MaliciousCount) / float64(classified)
	}
	if aggregation.TotalCount > 0 {
		summary.FailureRate = float64(aggregation.FailedCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
