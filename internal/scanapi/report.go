package scanapi

import (
	"context"

	"go.uber.org/zap"
)

const reportPath = "/report-url"

type reportRequest struct {
	URL string `json:"url"`
}

type reportResponse struct {
	Message string `json:"message"`
}

// Report submits url to the report service and returns its message.
func (c *Client) Report(ctx context.Context, url string) (string, error) {
	var resp reportResponse
	if err := c.postJSON(ctx, reportPath, c.reportTimeout, reportRequest{URL: url}, &resp); err != nil {
		wrapped := c.opError("scanapi.report", err)
		c.logger.Warn("report request failed", zap.Error(wrapped))
		return "", wrapped
	}
	return resp.Message, nil
}
