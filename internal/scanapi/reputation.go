package scanapi

import (
	"context"

	"go.uber.org/zap"
)

const reputationPath = "/checkmalicious-url"

type reputationRequest struct {
	URL string `json:"url"`
}

type reputationResponse struct {
	Exists bool `json:"exists"`
}

// CheckMalicious asks the reputation service whether url is known to be
// malicious.
//
// It fails open: any failure (transport error, timeout, non-2xx, malformed
// body) returns false. A reputation outage must never block the user from
// seeing a decode result, so this is the one call whose errors are absorbed
// instead of surfaced. Callers relying on it should expect under-flagging
// while the service is down.
func (c *Client) CheckMalicious(ctx context.Context, url string) bool {
	var resp reputationResponse
	if err := c.postJSON(ctx, reputationPath, c.reputationTimeout, reputationRequest{URL: url}, &resp); err != nil {
		c.logger.Warn("reputation check failed, treating as not malicious", zap.Error(c.opError("scanapi.check_malicious", err)))
		return false
	}
	return resp.Exists
}
