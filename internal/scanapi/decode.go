package scanapi

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/example/secqr/internal/scanerror"
)

const (
	decodePath = "/scan"

	noCodeMessage = "No QR code detected"
)

// Verdict is the decode service's own classification of the URL.
type Verdict string

const (
	VerdictSafe      Verdict = "safe"
	VerdictMalicious Verdict = "malicious"
)

// DecodeOutcome is a successful decode call. Found is false when the image
// held no readable code; URL and Verdict are then empty.
type DecodeOutcome struct {
	Found   bool
	URL     string
	Verdict Verdict
	Message string
}

type decodeRequest struct {
	Image string `json:"image"`
}

type decodeResponse struct {
	Status  string `json:"status"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

// Decode submits a bare base64 payload. Transport failures come back as a
// *scanerror.Error of kind request_timeout or decode_failed.
func (c *Client) Decode(ctx context.Context, payload string) (*DecodeOutcome, error) {
	var raw decodeResponse
	err := c.postJSON(ctx, decodePath, c.decodeTimeout, decodeRequest{Image: payload}, &raw)
	if err != nil {
		wrapped := c.opError("scanapi.decode", err)
		c.logger.Warn("decode request failed", zap.Error(wrapped), zap.Int("payload_bytes", len(payload)))
		return nil, classifyDecodeError(wrapped)
	}
	return narrowDecode(raw), nil
}

func classifyDecodeError(err error) error {
	if isTimeout(err) {
		return scanerror.Wrap(scanerror.KindRequestTimeout, "", err)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.ServerSide() {
		return scanerror.ServerFailure(err)
	}
	return scanerror.Wrap(scanerror.KindDecodeFailed, "", err)
}

// narrowDecode turns the loosely shaped response into a DecodeOutcome. A URL
// without a safe/malicious status is not trusted and counts as no code.
func narrowDecode(raw decodeResponse) *DecodeOutcome {
	url := strings.TrimSpace(raw.URL)
	if url == "" || raw.Message == noCodeMessage {
		return &DecodeOutcome{Message: raw.Message}
	}
	switch Verdict(raw.Status) {
	case VerdictSafe, VerdictMalicious:
		return &DecodeOutcome{Found: true, URL: url, Verdict: Verdict(raw.Status), Message: raw.Message}
	default:
		return &DecodeOutcome{Message: raw.Message}
	}
}
