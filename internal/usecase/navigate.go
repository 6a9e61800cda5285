package usecase

import "errors"

// MaliciousOpenPrompt is shown before opening a malicious URL.
const MaliciousOpenPrompt = "Warning: This URL has been flagged as potentially malicious. Are you sure you want to proceed?"

// ErrOpenDeclined is returned when the user declines to open a malicious URL.
var ErrOpenDeclined = errors.New("opening flagged URL declined")

// OpenResult opens the result's URL. Malicious URLs are opened only after
// confirm returns true.
func OpenResult(result ScanResult, confirm func(prompt string) bool, open func(url string) error) error {
	if result.URL == "" {
		return errors.New("result has no URL")
	}
	if result.Classification != ClassificationSafe {
		if confirm == nil || !confirm(MaliciousOpenPrompt) {
			return ErrOpenDeclined
		}
	}
	return open(result.URL)
}
