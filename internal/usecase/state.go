package usecase

import (
	"github.com/example/secqr/internal/acquire"
	"github.com/example/secqr/internal/scanapi"
	"github.com/example/secqr/internal/scanerror"
)

// Phase is a scan orchestrator state.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseAcquiring          Phase = "acquiring"
	PhaseSubmitting         Phase = "submitting"
	PhaseCheckingReputation Phase = "checking-reputation"
	PhaseDoneSafe           Phase = "done-safe"
	PhaseDoneMalicious      Phase = "done-malicious"
	PhaseFailed             Phase = "failed"
)

// Terminal reports whether p ends an attempt.
func (p Phase) Terminal() bool {
	return p == PhaseDoneSafe || p == PhaseDoneMalicious || p == PhaseFailed
}

// Classification is the verdict shown to the user.
type Classification string

const (
	ClassificationSafe      Classification = "safe"
	ClassificationMalicious Classification = "malicious"
)

// ScanResult is the successful outcome of an attempt.
type ScanResult struct {
	Classification Classification        `json:"classification"`
	URL            string                `json:"url"`
	Image          acquire.CapturedImage `json:"image"`
	RequestID      string                `json:"request_id"`
}

// State is the serializable orchestrator state. Device handles are never
// part of it. After an attempt settles back to idle, exactly one of Result
// and Error describes how it ended.
type State struct {
	Phase         Phase                  `json:"phase"`
	AttemptID     uint64                 `json:"attempt_id"`
	RequestID     string                 `json:"request_id,omitempty"`
	Image         *acquire.CapturedImage `json:"image,omitempty"`
	URL           string                 `json:"url,omitempty"`
	DecodeVerdict scanapi.Verdict        `json:"decode_verdict,omitempty"`
	Result        *ScanResult            `json:"result,omitempty"`
	Error         *scanerror.Error       `json:"error,omitempty"`
}

// The transition functions below are pure. Each returns the next state and
// whether the event applied; an event for another attempt or an unexpected
// phase leaves the state untouched.

// Begin starts attempt id, superseding whatever was in progress.
func Begin(s State, id uint64, requestID string) State {
	return State{Phase: PhaseAcquiring, AttemptID: id, RequestID: requestID}
}

// Acquired moves acquiring -> submitting once an image exists.
func Acquired(s State, id uint64, img acquire.CapturedImage) (State, bool) {
	if s.AttemptID != id || s.Phase != PhaseAcquiring {
		return s, false
	}
	s.Phase = PhaseSubmitting
	s.Image = &img
	return s, true
}

// Decoded moves submitting -> checking-reputation when a URL was found and
// submitting -> failed otherwise.
func Decoded(s State, id uint64, outcome scanapi.DecodeOutcome) (State, bool) {
	if s.AttemptID != id || s.Phase != PhaseSubmitting {
		return s, false
	}
	if !outcome.Found || outcome.URL == "" {
		s.Phase = PhaseFailed
		s.Error = scanerror.New(scanerror.KindNoCodeDetected, "")
		return s, true
	}
	s.Phase = PhaseCheckingReputation
	s.URL = outcome.URL
	s.DecodeVerdict = outcome.Verdict
	return s, true
}

// Classified ends a reputation check. Either the decode verdict or the
// reputation signal alone marks the URL malicious.
func Classified(s State, id uint64, reputationMalicious bool) (State, bool) {
	if s.AttemptID != id || s.Phase != PhaseCheckingReputation {
		return s, false
	}
	classification := ClassificationSafe
	s.Phase = PhaseDoneSafe
	if reputationMalicious || s.DecodeVerdict == scanapi.VerdictMalicious {
		classification = ClassificationMalicious
		s.Phase = PhaseDoneMalicious
	}
	result := ScanResult{Classification: classification, URL: s.URL, RequestID: s.RequestID}
	if s.Image != nil {
		result.Image = *s.Image
	}
	s.Result = &result
	return s, true
}

// Failed ends an acquiring or submitting attempt with err.
func Failed(s State, id uint64, err *scanerror.Error) (State, bool) {
	if s.AttemptID != id || (s.Phase != PhaseAcquiring && s.Phase != PhaseSubmitting) {
		return s, false
	}
	s.Phase = PhaseFailed
	s.Error = err
	return s, true
}

// Settle returns a terminal state to idle, keeping its result or error.
func Settle(s State, id uint64) (State, bool) {
	if s.AttemptID != id || !s.Phase.Terminal() {
		return s, false
	}
	s.Phase = PhaseIdle
	s.Image = nil
	return s, true
}

// Abandon drops the current attempt. Late responses for it no longer match
// the attempt id in the returned state.
func Abandon(s State, nextID uint64) State {
	return State{Phase: PhaseIdle, AttemptID: nextID}
}
