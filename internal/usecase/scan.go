package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/secqr/internal/acquire"
	"github.com/example/secqr/internal/imagecodec"
	"github.com/example/secqr/internal/logging"
	"github.com/example/secqr/internal/repository"
	"github.com/example/secqr/internal/scanapi"
	"github.com/example/secqr/internal/scanerror"
)

// ErrAttemptSuperseded is returned to an attempt whose result arrived after
// a newer attempt started or the attempt was abandoned. Its result was
// discarded.
var ErrAttemptSuperseded = errors.New("scan attempt superseded")

// Decoder extracts a URL from a bare base64 image payload.
type Decoder interface {
	Decode(ctx context.Context, payload string) (*scanapi.DecodeOutcome, error)
}

// ReputationChecker reports whether a URL is known to be malicious. It must
// not fail; implementations absorb their own errors as false.
type ReputationChecker interface {
	CheckMalicious(ctx context.Context, url string) bool
}

// ScanHistory persists terminal attempts.
type ScanHistory interface {
	SaveLog(ctx context.Context, log *repository.ScanLog) error
}

// Attempt identifies one scan attempt.
type Attempt struct {
	ID        uint64
	RequestID string
}

// TransitionFunc observes state changes, e.g. to disable capture controls
// while an attempt is busy.
type TransitionFunc func(from, to State)

// ScanUseCase is the scan orchestrator. It drives one attempt at a time
// through acquiring, submitting, and checking-reputation to a terminal
// state, and drops late results of superseded attempts.
type ScanUseCase struct {
	decoder    Decoder
	reputation ReputationChecker
	history    ScanHistory
	logger     *zap.Logger

	mu           sync.Mutex
	state        State
	lastID       uint64
	onTransition TransitionFunc
}

// ScanOption configures a ScanUseCase.
type ScanOption func(*ScanUseCase)

// WithHistory persists each terminal attempt.
func WithHistory(history ScanHistory) ScanOption {
	return func(uc *ScanUseCase) {
		uc.history = history
	}
}

// WithTransitionObserver registers fn to be called after every transition.
func WithTransitionObserver(fn TransitionFunc) ScanOption {
	return func(uc *ScanUseCase) {
		uc.onTransition = fn
	}
}

// NewScanUseCase constructs a new orchestrator in the idle state.
func NewScanUseCase(decoder Decoder, reputation ReputationChecker, logger *zap.Logger, opts ...ScanOption) *ScanUseCase {
	uc := &ScanUseCase{
		decoder:    decoder,
		reputation: reputation,
		logger:     logger.Named("scan_usecase"),
		state:      State{Phase: PhaseIdle},
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// State returns a snapshot of the orchestrator state.
func (uc *ScanUseCase) State() State {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.state
}

// Busy reports whether a submission or reputation check is outstanding.
// Capture controls should be disabled while it is true.
func (uc *ScanUseCase) Busy() bool {
	phase := uc.State().Phase
	return phase == PhaseSubmitting || phase == PhaseCheckingReputation
}

// Begin starts a new attempt and invalidates any attempt in flight.
func (uc *ScanUseCase) Begin() Attempt {
	uc.mu.Lock()
	uc.lastID++
	attempt := Attempt{ID: uc.lastID, RequestID: uuid.NewString()}
	prev := uc.state
	uc.state = Begin(uc.state, attempt.ID, attempt.RequestID)
	next := uc.state
	uc.mu.Unlock()

	uc.notify(prev, next)
	return attempt
}

// Abandon discards the current attempt, for example when the scan view is
// left. Outstanding calls complete but their results are dropped.
func (uc *ScanUseCase) Abandon() {
	uc.mu.Lock()
	uc.lastID++
	prev := uc.state
	uc.state = Abandon(uc.state, uc.lastID)
	next := uc.state
	uc.mu.Unlock()

	uc.notify(prev, next)
}

// Run begins an attempt, acquires an image with acquireFn, and submits it.
func (uc *ScanUseCase) Run(ctx context.Context, acquireFn func(context.Context) (acquire.CapturedImage, error)) (*ScanResult, error) {
	attempt := uc.Begin()
	img, err := acquireFn(ctx)
	if err != nil {
		return nil, uc.Fail(ctx, attempt, err)
	}
	return uc.Submit(ctx, attempt, img)
}

// Fail ends attempt with an acquisition error. It returns the terminal
// *scanerror.Error, or ErrAttemptSuperseded.
func (uc *ScanUseCase) Fail(ctx context.Context, attempt Attempt, err error) error {
	return uc.finishFailure(ctx, attempt, nil, scanerror.From(err))
}

// Submit decodes img, checks the URL's reputation, and classifies it. It
// returns either a result or a *scanerror.Error; ErrAttemptSuperseded means
// a newer attempt owns the state and this outcome was discarded.
func (uc *ScanUseCase) Submit(ctx context.Context, attempt Attempt, img acquire.CapturedImage) (*ScanResult, error) {
	opLogger := logging.WithAttempt(uc.logger, "usecase.scan", attempt.RequestID, attempt.ID)

	if _, ok := uc.apply(func(s State) (State, bool) { return Acquired(s, attempt.ID, img) }); !ok {
		return nil, ErrAttemptSuperseded
	}

	payload := imagecodec.Normalize(img.Payload)
	start := time.Now()
	outcome, err := uc.decoder.Decode(ctx, payload)
	if err != nil {
		return nil, uc.finishFailure(ctx, attempt, &img, scanerror.From(err))
	}
	if outcome == nil {
		outcome = &scanapi.DecodeOutcome{}
	}
	opLogger.Debug("decode finished",
		zap.Bool("found", outcome.Found),
		zap.String("verdict", string(outcome.Verdict)),
		zap.Duration("latency", time.Since(start)))

	next, ok := uc.apply(func(s State) (State, bool) { return Decoded(s, attempt.ID, *outcome) })
	if !ok {
		return nil, ErrAttemptSuperseded
	}
	if next.Phase == PhaseFailed {
		return nil, uc.settleFailure(ctx, attempt, &img, next.Error)
	}

	malicious := uc.reputation.CheckMalicious(ctx, outcome.URL)

	next, ok = uc.apply(func(s State) (State, bool) { return Classified(s, attempt.ID, malicious) })
	if !ok {
		return nil, ErrAttemptSuperseded
	}
	result := *next.Result
	uc.apply(func(s State) (State, bool) { return Settle(s, attempt.ID) })

	opLogger.Info("scan classified",
		zap.String("classification", string(result.Classification)),
		zap.String("decode_verdict", string(outcome.Verdict)),
		zap.Bool("reputation_malicious", malicious))
	uc.record(ctx, attempt, &img, &result, nil)
	return &result, nil
}

func (uc *ScanUseCase) finishFailure(ctx context.Context, attempt Attempt, img *acquire.CapturedImage, scanErr *scanerror.Error) error {
	next, ok := uc.apply(func(s State) (State, bool) { return Failed(s, attempt.ID, scanErr) })
	if !ok {
		return ErrAttemptSuperseded
	}
	return uc.settleFailure(ctx, attempt, img, next.Error)
}

func (uc *ScanUseCase) settleFailure(ctx context.Context, attempt Attempt, img *acquire.CapturedImage, scanErr *scanerror.Error) error {
	uc.apply(func(s State) (State, bool) { return Settle(s, attempt.ID) })
	logging.WithAttempt(uc.logger, "usecase.scan", attempt.RequestID, attempt.ID).
		Warn("scan failed", zap.String("kind", string(scanErr.Kind)), zap.Error(scanErr))
	uc.record(ctx, attempt, img, nil, scanErr)
	return scanErr
}

func (uc *ScanUseCase) apply(fn func(State) (State, bool)) (State, bool) {
	uc.mu.Lock()
	prev := uc.state
	next, ok := fn(prev)
	if ok {
		uc.state = next
	}
	uc.mu.Unlock()

	if ok {
		uc.notify(prev, next)
	}
	return next, ok
}

func (uc *ScanUseCase) notify(prev, next State) {
	if uc.onTransition != nil {
		uc.onTransition(prev, next)
	}
}

func (uc *ScanUseCase) record(ctx context.Context, attempt Attempt, img *acquire.CapturedImage, result *ScanResult, scanErr *scanerror.Error) {
	if uc.history == nil {
		return
	}
	log := &repository.ScanLog{
		RequestID: attempt.RequestID,
		AttemptID: attempt.ID,
		CreatedAt: time.Now().UTC(),
	}
	if img != nil {
		log.Source = string(img.Source)
		log.ImageSHA1 = img.SHA1
		log.ImageBytes = img.Size
	}
	if result != nil {
		log.URL = result.URL
		log.Classification = string(result.Classification)
	}
	if scanErr != nil {
		log.ErrorKind = string(scanErr.Kind)
	}
	if err := uc.history.SaveLog(ctx, log); err != nil {
		logging.WithAttempt(uc.logger, "usecase.record", attempt.RequestID, attempt.ID).
			Warn("failed to persist scan log", zap.Error(err))
	}
}
