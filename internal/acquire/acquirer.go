// Package acquire obtains still images from a camera device or an uploaded
// file and normalizes both into a CapturedImage.
package acquire

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/secqr/internal/imagecodec"
	"github.com/example/secqr/internal/scanerror"
)

// DefaultMaxUploadSize is the largest accepted image, 5 MiB.
const DefaultMaxUploadSize = 5 * 1024 * 1024

// sniffLen matches mimetype's default read limit.
const sniffLen = 3072

var (
	// ErrCapturePending is returned when a camera or upload is requested while
	// an upload read is still in progress.
	ErrCapturePending = errors.New("a capture is already in progress")
	// ErrCameraInactive is returned by Capture without an active stream.
	ErrCameraInactive = errors.New("camera is not active")
	// ErrCameraReleased is returned when a stream finished opening after the
	// session was reset or handed over to an upload.
	ErrCameraReleased = errors.New("camera session released while opening")
	// ErrNoDevice is returned when the acquirer has no camera device.
	ErrNoDevice = errors.New("no camera device")
)

// Mode is the acquirer's resource state.
type Mode string

const (
	ModeReady     Mode = "ready"
	ModeOpening   Mode = "opening"
	ModeStreaming Mode = "streaming"
	ModeReading   Mode = "reading"
)

// FileInfo describes a user-selected file. An empty MIME is sniffed from
// the content; a negative Size means unknown.
type FileInfo struct {
	Name string
	MIME string
	Size int64
}

// Acquirer owns the camera device. At most one stream is open at a time and
// it is released after capture, before an upload is read, and on Reset or
// Close.
type Acquirer struct {
	device      Device
	constraints Constraints
	maxUpload   int64
	logger      *zap.Logger

	mu     sync.Mutex
	mode   Mode
	stream Stream
}

// Option configures an Acquirer.
type Option func(*Acquirer)

// WithConstraints overrides the requested camera configuration.
func WithConstraints(c Constraints) Option {
	return func(a *Acquirer) {
		a.constraints = c
	}
}

// WithMaxUploadSize overrides the upload size limit.
func WithMaxUploadSize(n int64) Option {
	return func(a *Acquirer) {
		if n > 0 {
			a.maxUpload = n
		}
	}
}

// New creates an Acquirer. device may be nil when only uploads are used.
func New(device Device, logger *zap.Logger, opts ...Option) *Acquirer {
	a := &Acquirer{
		device:      device,
		constraints: DefaultConstraints(),
		maxUpload:   DefaultMaxUploadSize,
		logger:      logger.Named("acquirer"),
		mode:        ModeReady,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Constraints returns the video configuration requested from the device.
func (a *Acquirer) Constraints() Constraints {
	return a.constraints
}

// Mode reports the current resource state.
func (a *Acquirer) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// StartCamera opens and starts the camera. It is a no-op when a stream is
// already open or opening.
func (a *Acquirer) StartCamera(ctx context.Context) error {
	if a.device == nil {
		return scanerror.Wrap(scanerror.KindCameraUnavailable, "", ErrNoDevice)
	}

	a.mu.Lock()
	switch a.mode {
	case ModeReading:
		a.mu.Unlock()
		return scanerror.Wrap(scanerror.KindCameraUnavailable, "", ErrCapturePending)
	case ModeOpening, ModeStreaming:
		a.mu.Unlock()
		return nil
	}
	a.mode = ModeOpening
	a.mu.Unlock()

	stream, err := a.device.Open(ctx, a.constraints)
	if err != nil {
		a.setMode(ModeOpening, ModeReady)
		a.logger.Warn("camera access denied", zap.Error(err))
		return scanerror.Wrap(scanerror.KindCameraUnavailable, scanerror.MessageCameraUnavailable, err)
	}

	if err := stream.Play(ctx); err != nil {
		stream.Stop()
		a.setMode(ModeOpening, ModeReady)
		a.logger.Warn("camera playback failed", zap.Error(err))
		return scanerror.Wrap(scanerror.KindCameraUnavailable, scanerror.MessagePlaybackFailed, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode != ModeOpening {
		stream.Stop()
		return scanerror.Wrap(scanerror.KindCameraUnavailable, "", ErrCameraReleased)
	}
	a.stream = stream
	a.mode = ModeStreaming
	a.logger.Debug("camera started",
		zap.String("facing", string(a.constraints.Facing)),
		zap.Int("width", a.constraints.Width),
		zap.Int("height", a.constraints.Height))
	return nil
}

// Capture grabs one frame, releases the camera, and returns the frame as a
// PNG image.
func (a *Acquirer) Capture(ctx context.Context) (CapturedImage, error) {
	a.mu.Lock()
	if a.mode != ModeStreaming {
		a.mu.Unlock()
		return CapturedImage{}, scanerror.Wrap(scanerror.KindCameraUnavailable, "", ErrCameraInactive)
	}
	stream := a.stream
	a.stream = nil
	a.mode = ModeReady
	a.mu.Unlock()

	frame, err := stream.Frame()
	stream.Stop()
	if err != nil {
		return CapturedImage{}, scanerror.Wrap(scanerror.KindCameraUnavailable, "", err)
	}
	if err := ctx.Err(); err != nil {
		return CapturedImage{}, scanerror.Wrap(scanerror.KindCameraUnavailable, "", err)
	}

	raw, err := imagecodec.EncodePNG(frame)
	if err != nil {
		return CapturedImage{}, scanerror.Wrap(scanerror.KindCameraUnavailable, "", err)
	}
	img := newCapturedImage(SourceCamera, "image/png", raw)
	a.logger.Debug("frame captured", zap.Int("bytes", img.Size))
	return img, nil
}

// Upload validates and reads a user-selected file. Validation happens before
// any byte is read; an active camera is stopped before reading.
func (a *Acquirer) Upload(ctx context.Context, info FileInfo, r io.Reader) (CapturedImage, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	mimeType := info.MIME
	if mimeType == "" {
		head, _ := br.Peek(sniffLen)
		mimeType = imagecodec.Sniff(head)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return CapturedImage{}, scanerror.New(scanerror.KindInvalidFileType, "")
	}
	if info.Size > a.maxUpload {
		return CapturedImage{}, scanerror.New(scanerror.KindFileTooLarge, "")
	}

	a.mu.Lock()
	if a.mode == ModeReading {
		a.mu.Unlock()
		return CapturedImage{}, scanerror.Wrap(scanerror.KindFileReadFailed, "", ErrCapturePending)
	}
	a.releaseLocked()
	a.mode = ModeReading
	a.mu.Unlock()
	defer a.setMode(ModeReading, ModeReady)

	if err := ctx.Err(); err != nil {
		return CapturedImage{}, scanerror.Wrap(scanerror.KindFileReadFailed, "", err)
	}
	raw, err := io.ReadAll(io.LimitReader(br, a.maxUpload+1))
	if err != nil {
		return CapturedImage{}, scanerror.Wrap(scanerror.KindFileReadFailed, "", err)
	}
	if int64(len(raw)) > a.maxUpload {
		return CapturedImage{}, scanerror.New(scanerror.KindFileTooLarge, "")
	}
	if len(raw) == 0 {
		return CapturedImage{}, scanerror.Wrap(scanerror.KindFileReadFailed, "", io.ErrUnexpectedEOF)
	}

	img := newCapturedImage(SourceUpload, mimeType, raw)
	a.logger.Debug("upload read", zap.String("name", info.Name), zap.Int("bytes", img.Size))
	return img, nil
}

// ImportFrame accepts a frame that a remote client captured from its own
// camera, encoded as a data URL.
func (a *Acquirer) ImportFrame(encoded string) (CapturedImage, error) {
	mimeType, raw, err := imagecodec.ParseDataURL(encoded)
	if err != nil {
		return CapturedImage{}, scanerror.Wrap(scanerror.KindFileReadFailed, "", err)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return CapturedImage{}, scanerror.New(scanerror.KindInvalidFileType, "")
	}
	if int64(len(raw)) > a.maxUpload {
		return CapturedImage{}, scanerror.New(scanerror.KindFileTooLarge, "")
	}
	if len(raw) == 0 {
		return CapturedImage{}, scanerror.Wrap(scanerror.KindFileReadFailed, "", io.ErrUnexpectedEOF)
	}
	return newCapturedImage(SourceCamera, mimeType, raw), nil
}

// StopCamera releases the camera if it is open.
func (a *Acquirer) StopCamera() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
}

// Reset returns to the ready state so both capture methods are offered
// again. An upload read in flight is left to finish.
func (a *Acquirer) Reset() {
	a.StopCamera()
}

// Close releases the camera when the scan view goes away.
func (a *Acquirer) Close() error {
	a.StopCamera()
	return nil
}

func (a *Acquirer) releaseLocked() {
	if a.stream != nil {
		a.stream.Stop()
		a.stream = nil
		a.logger.Debug("camera released")
	}
	if a.mode == ModeStreaming || a.mode == ModeOpening {
		a.mode = ModeReady
	}
}

func (a *Acquirer) setMode(from, to Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == from {
		a.mode = to
	}
}
