package acquire

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/secqr/internal/imagecodec"
	"github.com/example/secqr/internal/scanerror"
)

type stubStream struct {
	mu      sync.Mutex
	playErr error
	frame   image.Image
	stops   int
}

func (s *stubStream) Play(ctx context.Context) error { return s.playErr }

func (s *stubStream) Frame() (image.Image, error) {
	if s.frame == nil {
		return nil, errors.New("no frame")
	}
	return s.frame, nil
}

func (s *stubStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *stubStream) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

type stubDevice struct {
	stream      *stubStream
	openErr     error
	opens       int
	constraints Constraints
}

func (d *stubDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	d.opens++
	d.constraints = c
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.stream, nil
}

// blockingReader returns its data only after release is closed.
type blockingReader struct {
	started chan struct{}
	release chan struct{}
	data    io.Reader
	once    sync.Once
}

func (b *blockingReader) Read(p []byte) (int, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.data.Read(p)
}

func testFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(2, 2, color.White)
	return img
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testFrame()); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestCameraCaptureReleasesDevice(t *testing.T) {
	stream := &stubStream{frame: testFrame()}
	device := &stubDevice{stream: stream}
	a := New(device, zap.NewNop())

	if err := a.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}
	if device.constraints != DefaultConstraints() {
		t.Fatalf("unexpected constraints: %+v", device.constraints)
	}
	if a.Mode() != ModeStreaming {
		t.Fatalf("expected streaming, got %s", a.Mode())
	}

	img, err := a.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if stream.stopCount() != 1 {
		t.Fatalf("expected stream stopped once, got %d", stream.stopCount())
	}
	if a.Mode() != ModeReady {
		t.Fatalf("expected ready after capture, got %s", a.Mode())
	}
	if img.Source != SourceCamera || img.MIME != "image/png" {
		t.Fatalf("unexpected image metadata: %+v", img)
	}
	if imagecodec.HasPrefix(img.Payload) {
		t.Fatal("payload carries a transport prefix")
	}
	if !strings.HasPrefix(img.Encoded, "data:image/png;base64,") {
		t.Fatalf("unexpected encoded prefix: %.30s", img.Encoded)
	}
}

func TestStartCameraIsSingleStream(t *testing.T) {
	device := &stubDevice{stream: &stubStream{frame: testFrame()}}
	a := New(device, zap.NewNop())

	for i := 0; i < 2; i++ {
		if err := a.StartCamera(context.Background()); err != nil {
			t.Fatalf("StartCamera #%d: %v", i, err)
		}
	}
	if device.opens != 1 {
		t.Fatalf("expected one open, got %d", device.opens)
	}
}

func TestStartCameraDenied(t *testing.T) {
	a := New(&stubDevice{openErr: errors.New("NotAllowedError")}, zap.NewNop())

	err := a.StartCamera(context.Background())
	if scanerror.KindOf(err) != scanerror.KindCameraUnavailable {
		t.Fatalf("expected camera_unavailable, got %v", err)
	}
	if a.Mode() != ModeReady {
		t.Fatalf("expected ready after failure, got %s", a.Mode())
	}
}

func TestStartCameraPlaybackFailureStopsStream(t *testing.T) {
	stream := &stubStream{playErr: errors.New("autoplay blocked")}
	a := New(&stubDevice{stream: stream}, zap.NewNop())

	err := a.StartCamera(context.Background())
	var scanErr *scanerror.Error
	if !errors.As(err, &scanErr) || scanErr.Kind != scanerror.KindCameraUnavailable {
		t.Fatalf("expected camera_unavailable, got %v", err)
	}
	if scanErr.Message != scanerror.MessagePlaybackFailed {
		t.Fatalf("unexpected message %q", scanErr.Message)
	}
	if stream.stopCount() != 1 {
		t.Fatalf("expected stream stopped, got %d stops", stream.stopCount())
	}
}

func TestStartCameraWithoutDevice(t *testing.T) {
	a := New(nil, zap.NewNop())
	err := a.StartCamera(context.Background())
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected ErrNoDevice, got %v", err)
	}
}

func TestCaptureWithoutStream(t *testing.T) {
	a := New(&stubDevice{stream: &stubStream{}}, zap.NewNop())
	_, err := a.Capture(context.Background())
	if !errors.Is(err, ErrCameraInactive) {
		t.Fatalf("expected ErrCameraInactive, got %v", err)
	}
}

func TestUploadStopsActiveCamera(t *testing.T) {
	stream := &stubStream{frame: testFrame()}
	a := New(&stubDevice{stream: stream}, zap.NewNop())
	if err := a.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}

	raw := testPNG(t)
	img, err := a.Upload(context.Background(), FileInfo{Name: "qr.png", MIME: "image/png", Size: int64(len(raw))}, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if stream.stopCount() != 1 {
		t.Fatalf("expected camera stopped before upload, got %d stops", stream.stopCount())
	}
	if img.Source != SourceUpload || img.Size != len(raw) {
		t.Fatalf("unexpected image: %+v", img)
	}
	if a.Mode() != ModeReady {
		t.Fatalf("expected ready after upload, got %s", a.Mode())
	}
}

func TestUploadValidation(t *testing.T) {
	raw := testPNG(t)
	tests := []struct {
		name string
		info FileInfo
		body []byte
		want scanerror.Kind
	}{
		{name: "text file", info: FileInfo{MIME: "text/plain", Size: 5}, body: []byte("hello"), want: scanerror.KindInvalidFileType},
		{name: "sniffed text", info: FileInfo{Size: 5}, body: []byte("hello"), want: scanerror.KindInvalidFileType},
		{name: "declared too large", info: FileInfo{MIME: "image/png", Size: 6 * 1024 * 1024}, body: raw, want: scanerror.KindFileTooLarge},
		{name: "actual too large", info: FileInfo{MIME: "image/png", Size: -1}, body: make([]byte, DefaultMaxUploadSize+1), want: scanerror.KindFileTooLarge},
		{name: "empty", info: FileInfo{MIME: "image/png"}, body: nil, want: scanerror.KindFileReadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(nil, zap.NewNop())
			_, err := a.Upload(context.Background(), tt.info, bytes.NewReader(tt.body))
			if got := scanerror.KindOf(err); got != tt.want {
				t.Fatalf("expected %s, got %s (%v)", tt.want, got, err)
			}
			if a.Mode() != ModeReady {
				t.Fatalf("expected ready after rejection, got %s", a.Mode())
			}
		})
	}
}

func TestUploadSniffsMissingMIME(t *testing.T) {
	raw := testPNG(t)
	a := New(nil, zap.NewNop())
	img, err := a.Upload(context.Background(), FileInfo{Name: "qr", Size: -1}, bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if img.MIME != "image/png" {
		t.Fatalf("expected sniffed image/png, got %q", img.MIME)
	}
}

func TestCameraRefusedWhileUploadPending(t *testing.T) {
	device := &stubDevice{stream: &stubStream{frame: testFrame()}}
	a := New(device, zap.NewNop())
	raw := testPNG(t)
	reader := &blockingReader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		data:    bytes.NewReader(raw),
	}

	done := make(chan error, 1)
	go func() {
		_, err := a.Upload(context.Background(), FileInfo{MIME: "image/png", Size: int64(len(raw))}, reader)
		done <- err
	}()

	select {
	case <-reader.started:
	case <-time.After(2 * time.Second):
		t.Fatal("upload did not start reading")
	}

	err := a.StartCamera(context.Background())
	if !errors.Is(err, ErrCapturePending) {
		t.Fatalf("expected ErrCapturePending, got %v", err)
	}
	if device.opens != 0 {
		t.Fatalf("device opened during pending upload: %d", device.opens)
	}

	close(reader.release)
	if err := <-done; err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if err := a.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera after upload: %v", err)
	}
}

func TestImportFrame(t *testing.T) {
	raw := testPNG(t)
	a := New(nil, zap.NewNop())

	img, err := a.ImportFrame(imagecodec.EncodeDataURL("image/png", raw))
	if err != nil {
		t.Fatalf("ImportFrame: %v", err)
	}
	if img.Source != SourceCamera {
		t.Fatalf("expected camera source, got %s", img.Source)
	}
	if imagecodec.HasPrefix(img.Payload) {
		t.Fatal("payload carries a transport prefix")
	}

	_, err = a.ImportFrame(imagecodec.EncodeDataURL("text/plain", []byte("hi")))
	if scanerror.KindOf(err) != scanerror.KindInvalidFileType {
		t.Fatalf("expected invalid_file_type, got %v", err)
	}
}

func TestResetAndCloseReleaseCamera(t *testing.T) {
	stream := &stubStream{frame: testFrame()}
	a := New(&stubDevice{stream: stream}, zap.NewNop())
	if err := a.StartCamera(context.Background()); err != nil {
		t.Fatalf("StartCamera: %v", err)
	}

	a.Reset()
	if stream.stopCount() != 1 || a.Mode() != ModeReady {
		t.Fatalf("reset did not release camera: stops=%d mode=%s", stream.stopCount(), a.Mode())
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if stream.stopCount() != 1 {
		t.Fatalf("close stopped an already released stream: %d", stream.stopCount())
	}
}
