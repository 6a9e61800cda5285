package acquire

import (
	"crypto/sha1"
	"encoding/hex"

	"github.com/example/secqr/internal/imagecodec"
)

// Source records how an image was obtained.
type Source string

const (
	SourceCamera Source = "camera"
	SourceUpload Source = "upload"
)

// CapturedImage is an encoded still image. It is immutable once created.
type CapturedImage struct {
	Source Source `json:"source"`
	MIME   string `json:"mime"`
	// Encoded is the data URL form, suitable for redisplay.
	Encoded string `json:"encoded"`
	// Payload is Encoded without its metadata prefix.
	Payload string `json:"-"`
	Size    int    `json:"size"`
	SHA1    string `json:"sha1"`
}

func newCapturedImage(source Source, mimeType string, raw []byte) CapturedImage {
	encoded := imagecodec.EncodeDataURL(mimeType, raw)
	sum := sha1.Sum(raw)
	return CapturedImage{
		Source:  source,
		MIME:    mimeType,
		Encoded: encoded,
		Payload: imagecodec.Normalize(encoded),
		Size:    len(raw),
		SHA1:    hex.EncodeToString(sum[:]),
	}
}
