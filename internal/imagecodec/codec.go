// Package imagecodec converts captured images between the encoded form kept
// by the acquirer and the bare base64 payload the decode service accepts.
package imagecodec

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	dataScheme = "data:"
	separator  = ","
)

// Normalize strips data-URL metadata prefixes ("data:image/png;base64,")
// and returns the payload after them. A prefix left behind after stripping
// one is stripped too, so Normalize(Normalize(x)) == Normalize(x). Input
// without a prefix is returned unchanged.
func Normalize(encoded string) string {
	for HasPrefix(encoded) {
		encoded = encoded[strings.Index(encoded, separator)+1:]
	}
	return encoded
}

// HasPrefix reports whether encoded still carries a transport metadata prefix.
func HasPrefix(encoded string) bool {
	return strings.HasPrefix(encoded, dataScheme) && strings.Contains(encoded, separator)
}

// EncodeDataURL renders data as a base64 data URL of the given MIME type.
func EncodeDataURL(mimeType string, data []byte) string {
	var b strings.Builder
	b.Grow(len(dataScheme) + len(mimeType) + len(";base64,") + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(dataScheme)
	b.WriteString(mimeType)
	b.WriteString(";base64")
	b.WriteString(separator)
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// ParseDataURL splits a base64 data URL into its MIME type and raw bytes.
func ParseDataURL(encoded string) (string, []byte, error) {
	mimeType := MIMEOf(encoded)
	raw, err := base64.StdEncoding.DecodeString(Normalize(encoded))
	if err != nil {
		return "", nil, err
	}
	if mimeType == "" {
		mimeType = Sniff(raw)
	}
	return mimeType, raw, nil
}

// MIMEOf returns the media type declared by a data URL prefix, or "".
func MIMEOf(encoded string) string {
	if !HasPrefix(encoded) {
		return ""
	}
	meta := encoded[len(dataScheme):strings.Index(encoded, separator)]
	if i := strings.Index(meta, ";"); i >= 0 {
		meta = meta[:i]
	}
	return meta
}

// EncodePNG encodes a raster frame losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sniff detects the MIME type of raw image bytes.
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}
