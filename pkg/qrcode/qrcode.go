// Package qrcode renders attendance scan URLs as PNG data URLs.
package qrcode

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	goqrcode "github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

// DefaultSize is the PNG edge length in pixels.
const DefaultSize = 256

// Encoder builds scan URLs and renders them as QR images.
type Encoder struct {
	baseURL string
	size    int
}

// NewEncoder returns an encoder pointing scans at baseURL.
func NewEncoder(baseURL string, size int) *Encoder {
	if size <= 0 {
		size = DefaultSize
	}
	return &Encoder{baseURL: strings.TrimRight(baseURL, "/"), size: size}
}

// ScanURL is the page a student's phone opens after scanning.
func (e *Encoder) ScanURL(sessionID, code string) string {
	q := url.Values{}
	q.Set("session_id", sessionID)
	q.Set("uuid", code)
	return e.baseURL + "/mark-attendance?" + q.Encode()
}

// DataURL encodes content as a base64 PNG data URL.
func (e *Encoder) DataURL(content string) (string, error) {
	png, err := goqrcode.Encode(content, goqrcode.Medium, e.size)
	if err != nil {
		return "", fmt.Errorf("encode qr code: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// Decode returns the PNG bytes held in a data URL produced by DataURL.
func Decode(dataURL string) ([]byte, error) {
	if !strings.HasPrefix(dataURL, dataURLPrefix) {
		return nil, fmt.Errorf("not a png data url")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, dataURLPrefix))
}
