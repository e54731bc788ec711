package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidDownloadToken covers malformed and tampered tokens.
	ErrInvalidDownloadToken = errors.New("invalid download token")
	// ErrDownloadExpired is returned together with the decoded grant.
	ErrDownloadExpired = errors.New("download token expired")
)

// DownloadGrant is what a download token carries.
type DownloadGrant struct {
	ReportID  string
	File      string
	ExpiresAt time.Time
}

// DownloadSigner issues HMAC-SHA256 tokens for report downloads.
type DownloadSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewDownloadSigner defaults ttl to one day.
func NewDownloadSigner(secret string, ttl time.Duration) *DownloadSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DownloadSigner{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a URL-safe token of the form payload.signature.
func (s *DownloadSigner) Sign(reportID, file string) (string, DownloadGrant, error) {
	if reportID == "" || file == "" {
		return "", DownloadGrant{}, errors.New("report id and file are required")
	}
	if len(s.key) == 0 {
		return "", DownloadGrant{}, errors.New("download signing secret missing")
	}
	grant := DownloadGrant{ReportID: reportID, File: file, ExpiresAt: s.now().Add(s.ttl).Truncate(time.Second)}
	payload := strings.Join([]string{grant.ReportID, grant.File, strconv.FormatInt(grant.ExpiresAt.Unix(), 10)}, "\n")
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return encoded + "." + s.sign(encoded), grant, nil
}

// Verify checks the signature and expiry. An expired token still yields its
// grant alongside ErrDownloadExpired so cleanup can locate the file.
func (s *DownloadSigner) Verify(token string) (DownloadGrant, error) {
	encoded, signature, ok := strings.Cut(token, ".")
	if !ok || !hmac.Equal([]byte(signature), []byte(s.sign(encoded))) {
		return DownloadGrant{}, ErrInvalidDownloadToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return DownloadGrant{}, ErrInvalidDownloadToken
	}
	fields := strings.Split(string(raw), "\n")
	if len(fields) != 3 {
		return DownloadGrant{}, ErrInvalidDownloadToken
	}
	unix, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return DownloadGrant{}, ErrInvalidDownloadToken
	}
	grant := DownloadGrant{ReportID: fields[0], File: fields[1], ExpiresAt: time.Unix(unix, 0)}
	if !s.now().Before(grant.ExpiresAt) {
		return grant, ErrDownloadExpired
	}
	return grant, nil
}

func (s *DownloadSigner) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
