package portal

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/presencepro-api/internal/dto"
	"github.com/noah-isme/presencepro-api/internal/models"
)

// Pager tracks list pagination.
type Pager struct {
	Page    int
	PerPage int
	Total   int
}

// PagerFrom builds a pager from an API pagination block.
func PagerFrom(p *models.Pagination) Pager {
	if p == nil {
		return Pager{Page: 1}
	}
	return Pager{Page: p.Page, PerPage: p.PerPage, Total: p.Total}
}

// Pages is the page count, never less than one.
func (p Pager) Pages() int {
	if p.PerPage <= 0 || p.Total <= 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// HasPrev is false on the first page.
func (p Pager) HasPrev() bool {
	return p.Page > 1
}

// HasNext is false on the last page.
func (p Pager) HasNext() bool {
	return p.Page < p.Pages()
}

// QRDisplay shows one issued code until it expires or is closed. It never
// re-checks the code with the server.
type QRDisplay struct {
	mu        sync.Mutex
	sessionID string
	uuid      string
	dataURL   string
	expiresAt time.Time
	closed    bool
}

// NewQRDisplay wraps an issued token.
func NewQRDisplay(token *models.QRToken) *QRDisplay {
	return &QRDisplay{
		sessionID: token.SessionID,
		uuid:      token.UUID,
		dataURL:   token.QRCodeData,
		expiresAt: token.ExpiresAt,
	}
}

// Remaining is the countdown value, zero once expired.
func (d *QRDisplay) Remaining(now time.Time) time.Duration {
	left := d.expiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether expires_at has passed.
func (d *QRDisplay) Expired(now time.Time) bool {
	return !now.Before(d.expiresAt)
}

// Close discards the display.
func (d *QRDisplay) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Visible is false after expiry or Close.
func (d *QRDisplay) Visible(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.closed && !d.Expired(now)
}

// Image returns the data URL while the display is visible.
func (d *QRDisplay) Image(now time.Time) string {
	if !d.Visible(now) {
		return ""
	}
	return d.dataURL
}

// ErrIncompleteScanLink is set on a form built from a link missing the
// session or code.
var ErrIncompleteScanLink = errors.New("invalid attendance link: session_id and uuid are required")

// ErrMissingIndexNumber rejects an empty student index number.
var ErrMissingIndexNumber = errors.New("student index number is required")

// attendanceMarker is the client call the form submits through.
type attendanceMarker interface {
	MarkAttendance(ctx context.Context, sessionID, indexNumber, qrUUID string) (*dto.MarkAttendanceResponse, error)
}

// AttendanceForm is the student scan page.
type AttendanceForm struct {
	SessionID string
	UUID      string
	err       error
}

// NewAttendanceForm reads session_id and uuid from the scanned link query.
func NewAttendanceForm(rawQuery string) *AttendanceForm {
	form := &AttendanceForm{}
	values, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err == nil {
		form.SessionID = strings.TrimSpace(values.Get("session_id"))
		form.UUID = strings.TrimSpace(values.Get("uuid"))
	}
	if form.SessionID == "" || form.UUID == "" {
		form.err = ErrIncompleteScanLink
	}
	return form
}

// Err is the error shown on the page, if any.
func (f *AttendanceForm) Err() error {
	return f.err
}

// CanSubmit is false while the link is incomplete.
func (f *AttendanceForm) CanSubmit() bool {
	return f.err == nil
}

// Submit posts the scan. Validity of the code is left to the server.
func (f *AttendanceForm) Submit(ctx context.Context, api attendanceMarker, indexNumber string) (*dto.MarkAttendanceResponse, error) {
	if !f.CanSubmit() {
		return nil, f.err
	}
	indexNumber = strings.TrimSpace(indexNumber)
	if indexNumber == "" {
		return nil, ErrMissingIndexNumber
	}
	return api.MarkAttendance(ctx, f.SessionID, indexNumber, f.UUID)
}
