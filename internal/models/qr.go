package models

import "time"

// QRToken is an issued attendance code.
type QRToken struct {
	SessionID  string    `json:"session_id"`
	UUID       string    `json:"qr_code_uuid"`
	QRCodeData string    `json:"qr_code_data"`
	ScanURL    string    `json:"scan_url"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// QRStatus describes whether a session currently accepts scans.
type QRStatus struct {
	IsActive   bool       `json:"is_active"`
	QRCodeData *string    `json:"qr_code_data,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Message    string     `json:"message"`
}
