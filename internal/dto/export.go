package dto

import "time"

// ExportLink points at an archived report download.
type ExportLink struct {
	Filename    string     `json:"filename"`
	DownloadURL string     `json:"download_url"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}
