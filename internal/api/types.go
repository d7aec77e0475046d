package api

import "github.com/mattjoyce/printbridge/internal/journal"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Running       bool   `json:"running"`
	PrinterLink   string `json:"printer_link"`
}

// JobsResponse is returned by GET /jobs.
type JobsResponse struct {
	Jobs []journal.Entry `json:"jobs"`
}
