package database

import (
	"time"
)

// ReportLog is one generated report
type ReportLog struct {
	ID         string
	ReportType string
	ReportDate time.Time
	Stage      string
	Subject    string
	Text       string
	Status     string
	Error      *string
	Debug      string // stored zstd-compressed
	Channels   []string
	CreatedAt  time.Time
}

// CommandLog is one inbound SMS command
type CommandLog struct {
	ID         string
	Sender     string
	Body       string
	Command    string
	Status     string
	Result     string
	ReceivedAt time.Time
}

const (
	ReportStatusSent    = "SENT"
	ReportStatusQueued  = "QUEUED"
	ReportStatusSkipped = "SKIPPED"
	ReportStatusFailed  = "FAILED"
	ReportStatusDryRun  = "DRY_RUN"

	CommandStatusApplied  = "APPLIED"
	CommandStatusRejected = "REJECTED"
)
