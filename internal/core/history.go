package core

import (
	"context"
	"time"
)

// ManifestInfo describes one ingested manifest.
type ManifestInfo struct {
	ID          string      `json:"id"`
	Source      string      `json:"source"`
	Fingerprint string      `json:"fingerprint"`
	SizeBytes   int         `json:"sizeBytes"`
	MatchMode   string      `json:"matchMode"`
	HeaderRow   int         `json:"headerRow"`
	HeaderFound bool        `json:"headerFound"`
	RowsRead    int         `json:"rowsRead"`
	Admitted    int         `json:"admitted"`
	Dropped     int         `json:"dropped"`
	Collisions  []Collision `json:"collisions,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// RunStatus is the outcome of a tracking run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// RunRecord is the persisted history entry of one tracking run.
type RunRecord struct {
	ID         string     `json:"id"`
	ManifestID string     `json:"manifestId"`
	Status     RunStatus  `json:"status"`
	Summary    RunSummary `json:"summary"`
	Error      string     `json:"error,omitempty"`
	ClientIP   string     `json:"clientIp,omitempty"`
	UserAgent  string     `json:"userAgent,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
}

// RunStore persists manifests and finished tracking runs.
type RunStore interface {
	SaveManifest(ctx context.Context, m ManifestInfo) error
	SaveRun(ctx context.Context, run RunRecord, results []ShipmentRecord) error
	ListRuns(ctx context.Context, manifestID string, limit int) ([]RunRecord, error)
	RunResults(ctx context.Context, runID string) ([]ShipmentRecord, error)
}

// ETAChangedEvent is published for every record whose live ETA moved away
// from the system ETA during a run.
type ETAChangedEvent struct {
	ManifestID     string        `json:"manifestId"`
	RunID          string        `json:"runId"`
	RecordID       int           `json:"recordId"`
	TrackingNumber string        `json:"trackingNumber"`
	Carrier        string        `json:"carrier"`
	Mode           TransportMode `json:"transportMode"`
	SystemETA      string        `json:"systemEta"`
	LiveETA        string        `json:"liveEta"`
	Status         string        `json:"status"`
	OccurredAt     time.Time     `json:"occurredAt"`
}

// EventPublisher delivers ETA-change events to downstream consumers.
type EventPublisher interface {
	PublishETAChanged(ctx context.Context, events []ETAChangedEvent) error
}
