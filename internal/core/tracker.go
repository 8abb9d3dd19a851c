package core

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"
)

// StatusNoStatus is used when a lookup response carries no status text.
const StatusNoStatus = "Error"

// SummaryNoData is used when a lookup response carries no summary text.
const SummaryNoData = "No data"

// Tracker drives one remote lookup per selected record, strictly in
// collection order and one at a time.
type Tracker struct {
	lookup Lookup
	logger *slog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger used for run and per-record diagnostics.
func WithTrackerLogger(l *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker creates a Tracker that resolves records through lookup.
func NewTracker(lookup Lookup, opts ...TrackerOption) *Tracker {
	t := &Tracker{lookup: lookup, logger: slog.Default()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run tracks the records selected when it is called. Selection changes made
// during the run do not affect it; records deleted during the run are skipped
// but still count toward progress.
//
// Lookup failures never abort the run: the record is marked failed with
// status "Network Error". When ctx is cancelled the remaining records stay
// pending and Run returns the partial summary with ctx.Err().
func (t *Tracker) Run(ctx context.Context, c *Collection, onProgress ProgressFunc) (RunSummary, error) {
	ids := c.SelectedIDs()
	if len(ids) == 0 {
		return RunSummary{}, ErrNothingSelected
	}

	summary := RunSummary{Total: len(ids), StartedAt: time.Now()}
	for _, id := range ids {
		_ = c.Update(id, func(r *ShipmentRecord) { r.State = StatePending })
	}

	t.logger.Info("tracking run started", "records", len(ids))

	var runErr error
	completed := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		state, err := t.trackOne(ctx, c, id)
		if err != nil {
			runErr = err
			break
		}
		switch {
		case !state.Terminal():
			summary.Skipped++
		case state == StateResolved:
			summary.Resolved++
			if rec, ok := c.Get(id); ok && rec.ETAChanged {
				summary.ETAChanged = append(summary.ETAChanged, id)
			}
		default:
			summary.Failed++
		}

		completed++
		if onProgress != nil {
			onProgress(Progress{
				Completed: completed,
				Total:     len(ids),
				Percent:   Percent(completed, len(ids)),
				RecordID:  id,
				State:     state,
			})
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	t.logger.Info("tracking run finished",
		"resolved", summary.Resolved,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"eta_changed", len(summary.ETAChanged),
		"duration_ms", summary.Duration.Milliseconds(),
		"cancelled", runErr != nil,
	)
	return summary, runErr
}

// trackOne resolves a single record. It returns an empty state when the
// record no longer exists, and an error only when ctx was cancelled during
// the lookup, in which case the record is returned to pending.
func (t *Tracker) trackOne(ctx context.Context, c *Collection, id int) (TrackingState, error) {
	var req TrackRequest
	err := c.Update(id, func(r *ShipmentRecord) {
		r.State = StateInFlight
		req = TrackRequest{Number: r.TrackingNumber, Carrier: r.Carrier, SystemETA: r.SystemETA}
	})
	if err != nil {
		return "", nil
	}

	resp, err := t.lookup.Track(ctx, req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			_ = c.Update(id, func(r *ShipmentRecord) { r.State = StatePending })
			return StatePending, ctxErr
		}
		t.logger.Warn("tracking lookup failed", "record_id", id, "number", req.Number, "error", err)
		if c.Update(id, markFailed) != nil {
			return "", nil
		}
		return StateFailed, nil
	}

	if c.Update(id, func(r *ShipmentRecord) { ApplyResponse(r, resp) }) != nil {
		return "", nil
	}
	return StateResolved, nil
}

func markFailed(r *ShipmentRecord) {
	r.State = StateFailed
	r.Status = StatusNetworkError
}

// ApplyResponse resolves a record from a lookup response, filling defaults
// for absent fields. When the service does not say whether the ETA changed,
// it is derived by comparing the system and live ETAs.
func ApplyResponse(r *ShipmentRecord, resp TrackResponse) {
	r.State = StateResolved
	r.LiveETA = firstNonEmpty(string(resp.LiveETA), NotAvailable)
	r.Status = firstNonEmpty(string(resp.Status), StatusNoStatus)
	r.Summary = firstNonEmpty(string(resp.SmartSummary), string(resp.Message), SummaryNoData)
	r.CO2 = strings.TrimSpace(string(resp.CO2))
	if resp.ETAChanged != nil {
		r.ETAChanged = *resp.ETAChanged
	} else {
		r.ETAChanged = ETAChanged(r.SystemETA, r.LiveETA)
	}
}

// Percent returns completed/total as a rounded integer percentage.
func Percent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) * 100 / float64(total)))
}
