package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/shiptrack/internal/core"
)

// schema is applied by EnsureSchema. Every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS manifests (
	id           UUID PRIMARY KEY,
	source       TEXT        NOT NULL,
	fingerprint  TEXT        NOT NULL,
	size_bytes   INTEGER     NOT NULL,
	match_mode   TEXT        NOT NULL,
	header_row   INTEGER     NOT NULL,
	header_found BOOLEAN     NOT NULL,
	rows_read    INTEGER     NOT NULL,
	admitted     INTEGER     NOT NULL,
	dropped      INTEGER     NOT NULL,
	collisions   JSONB,
	created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS manifests_fingerprint_idx ON manifests (fingerprint);

CREATE TABLE IF NOT EXISTS tracking_runs (
	id          UUID PRIMARY KEY,
	manifest_id UUID        NOT NULL REFERENCES manifests (id) ON DELETE CASCADE,
	status      TEXT        NOT NULL,
	summary     JSONB       NOT NULL,
	error       TEXT,
	client_ip   TEXT,
	user_agent  TEXT,
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS tracking_runs_manifest_idx ON tracking_runs (manifest_id, started_at DESC);

CREATE TABLE IF NOT EXISTS run_results (
	run_id          UUID    NOT NULL REFERENCES tracking_runs (id) ON DELETE CASCADE,
	record_id       INTEGER NOT NULL,
	tracking_number TEXT    NOT NULL,
	carrier         TEXT    NOT NULL,
	system_eta      TEXT,
	system_eta_date DATE,
	transport_mode  TEXT    NOT NULL,
	tracking_state  TEXT    NOT NULL,
	live_eta        TEXT,
	live_eta_date   DATE,
	status          TEXT,
	summary         TEXT,
	co2             TEXT,
	eta_changed     BOOLEAN NOT NULL,
	selected        BOOLEAN NOT NULL,
	raw             JSONB,
	PRIMARY KEY (run_id, record_id)
);
`

var resultColumns = []string{
	"run_id", "record_id", "tracking_number", "carrier",
	"system_eta", "system_eta_date", "transport_mode", "tracking_state",
	"live_eta", "live_eta_date", "status", "summary", "co2",
	"eta_changed", "selected", "raw",
}

// Postgres stores run history in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ core.RunStore = (*Postgres)(nil)

// NewPostgres creates a store on an open pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *Postgres) SaveManifest(ctx context.Context, m core.ManifestInfo) error {
	collisions, err := json.Marshal(m.Collisions)
	if err != nil {
		return fmt.Errorf("encode collisions: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO manifests (id, source, fingerprint, size_bytes, match_mode, header_row,
			header_found, rows_read, admitted, dropped, collisions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`,
		ToPgUUID(m.ID), m.Source, m.Fingerprint, m.SizeBytes, m.MatchMode, m.HeaderRow,
		m.HeaderFound, m.RowsRead, m.Admitted, m.Dropped, string(collisions), ToPgTimestamptz(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert manifest %s: %w", m.ID, err)
	}
	return nil
}

// SaveRun writes the run row and its record snapshot in one transaction.
// Results are bulk loaded with COPY.
func (p *Postgres) SaveRun(ctx context.Context, run core.RunRecord, results []core.ShipmentRecord) error {
	summary, err := json.Marshal(run.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	_, err = tx.Exec(ctx, `
		INSERT INTO tracking_runs (id, manifest_id, status, summary, error, client_ip,
			user_agent, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ToPgUUID(run.ID), ToPgUUID(run.ManifestID), string(run.Status), string(summary),
		ToPgText(run.Error), ToPgText(run.ClientIP), ToPgText(run.UserAgent),
		ToPgTimestamptz(run.StartedAt), ToPgTimestamptz(run.FinishedAt),
	)
	if IsUniqueViolation(err) {
		return fmt.Errorf("insert run %s: %w", run.ID, core.ErrRunExists)
	}
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	runID := ToPgUUID(run.ID)
	rows := make([][]any, 0, len(results))
	for _, r := range results {
		raw, err := json.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("encode raw row %d: %w", r.ID, err)
		}
		rows = append(rows, []any{
			runID, int32(r.ID), r.TrackingNumber, r.Carrier,
			ToPgText(r.SystemETA), ToPgETA(r.SystemETA), string(r.Mode), string(r.State),
			ToPgText(r.LiveETA), ToPgETA(r.LiveETA), ToPgText(r.Status), ToPgText(r.Summary), ToPgText(r.CO2),
			r.ETAChanged, r.Selected, string(raw),
		})
	}

	if len(rows) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"run_results"}, resultColumns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("copy run results: %w", err)
		}
		if int(n) != len(rows) {
			return fmt.Errorf("copy run results: wrote %d of %d rows", n, len(rows))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListRuns returns a manifest's runs, newest first. limit <= 0 returns all.
func (p *Postgres) ListRuns(ctx context.Context, manifestID string, limit int) ([]core.RunRecord, error) {
	id := ToPgUUID(manifestID)
	if !id.Valid {
		return []core.RunRecord{}, nil
	}

	var lim pgtype.Int4
	if limit > 0 {
		lim = pgtype.Int4{Int32: int32(limit), Valid: true}
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, manifest_id, status, summary, error, client_ip, user_agent, started_at, finished_at
		FROM tracking_runs
		WHERE manifest_id = $1
		ORDER BY started_at DESC
		LIMIT $2`, id, lim)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []core.RunRecord{}
	for rows.Next() {
		var (
			runID, mID            pgtype.UUID
			status                string
			summary               []byte
			errText, clientIP, ua pgtype.Text
			startedAt, finishedAt pgtype.Timestamptz
		)
		if err := rows.Scan(&runID, &mID, &status, &summary, &errText, &clientIP, &ua, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		run := core.RunRecord{
			ID:         PgUUIDToString(runID),
			ManifestID: PgUUIDToString(mID),
			Status:     core.RunStatus(status),
			Error:      errText.String,
			ClientIP:   clientIP.String,
			UserAgent:  ua.String,
			StartedAt:  startedAt.Time,
			FinishedAt: finishedAt.Time,
		}
		if err := json.Unmarshal(summary, &run.Summary); err != nil {
			return nil, fmt.Errorf("decode run summary %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// RunResults returns the record snapshot saved with a run, in record order.
func (p *Postgres) RunResults(ctx context.Context, runID string) ([]core.ShipmentRecord, error) {
	id := ToPgUUID(runID)
	if !id.Valid {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tracking_runs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup run: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT record_id, tracking_number, carrier, system_eta, transport_mode, tracking_state,
			live_eta, status, summary, co2, eta_changed, selected, raw
		FROM run_results
		WHERE run_id = $1
		ORDER BY record_id`, id)
	if err != nil {
		return nil, fmt.Errorf("query run results: %w", err)
	}
	defer rows.Close()

	results := []core.ShipmentRecord{}
	for rows.Next() {
		var (
			r                                    core.ShipmentRecord
			recordID                             int32
			mode, state                          string
			systemETA, liveETA, status, sum, co2 pgtype.Text
			raw                                  []byte
		)
		if err := rows.Scan(&recordID, &r.TrackingNumber, &r.Carrier, &systemETA, &mode, &state,
			&liveETA, &status, &sum, &co2, &r.ETAChanged, &r.Selected, &raw); err != nil {
			return nil, fmt.Errorf("scan run result: %w", err)
		}
		r.ID = int(recordID)
		r.Mode = core.TransportMode(mode)
		r.State = core.TrackingState(state)
		r.SystemETA = systemETA.String
		r.LiveETA = liveETA.String
		r.Status = status.String
		r.Summary = sum.String
		r.CO2 = co2.String
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &r.Raw); err != nil {
				return nil, fmt.Errorf("decode raw row %d: %w", r.ID, err)
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run results: %w", err)
	}
	return results, nil
}

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint error.
func IsUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}
