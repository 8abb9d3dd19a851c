package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// PersistTimeout bounds saving a finished run and publishing its events.
var PersistTimeout = 15 * time.Second

// ServiceConfig holds manifest session settings.
type ServiceConfig struct {
	MatchMode        string        // default header rule profile
	HeaderSearchRows int           // rows scanned for a header (default 20)
	MaxFileSize      int64         // bytes; 0 means unlimited
	SessionTTL       time.Duration // idle manifests are dropped after this
	RunTimeout       time.Duration // 0 means runs only end when done or cancelled
}

// Service owns manifest sessions and their tracking runs.
type Service struct {
	cfg     ServiceConfig
	tracker *Tracker
	store   RunStore
	events  EventPublisher
	limiter *RunLimiter
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.RWMutex
	manifests map[string]*manifest
}

type manifest struct {
	info    ManifestInfo
	records *Collection

	mu         sync.Mutex
	run        *activeRun
	lastAccess time.Time
}

type activeRun struct {
	ID         string
	ManifestID string
	Cancel     context.CancelFunc
	Done       chan struct{}
	Record     RunRecord
	finishOnce sync.Once

	ListenerMu sync.Mutex
	Progress   Progress
	Listeners  []chan Progress
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRunStore persists manifests and finished runs.
func WithRunStore(s RunStore) ServiceOption {
	return func(svc *Service) { svc.store = s }
}

// WithEventPublisher publishes ETA-change events after each run.
func WithEventPublisher(p EventPublisher) ServiceOption {
	return func(svc *Service) { svc.events = p }
}

// WithRunLimiter caps concurrent runs across all manifests.
func WithRunLimiter(l *RunLimiter) ServiceOption {
	return func(svc *Service) { svc.limiter = l }
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// NewService creates a Service that resolves records through lookup.
func NewService(lookup Lookup, cfg ServiceConfig, opts ...ServiceOption) *Service {
	if cfg.MatchMode == "" {
		cfg.MatchMode = ProfileBroad
	}
	if cfg.HeaderSearchRows <= 0 {
		cfg.HeaderSearchRows = DefaultHeaderSearchRows
	}

	s := &Service{
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
		manifests: make(map[string]*manifest),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = NewRunLimiter(DefaultMaxConcurrentRuns, DefaultMaxWaitTime)
	}
	s.tracker = NewTracker(lookup, WithTrackerLogger(s.logger))
	return s
}

// Limiter returns the run limiter for health reporting.
func (s *Service) Limiter() *RunLimiter {
	return s.limiter
}

// ManifestView is a manifest with its current records and run state.
type ManifestView struct {
	ManifestInfo
	Records  []ShipmentRecord `json:"records"`
	Selected int              `json:"selected"`
	Run      *RunState        `json:"run,omitempty"`
}

// RunState is the state of a manifest's latest run.
type RunState struct {
	ID       string    `json:"id"`
	Status   RunStatus `json:"status"`
	Progress Progress  `json:"progress"`
}

// Ingest decodes a manifest file and opens a session for it.
// mode overrides the configured header rule profile when non-empty.
func (s *Service) Ingest(ctx context.Context, name string, data []byte, mode string) (*ManifestView, error) {
	if s.cfg.MaxFileSize > 0 && int64(len(data)) > s.cfg.MaxFileSize {
		return nil, &DecodeError{Source: name, Err: fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, len(data), s.cfg.MaxFileSize)}
	}

	ing, err := s.ingester(mode)
	if err != nil {
		return nil, err
	}
	result, err := ing.IngestFile(name, data)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, name, data, result), nil
}

// IngestText decodes pasted text and opens a session for it.
func (s *Service) IngestText(ctx context.Context, text string, mode string) (*ManifestView, error) {
	if s.cfg.MaxFileSize > 0 && int64(len(text)) > s.cfg.MaxFileSize {
		return nil, &DecodeError{Source: "paste", Err: ErrFileTooLarge}
	}

	ing, err := s.ingester(mode)
	if err != nil {
		return nil, err
	}
	result, err := ing.IngestText(text)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, "paste", []byte(text), result), nil
}

func (s *Service) ingester(mode string) (*Ingester, error) {
	if mode == "" {
		mode = s.cfg.MatchMode
	}
	n, err := NewNormalizer(mode)
	if err != nil {
		return nil, err
	}
	return NewIngester(n, WithHeaderSearchRows(s.cfg.HeaderSearchRows), WithIngestLogger(s.logger)), nil
}

func (s *Service) open(ctx context.Context, source string, data []byte, result *IngestResult) *ManifestView {
	now := s.now()
	m := &manifest{
		info: ManifestInfo{
			ID:          uuid.New().String(),
			Source:      source,
			Fingerprint: Fingerprint(data),
			SizeBytes:   len(data),
			MatchMode:   result.Mode,
			HeaderRow:   result.HeaderRow,
			HeaderFound: result.HeaderFound,
			RowsRead:    result.RowsRead,
			Admitted:    len(result.Records),
			Dropped:     result.Dropped,
			Collisions:  result.Collisions,
			CreatedAt:   now,
		},
		records:    NewCollection(),
		lastAccess: now,
	}
	m.records.Load(result.Records)

	s.mu.Lock()
	s.manifests[m.info.ID] = m
	s.mu.Unlock()

	s.logger.Info("manifest opened",
		"manifest_id", m.info.ID,
		"source", source,
		"fingerprint", m.info.Fingerprint,
		"admitted", m.info.Admitted,
		"dropped", m.info.Dropped,
	)

	if s.store != nil {
		if err := s.store.SaveManifest(ctx, m.info); err != nil {
			s.logger.Warn("manifest not persisted", "manifest_id", m.info.ID, "error", err)
		}
	}
	return s.view(m)
}

// Fingerprint returns the xxhash64 of a manifest's bytes as 16 hex digits.
func Fingerprint(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// Manifest returns a manifest with its records.
func (s *Service) Manifest(id string) (*ManifestView, error) {
	m, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return s.view(m), nil
}

// ListManifests returns the info of every open manifest.
func (s *Service) ListManifests() []ManifestInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ManifestInfo, 0, len(s.manifests))
	for _, m := range s.manifests {
		out = append(out, m.info)
	}
	return out
}

// UpdateRecord edits one canonical field of a record.
func (s *Service) UpdateRecord(id string, recordID int, field CanonicalField, value string) (ShipmentRecord, error) {
	m, err := s.get(id)
	if err != nil {
		return ShipmentRecord{}, err
	}
	if err := m.records.SetField(recordID, field, value); err != nil {
		return ShipmentRecord{}, err
	}
	rec, _ := m.records.Get(recordID)
	return rec, nil
}

// ToggleRecord flips a record's selection.
func (s *Service) ToggleRecord(id string, recordID int) (ShipmentRecord, error) {
	m, err := s.get(id)
	if err != nil {
		return ShipmentRecord{}, err
	}
	if _, err := m.records.ToggleSelect(recordID); err != nil {
		return ShipmentRecord{}, err
	}
	rec, _ := m.records.Get(recordID)
	return rec, nil
}

// SetSelected sets one record's selection.
func (s *Service) SetSelected(id string, recordID int, selected bool) error {
	m, err := s.get(id)
	if err != nil {
		return err
	}
	return m.records.SetSelected(recordID, selected)
}

// SelectAll sets the selection of every record in a manifest.
func (s *Service) SelectAll(id string, selected bool) error {
	m, err := s.get(id)
	if err != nil {
		return err
	}
	m.records.SelectAll(selected)
	return nil
}

// DeleteRecord removes one record from a manifest.
func (s *Service) DeleteRecord(id string, recordID int) error {
	m, err := s.get(id)
	if err != nil {
		return err
	}
	return m.records.Delete(recordID)
}

// Discard cancels any active run and drops the manifest.
func (s *Service) Discard(id string) error {
	s.mu.Lock()
	m, ok := s.manifests[id]
	delete(s.manifests, id)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrManifestNotFound, id)
	}

	m.mu.Lock()
	run := m.run
	m.mu.Unlock()
	if run != nil {
		run.Cancel()
	}
	m.records.Reset()

	s.logger.Info("manifest discarded", "manifest_id", id)
	return nil
}

// StartRun begins an asynchronous tracking run over the selected records.
// Returns the run ID immediately. Use SubscribeProgress to get updates.
//
// Returns ErrRunInProgress if the manifest already has an active run, and
// ErrTooManyRuns if no run slot frees up within the limiter's wait time.
func (s *Service) StartRun(ctx context.Context, id string) (string, error) {
	m, err := s.get(id)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	if m.run != nil && !isDone(m.run.Done) {
		m.mu.Unlock()
		return "", ErrRunInProgress
	}
	selected := m.records.Selected()
	if selected == 0 {
		m.mu.Unlock()
		return "", ErrNothingSelected
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if s.cfg.RunTimeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	} else {
		runCtx, cancel = context.WithCancel(context.Background())
	}

	run := &activeRun{
		ID:         uuid.New().String(),
		ManifestID: id,
		Cancel:     cancel,
		Done:       make(chan struct{}),
		Progress:   Progress{Total: selected},
		Record: RunRecord{
			ManifestID: id,
			Status:     RunRunning,
			ClientIP:   ClientIPFromContext(ctx),
			UserAgent:  UserAgentFromContext(ctx),
		},
	}
	run.Record.ID = run.ID
	m.run = run
	m.mu.Unlock()

	// Acquire a run slot (blocks until available or timeout)
	if err := s.limiter.Acquire(ctx); err != nil {
		cancel()
		m.mu.Lock()
		if m.run == run {
			m.run = nil
		}
		m.mu.Unlock()
		run.Record.Status = RunFailed
		run.Record.Error = err.Error()
		run.finish()
		return "", err
	}

	logger := s.logger.With("manifest_id", id, "run_id", run.ID)

	// Process in background with panic recovery to ensure limiter release
	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in tracking run", "panic", r)
				run.Record.Status = RunFailed
				run.Record.Error = fmt.Sprintf("internal error: %v", r)
				run.Record.FinishedAt = s.now()
				run.finish()
			}
		}()
		s.executeRun(runCtx, m, run, logger)
	}()

	return run.ID, nil
}

func (s *Service) executeRun(ctx context.Context, m *manifest, run *activeRun, logger *slog.Logger) {
	run.Record.StartedAt = s.now()

	summary, err := s.tracker.Run(ctx, m.records, func(p Progress) {
		run.setProgress(p)
		m.touch(s.now())
	})

	run.Record.Summary = summary
	run.Record.FinishedAt = s.now()
	switch {
	case err == nil:
		run.Record.Status = RunCompleted
	case ctx.Err() != nil:
		run.Record.Status = RunCancelled
		run.Record.Error = err.Error()
	default:
		run.Record.Status = RunFailed
		run.Record.Error = err.Error()
	}

	logger.Info("tracking run ended", "status", run.Record.Status)

	persistCtx, cancel := context.WithTimeout(context.Background(), PersistTimeout)
	defer cancel()
	s.persistRun(persistCtx, m, run, logger)

	run.finish()
}

// persistRun saves the run and publishes ETA changes. Failures are logged;
// the run outcome is already final in memory.
func (s *Service) persistRun(ctx context.Context, m *manifest, run *activeRun, logger *slog.Logger) {
	if s.store != nil {
		results := m.records.List()
		if err := s.store.SaveRun(ctx, run.Record, results); err != nil {
			logger.Error("run not persisted", "error", err)
		}
	}

	if s.events == nil || len(run.Record.Summary.ETAChanged) == 0 {
		return
	}
	events := make([]ETAChangedEvent, 0, len(run.Record.Summary.ETAChanged))
	for _, rid := range run.Record.Summary.ETAChanged {
		rec, ok := m.records.Get(rid)
		if !ok {
			continue
		}
		events = append(events, ETAChangedEvent{
			ManifestID:     run.ManifestID,
			RunID:          run.ID,
			RecordID:       rec.ID,
			TrackingNumber: rec.TrackingNumber,
			Carrier:        rec.Carrier,
			Mode:           rec.Mode,
			SystemETA:      rec.SystemETA,
			LiveETA:        rec.LiveETA,
			Status:         rec.Status,
			OccurredAt:     run.Record.FinishedAt,
		})
	}
	if err := s.events.PublishETAChanged(ctx, events); err != nil {
		logger.Error("eta change events not published", "events", len(events), "error", err)
	}
}

// SubscribeProgress returns a channel that receives progress updates for the
// manifest's current run. The channel is closed when the run ends.
func (s *Service) SubscribeProgress(id string) (<-chan Progress, error) {
	m, err := s.get(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	run := m.run
	m.mu.Unlock()
	if run == nil {
		return nil, ErrNoActiveRun
	}

	ch := make(chan Progress, 10)

	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()

	// Send current progress immediately
	ch <- run.Progress
	if isDone(run.Done) {
		close(ch)
		return ch, nil
	}
	run.Listeners = append(run.Listeners, ch)
	return ch, nil
}

// CancelRun cancels the manifest's active run. Records not yet processed
// stay pending.
func (s *Service) CancelRun(id string) error {
	m, err := s.get(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	run := m.run
	m.mu.Unlock()
	if run == nil || isDone(run.Done) {
		return ErrNoActiveRun
	}

	run.Cancel()
	return nil
}

// WaitRun blocks until the manifest's latest run ends and returns its record.
func (s *Service) WaitRun(ctx context.Context, id string) (RunRecord, error) {
	m, err := s.get(id)
	if err != nil {
		return RunRecord{}, err
	}

	m.mu.Lock()
	run := m.run
	m.mu.Unlock()
	if run == nil {
		return RunRecord{}, ErrNoActiveRun
	}

	select {
	case <-run.Done:
		return run.Record, nil
	case <-ctx.Done():
		return RunRecord{}, ctx.Err()
	}
}

// Runs returns the persisted run history of a manifest, newest first.
func (s *Service) Runs(ctx context.Context, id string, limit int) ([]RunRecord, error) {
	if _, err := s.get(id); err != nil {
		return nil, err
	}
	if s.store == nil {
		return []RunRecord{}, nil
	}
	runs, err := s.store.ListRuns(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("run store: %w", err)
	}
	return runs, nil
}

// RunResults returns the record snapshot saved when a run finished.
func (s *Service) RunResults(ctx context.Context, id, runID string) ([]ShipmentRecord, error) {
	if _, err := s.get(id); err != nil {
		return nil, err
	}
	if s.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	results, err := s.store.RunResults(ctx, runID)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("run store: %w", err)
	}
	return results, nil
}

// Export encodes the selected records of a manifest. It returns the encoded
// bytes and a date-stamped file name.
func (s *Service) Export(id string, format ExportFormat) ([]byte, string, error) {
	m, err := s.get(id)
	if err != nil {
		return nil, "", err
	}

	records := m.records.SelectedRecords()
	if len(records) == 0 {
		return nil, "", ErrNothingSelected
	}

	data, err := EncodeExport(records, format)
	if err != nil {
		s.logger.Error("export failed", "manifest_id", id, "format", format, "error", err)
		return nil, "", err
	}
	return data, ExportFilename(format, s.now()), nil
}

// Shutdown cancels every active run and waits for them to finish persisting.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	for _, m := range s.manifests {
		m.mu.Lock()
		if m.run != nil {
			m.run.Cancel()
		}
		m.mu.Unlock()
	}
	s.mu.RUnlock()

	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) get(id string) (*manifest, error) {
	s.mu.RLock()
	m, ok := s.manifests[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, id)
	}
	m.touch(s.now())
	return m, nil
}

func (s *Service) view(m *manifest) *ManifestView {
	v := &ManifestView{
		ManifestInfo: m.info,
		Records:      m.records.List(),
		Selected:     m.records.Selected(),
	}

	m.mu.Lock()
	run := m.run
	m.mu.Unlock()
	if run != nil {
		run.ListenerMu.Lock()
		v.Run = &RunState{ID: run.ID, Status: RunRunning, Progress: run.Progress}
		run.ListenerMu.Unlock()
		if isDone(run.Done) {
			v.Run.Status = run.Record.Status
		}
	}
	return v
}

func (m *manifest) touch(now time.Time) {
	m.mu.Lock()
	m.lastAccess = now
	m.mu.Unlock()
}

// setProgress records the latest progress and sends it to all listeners.
func (run *activeRun) setProgress(p Progress) {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()

	run.Progress = p
	for _, ch := range run.Listeners {
		select {
		case ch <- p:
		default:
			// Listener is slow, skip this update
		}
	}
}

// finish marks the run done and closes all listener channels.
// Done is closed under ListenerMu so a late subscriber either sees the run
// as done or is registered before its channel gets closed.
func (run *activeRun) finish() {
	run.finishOnce.Do(func() {
		run.ListenerMu.Lock()
		defer run.ListenerMu.Unlock()

		close(run.Done)
		for _, ch := range run.Listeners {
			close(ch)
		}
		run.Listeners = nil
	})
}

func isDone(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// ParseRecordID parses a record id from a path segment.
func ParseRecordID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrRecordNotFound, s)
	}
	return id, nil
}
