// Package store persists manifests and tracking run history.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/shiptrack/internal/core"
)

// Memory keeps run history in process memory. It is used when no database
// is configured; history is lost on restart.
type Memory struct {
	mu        sync.RWMutex
	manifests map[string]core.ManifestInfo
	runs      map[string][]core.RunRecord // by manifest id, oldest first
	results   map[string][]core.ShipmentRecord
}

var _ core.RunStore = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		manifests: make(map[string]core.ManifestInfo),
		runs:      make(map[string][]core.RunRecord),
		results:   make(map[string][]core.ShipmentRecord),
	}
}

func (s *Memory) SaveManifest(ctx context.Context, m core.ManifestInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[m.ID] = m
	return nil
}

func (s *Memory) SaveRun(ctx context.Context, run core.RunRecord, results []core.ShipmentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.manifests[run.ManifestID]; !ok {
		return fmt.Errorf("save run %s: %w: %s", run.ID, core.ErrManifestNotFound, run.ManifestID)
	}
	if _, ok := s.results[run.ID]; ok {
		return fmt.Errorf("save run %s: %w", run.ID, core.ErrRunExists)
	}
	s.runs[run.ManifestID] = append(s.runs[run.ManifestID], run)
	s.results[run.ID] = append([]core.ShipmentRecord(nil), results...)
	return nil
}

// ListRuns returns a manifest's runs, newest first. limit <= 0 returns all.
func (s *Memory) ListRuns(ctx context.Context, manifestID string, limit int) ([]core.RunRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := append([]core.RunRecord(nil), s.runs[manifestID]...)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// RunResults returns the record snapshot saved with a run.
func (s *Memory) RunResults(ctx context.Context, runID string) ([]core.ShipmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.results[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, runID)
	}
	return append([]core.ShipmentRecord(nil), res...), nil
}
