package core

// scheduler.go provides background maintenance for manifest sessions.
//
// Manifests live in memory. The janitor runs periodically and drops every
// manifest that has been idle for longer than the session TTL and has no
// tracking run in progress. Finished runs are already persisted, so
// dropping a session loses only its in-memory records.

import (
	"context"
	"time"
)

const (
	minJanitorInterval = time.Second
	maxJanitorInterval = 10 * time.Minute
)

// StartJanitor expires idle manifests until ctx is cancelled.
// It does nothing when SessionTTL is not set.
func (s *Service) StartJanitor(ctx context.Context) {
	ttl := s.cfg.SessionTTL
	if ttl <= 0 {
		return
	}

	interval := min(max(ttl/4, minJanitorInterval), maxJanitorInterval)
	s.logger.Info("session janitor started", "ttl", ttl, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session janitor stopped")
			return
		case <-ticker.C:
			if n := s.ExpireIdle(ttl); n > 0 {
				s.logger.Info("expired idle manifests", "count", n)
			}
		}
	}
}

// ExpireIdle drops manifests idle for longer than ttl and returns how many
// were removed. Manifests with an active run are kept.
func (s *Service) ExpireIdle(ttl time.Duration) int {
	cutoff := s.now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for id, m := range s.manifests {
		m.mu.Lock()
		idle := m.lastAccess.Before(cutoff)
		running := m.run != nil && !isDone(m.run.Done)
		m.mu.Unlock()

		if idle && !running {
			delete(s.manifests, id)
			expired++
			s.logger.Debug("manifest expired", "manifest_id", id)
		}
	}
	return expired
}
