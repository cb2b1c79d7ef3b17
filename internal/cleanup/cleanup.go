// Package cleanup owns the lifecycle of downloaded log directories.
//
// The query engine never deletes what it downloads. It registers each
// per-query directory here, and a later Sweep removes the directories whose
// retention window has passed.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/willibrandon/faultscope/internal/logger"
	"github.com/willibrandon/faultscope/internal/storage/sqlite"
)

// Registrar accepts paths for deferred deletion.
type Registrar interface {
	Register(ctx context.Context, path string, observedAt time.Time) error
}

// Store is the persistence used by Manager.
type Store interface {
	Register(ctx context.Context, path string, observedAt time.Time) error
	Due(ctx context.Context, cutoff time.Time, limit int) ([]sqlite.Registration, error)
	MarkCleaned(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, cause string) error
}

// DefaultRetention is how long a registered path is kept.
const DefaultRetention = 24 * time.Hour

// Manager registers paths and deletes them once their retention expires.
type Manager struct {
	store     Store
	retention time.Duration
	now       func() time.Time
	remove    func(string) error
}

// NewManager returns a manager. A non-positive retention uses DefaultRetention.
func NewManager(store Store, retention time.Duration) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		store:     store,
		retention: retention,
		now:       time.Now,
		remove:    os.RemoveAll,
	}
}

// Retention returns the configured retention window.
func (m *Manager) Retention() time.Duration {
	return m.retention
}

// Register records path for deletion after the retention window.
func (m *Manager) Register(ctx context.Context, path string, observedAt time.Time) error {
	if path == "" {
		return errors.New("cleanup: empty path")
	}
	if err := m.store.Register(ctx, path, observedAt); err != nil {
		return err
	}
	logger.Debug("Registered path for cleanup", "path", path, "observed_at", observedAt, "retention", m.retention)
	return nil
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Removed []string
	Failed  map[string]error
}

// Sweep deletes every registered path older than the retention window.
// Paths that no longer exist count as removed. Deletion errors are recorded
// and the path stays registered for the next sweep.
func (m *Manager) Sweep(ctx context.Context) (SweepReport, error) {
	report := SweepReport{Failed: map[string]error{}}

	cutoff := m.now().Add(-m.retention)
	due, err := m.store.Due(ctx, cutoff, 0)
	if err != nil {
		return report, fmt.Errorf("listing due registrations: %w", err)
	}

	for _, reg := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if err := m.remove(reg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to remove registered path", "path", reg.Path, "error", err)
			report.Failed[reg.Path] = err
			if mErr := m.store.MarkFailed(ctx, reg.ID, err.Error()); mErr != nil {
				return report, mErr
			}
			continue
		}

		if err := m.store.MarkCleaned(ctx, reg.ID, m.now()); err != nil {
			return report, err
		}
		report.Removed = append(report.Removed, reg.Path)
	}

	logger.Info("Cleanup sweep finished", "removed", len(report.Removed), "failed", len(report.Failed))
	return report, nil
}
