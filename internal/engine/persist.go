package engine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// stateFileVersion is bumped when the on-disk layout changes shape.
const stateFileVersion = 1

// stateFile is the on-disk form of the engine.
// Every collection is optional on load so that older files keep working.
type stateFile struct {
	Version      int                       `json:"version"`
	SavedAt      time.Time                 `json:"saved_at"`
	Failures     map[string]*FailureRecord `json:"failures,omitempty"`
	Transitions  map[string][]Transition   `json:"transitions,omitempty"`
	Acknowledged []string                  `json:"acknowledged,omitempty"`
	CertExpiry   map[string]time.Time      `json:"cert_expiry,omitempty"`
}

// Save writes the current state to Options.StatePath.
// The write goes through a temporary file and a rename so that a crash in
// the middle never leaves a half-written state file behind.
func (e *Engine) Save() error {
	e.mu.Lock()
	acked := make([]string, 0, len(e.acknowledged))
	for id := range e.acknowledged {
		acked = append(acked, id)
	}
	data, err := json.Marshal(stateFile{
		Version:      stateFileVersion,
		SavedAt:      CurrentTime(),
		Failures:     e.failures,
		Transitions:  e.transitions,
		Acknowledged: acked,
		CertExpiry:   e.certExpiry,
	})
	e.mu.Unlock()

	if err != nil {
		return err
	}

	if e.opts.StatePath == "" {
		return nil
	}

	dir := filepath.Dir(e.opts.StatePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(e.opts.StatePath)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), e.opts.StatePath)
}

// Load restores state from Options.StatePath.
//
// A missing or unreadable file and corrupt JSON all start the engine fresh
// with a logged warning; restarting blind is better than not starting.
// Collections absent from the file load as empty.
func (e *Engine) Load() error {
	if e.opts.StatePath == "" {
		return nil
	}

	data, err := os.ReadFile(e.opts.StatePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		e.logger.Warn("failed to read state file; starting fresh",
			zap.String("path", e.opts.StatePath),
			zap.Error(err))
		return nil
	}

	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		e.logger.Warn("state file is corrupt; starting fresh",
			zap.String("path", e.opts.StatePath),
			zap.Error(err))
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.failures = make(map[string]*FailureRecord, len(f.Failures))
	for id, r := range f.Failures {
		if r == nil {
			continue
		}
		rec := *r
		if rec.ConsecutiveFailures < 1 {
			rec.ConsecutiveFailures = 1
		}
		e.failures[id] = &rec
	}

	e.transitions = make(map[string][]Transition, len(f.Transitions))
	for id, ts := range f.Transitions {
		if len(ts) > TRANSITION_HISTORY_LEN {
			ts = ts[len(ts)-TRANSITION_HISTORY_LEN:]
		}
		e.transitions[id] = ts
	}

	e.acknowledged = make(map[string]struct{}, len(f.Acknowledged))
	for _, id := range f.Acknowledged {
		e.acknowledged[id] = struct{}{}
	}

	e.certExpiry = make(map[string]time.Time, len(f.CertExpiry))
	for domain, t := range f.CertExpiry {
		e.certExpiry[domain] = t
	}

	e.logger.Info("restored state",
		zap.Int("failures", len(e.failures)),
		zap.Int("acknowledged", len(e.acknowledged)),
		zap.Time("saved_at", f.SavedAt))

	return nil
}

// AutoSave persists the engine every interval until ctx is canceled, then
// flushes one final time. Save errors are logged and retried on the next
// tick; they never stop the loop.
func (e *Engine) AutoSave(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := e.Save(); err != nil {
				e.logger.Error("periodic state save failed", zap.Error(err))
			}
		case <-ctx.Done():
			if err := e.Save(); err != nil {
				e.logger.Error("final state save failed", zap.Error(err))
			}
			return
		}
	}
}
