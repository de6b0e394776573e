// File: internal/audit/changelog.go

// Package audit persists the append-only healing trail. Every event lands
// in a JSON changelog with a cross-process file lock, plus a rotating
// plain-text mirror for humans tailing the log directory. Optional sinks
// (such as Postgres) receive a copy of each event.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/mend-cli/api/schemas"
	"github.com/xkilldash9x/mend-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const changelogVersion = "1.0.0"

// EventSink receives a copy of every recorded event. Sink failures are
// logged and swallowed; the changelog itself is the source of truth.
type EventSink interface {
	Record(event schemas.HealingEvent) error
	Close() error
}

type changelogMetadata struct {
	Created     time.Time `json:"created"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
}

type changelogDocument struct {
	Metadata  changelogMetadata      `json:"metadata"`
	Incidents []schemas.HealingEvent `json:"incidents"`
}

// Trail is the durable audit log. Safe for concurrent use; writes are
// serialized in-process by a mutex and across processes by a lock file
// next to the changelog.
type Trail struct {
	logger *zap.Logger
	cfg    config.AuditConfig

	mu       sync.Mutex
	path     string
	fileLock *flock.Flock
	mirror   *lumberjack.Logger
	sinks    []EventSink
}

// NewTrail opens (creating if needed) the changelog under cfg.Directory.
func NewTrail(logger *zap.Logger, cfg config.AuditConfig) (*Trail, error) {
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	changelogPath := filepath.Join(cfg.Directory, cfg.ChangelogFile)
	t := &Trail{
		logger:   logger.Named("audit"),
		cfg:      cfg,
		path:     changelogPath,
		fileLock: flock.New(changelogPath + ".lock"),
		mirror: &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Directory, "healing.log"),
			MaxSize:    cfg.MaxLogSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.RetentionDays,
			Compress:   true,
		},
	}

	if err := t.ensureChangelog(); err != nil {
		return nil, err
	}
	return t, nil
}

// AddSink registers an additional destination for recorded events.
func (t *Trail) AddSink(sink EventSink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = append(t.sinks, sink)
}

// Record appends one event to the changelog and its mirrors. The event's
// timestamp is set here if the caller left it zero.
func (t *Trail) Record(event schemas.HealingEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.appendLocked(event); err != nil {
		return err
	}

	t.mirrorLocked(event)
	for _, sink := range t.sinks {
		if err := sink.Record(event); err != nil {
			t.logger.Warn("audit sink rejected event",
				zap.String("incident_id", event.IncidentID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
	return nil
}

// Events returns every event in the changelog in append order.
func (t *Trail) Events() ([]schemas.HealingEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	doc, err := t.readLocked()
	if err != nil {
		return nil, err
	}
	return doc.Incidents, nil
}

// Statistics summarizes the whole changelog.
func (t *Trail) Statistics() (Statistics, error) {
	events, err := t.Events()
	if err != nil {
		return Statistics{}, err
	}
	return ComputeStatistics(events), nil
}

// Close releases the mirror and all sinks.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for _, sink := range t.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := t.mirror.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (t *Trail) ensureChangelog() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := os.Stat(t.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat changelog: %w", err)
	}

	doc := changelogDocument{
		Metadata: changelogMetadata{
			Created:     time.Now().UTC(),
			Version:     changelogVersion,
			Description: "Automated healing changelog",
		},
		Incidents: []schemas.HealingEvent{},
	}
	return t.writeLocked(doc)
}

// appendLocked is the read-modify-write cycle under both locks. The file
// lock spans the whole cycle so concurrent processes cannot interleave.
func (t *Trail) appendLocked(event schemas.HealingEvent) error {
	if err := t.fileLock.Lock(); err != nil {
		return fmt.Errorf("lock changelog: %w", err)
	}
	defer func() {
		if err := t.fileLock.Unlock(); err != nil {
			t.logger.Warn("failed to release changelog lock", zap.Error(err))
		}
	}()

	doc, err := t.readUnlocked()
	if err != nil {
		return err
	}
	doc.Incidents = append(doc.Incidents, event)
	return t.writeUnlocked(doc)
}

func (t *Trail) readLocked() (changelogDocument, error) {
	if err := t.fileLock.RLock(); err != nil {
		return changelogDocument{}, fmt.Errorf("lock changelog: %w", err)
	}
	defer func() {
		if err := t.fileLock.Unlock(); err != nil {
			t.logger.Warn("failed to release changelog lock", zap.Error(err))
		}
	}()
	return t.readUnlocked()
}

func (t *Trail) writeLocked(doc changelogDocument) error {
	if err := t.fileLock.Lock(); err != nil {
		return fmt.Errorf("lock changelog: %w", err)
	}
	defer func() {
		if err := t.fileLock.Unlock(); err != nil {
			t.logger.Warn("failed to release changelog lock", zap.Error(err))
		}
	}()
	return t.writeUnlocked(doc)
}

func (t *Trail) readUnlocked() (changelogDocument, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return changelogDocument{
				Metadata: changelogMetadata{
					Created:     time.Now().UTC(),
					Version:     changelogVersion,
					Description: "Automated healing changelog",
				},
			}, nil
		}
		return changelogDocument{}, fmt.Errorf("read changelog: %w", err)
	}

	var doc changelogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return changelogDocument{}, fmt.Errorf("parse changelog %s: %w", t.path, err)
	}
	return doc, nil
}

// writeUnlocked writes to a temp file in the same directory then renames,
// so a crash mid-write never corrupts the changelog.
func (t *Trail) writeUnlocked(doc changelogDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode changelog: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".changelog-*.tmp")
	if err != nil {
		return fmt.Errorf("stage changelog: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write changelog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("flush changelog: %w", err)
	}
	if err := os.Rename(tmpPath, t.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("promote changelog: %w", err)
	}
	return nil
}

// mirrorLocked writes one human-readable line to the rotating text log.
func (t *Trail) mirrorLocked(event schemas.HealingEvent) {
	line := fmt.Sprintf("%s [%s] incident=%s event=%s",
		event.Timestamp.Format(time.RFC3339),
		event.Severity,
		event.IncidentID,
		event.Type)
	if event.FilePath != "" {
		line += " file=" + event.FilePath
	}
	if event.FixDescription != "" {
		line += " fix=" + event.FixDescription
	}
	if event.AttemptNumber > 0 {
		line += fmt.Sprintf(" attempt=%d/%d", event.AttemptNumber, event.MaxAttempts)
	}
	if _, err := t.mirror.Write([]byte(line + "\n")); err != nil {
		t.logger.Warn("failed to write audit mirror", zap.Error(err))
	}
}
