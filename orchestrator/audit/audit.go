// Package audit appends immutable JSON-per-line records for the
// orchestrator's externally significant actions: client submissions, bundle
// plans, relay plans, capital decisions, and anti-MEV actions. One file per
// subject; lines are complete records and are never rewritten.
package audit

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dchisholm125/kestrel-hq-sub001/config/params"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "audit")

// Subjects. Each maps to <dir>/<subject>.jsonl.
const (
	SubjectSubmissions      = "submissions"
	SubjectBundles          = "bundles"
	SubjectRelayPlans       = "relay_plans"
	SubjectCapitalDecisions = "capital_decisions"
	SubjectAntiMEVActions   = "antimev_actions"
)

// Logger manages the per-subject appenders.
type Logger struct {
	dir   string
	fsync bool

	mu    sync.Mutex
	files map[string]*appender
}

type appender struct {
	mu sync.Mutex
	f  *os.File
}

// Config for the audit logger.
type Config struct {
	// Dir receives the subject files. Created 0700 if absent.
	Dir string
	// Fsync flushes after every appended line. Slower, crash-safe.
	Fsync bool
}

// NewLogger builds an audit logger rooted at cfg.Dir.
func NewLogger(cfg *Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, params.KestrelIoConfig().ReadWriteExecutePermissions); err != nil {
		return nil, errors.Wrap(err, "could not create audit directory")
	}
	return &Logger{
		dir:   cfg.Dir,
		fsync: cfg.Fsync,
		files: make(map[string]*appender),
	}, nil
}

// Append marshals record and writes it as one line under subject. If the
// record is a map without a "ts" entry, an RFC3339 UTC timestamp is
// injected; struct records are expected to carry their own.
func (l *Logger) Append(subject string, record interface{}) error {
	if m, ok := record.(map[string]interface{}); ok {
		if _, has := m["ts"]; !has {
			m["ts"] = time.Now().UTC().Format(time.RFC3339)
		}
	}
	line, err := json.Marshal(record)
	if err != nil {
		return errors.Wrapf(err, "could not marshal %s audit record", subject)
	}
	app, err := l.appender(subject)
	if err != nil {
		return err
	}
	app.mu.Lock()
	defer app.mu.Unlock()
	if _, err := app.f.Write(append(line, '\n')); err != nil {
		return errors.Wrapf(err, "could not append %s audit record", subject)
	}
	if l.fsync {
		return app.f.Sync()
	}
	return nil
}

// Timestamp returns the RFC3339 UTC form audit records carry.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Close closes every open subject file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for subject, app := range l.files {
		if err := app.f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "could not close %s audit file", subject)
		}
		delete(l.files, subject)
	}
	return firstErr
}

func (l *Logger) appender(subject string) (*appender, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if app, ok := l.files[subject]; ok {
		return app, nil
	}
	path := filepath.Join(l.dir, subject+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, params.KestrelIoConfig().ReadWritePermissions) // #nosec G304
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s audit file", subject)
	}
	log.WithField("path", path).Debug("Opened audit file")
	app := &appender{f: f}
	l.files[subject] = app
	return app, nil
}

// ReadAll returns every record currently in a subject file, for tests and
// operational tooling.
func (l *Logger) ReadAll(subject string) ([]map[string]interface{}, error) {
	raw, err := os.ReadFile(filepath.Join(l.dir, subject+".jsonl"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var records []map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	for dec.More() {
		var rec map[string]interface{}
		if err := dec.Decode(&rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
