package journal

import (
	"log/slog"

	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
	"github.com/randalmurphal/mailflow/pkg/mailflow/observability"
)

// Recorder is a mail.Observer that appends every envelope to a Store.
// Write failures are logged and otherwise ignored; a journal never stops
// a run.
type Recorder struct {
	store  Store
	runID  string
	logger *slog.Logger
}

var _ mail.Observer = (*Recorder)(nil)

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger for write failures.
func WithLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder journals envelopes under runID.
func NewRecorder(store Store, runID string, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, runID: runID, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID returns the run entries are recorded under.
func (r *Recorder) RunID() string { return r.runID }

// Delivered implements mail.Observer.
func (r *Recorder) Delivered(m *mail.Mail) {
	r.append(m, nil)
}

// Dropped implements mail.Observer.
func (r *Recorder) Dropped(m *mail.Mail, reason error) {
	r.append(m, reason)
}

func (r *Recorder) append(m *mail.Mail, reason error) {
	if _, err := r.store.Append(NewEntry(r.runID, m, reason)); err != nil {
		observability.LogJournalError(r.logger, m.ID(), err)
	}
}
