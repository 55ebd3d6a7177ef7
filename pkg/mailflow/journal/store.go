// Package journal records every envelope a mail.Manager delivers or drops,
// so a run can be inspected after the fact.
package journal

import (
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/mailflow/pkg/mailflow/mail"
)

// Store persists journal entries.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores e and assigns its sequence number within the run.
	Append(e Entry) (Entry, error)

	// List returns every entry for a run, ordered by sequence.
	// Returns an empty slice (not an error) for an unknown run.
	List(runID string) ([]Entry, error)

	// DeleteRun removes all entries for a run.
	DeleteRun(runID string) error

	// Close releases any resources.
	Close() error
}

// Entry is one journaled envelope. Payloads are not stored; PayloadType
// names the Go type the envelope carried.
type Entry struct {
	RunID         string
	Seq           int
	MailID        string
	Sender        string
	Recipient     string
	Category      string
	RequestSource string
	PayloadType   string
	Dropped       bool
	Reason        string
	At            time.Time
}

// ErrStoreClosed indicates the store has been closed.
var ErrStoreClosed = errors.New("journal store closed")

// NewEntry describes m. A non-nil reason marks the entry dropped.
func NewEntry(runID string, m *mail.Mail, reason error) Entry {
	e := Entry{
		RunID:         runID,
		MailID:        m.ID(),
		Sender:        m.Sender(),
		Recipient:     m.Recipient(),
		Category:      m.Category().String(),
		RequestSource: m.RequestSource(),
		At:            time.Now().UTC(),
	}
	if p := m.Payload(); p != nil {
		e.PayloadType = fmt.Sprintf("%T", p)
	}
	if reason != nil {
		e.Dropped = true
		e.Reason = reason.Error()
	}
	return e
}
