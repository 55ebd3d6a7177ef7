package mail

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSource indicates an address that is not a registered actor.
	ErrUnknownSource = errors.New("unknown mail source")

	// ErrSourceDeleted is the drop reason for mail queued for or from an
	// actor removed with DeleteSource.
	ErrSourceDeleted = errors.New("mail source deleted")

	// ErrSenderMismatch indicates an envelope whose sender is not the
	// actor it was collected from.
	ErrSenderMismatch = errors.New("sender does not match outbox owner")
)

// InvalidAddressError reports an envelope whose sender or recipient is not
// registered with the Manager at routing time. Only that envelope is
// dropped; routing continues for the rest.
type InvalidAddressError struct {
	MailID  string
	Role    string // "sender" or "recipient"
	Address string
}

func (e *InvalidAddressError) Error() string {
	if e.MailID == "" {
		return fmt.Sprintf("invalid %s address %q", e.Role, e.Address)
	}
	return fmt.Sprintf("mail %s: invalid %s address %q", e.MailID, e.Role, e.Address)
}

// Unwrap lets errors.Is match ErrUnknownSource.
func (e *InvalidAddressError) Unwrap() error {
	return ErrUnknownSource
}

// SenderMismatchError reports an envelope found in one actor's outbox that
// names another registered actor as its sender. The envelope is dropped.
type SenderMismatchError struct {
	MailID string
	Sender string
	Owner  string
}

func (e *SenderMismatchError) Error() string {
	return fmt.Sprintf("mail %s: sender %q collected from %q", e.MailID, e.Sender, e.Owner)
}

// Unwrap lets errors.Is match ErrSenderMismatch.
func (e *SenderMismatchError) Unwrap() error {
	return ErrSenderMismatch
}
