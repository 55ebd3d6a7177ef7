// Package mail holds the envelope type, per-actor mailboxes, and the
// Manager that routes envelopes between registered actors.
//
// Delivery is FIFO per (sender, recipient) pair. There is no ordering
// guarantee across senders.
package mail

import (
	"fmt"

	"github.com/google/uuid"
)

// Package is the envelope body. RequestSource names the branch the
// envelope concerns, which is not always the sender: the structure
// relays mail on a branch's behalf.
type Package struct {
	RequestSource string
	Payload       any
}

// Mail is an addressed, categorized envelope. It is immutable; Redirect
// returns a re-addressed copy.
//
// Addresses are not checked at construction. The Manager validates them
// at routing time, since a recipient may be registered after the
// envelope is built.
type Mail struct {
	id        string
	sender    string
	recipient string
	category  Category
	pkg       Package
}

// New creates an envelope with a fresh ID.
func New(sender, recipient string, category Category, pkg Package) *Mail {
	return &Mail{
		id:        uuid.New().String(),
		sender:    sender,
		recipient: recipient,
		category:  category,
		pkg:       pkg,
	}
}

func (m *Mail) ID() string            { return m.id }
func (m *Mail) Sender() string        { return m.sender }
func (m *Mail) Recipient() string     { return m.recipient }
func (m *Mail) Category() Category    { return m.category }
func (m *Mail) Package() Package      { return m.pkg }
func (m *Mail) RequestSource() string { return m.pkg.RequestSource }
func (m *Mail) Payload() any          { return m.pkg.Payload }

// Redirect returns a copy with new addresses. The ID and package are kept
// so the envelope can be traced across hops.
func (m *Mail) Redirect(sender, recipient string) *Mail {
	c := *m
	c.sender = sender
	c.recipient = recipient
	return &c
}

// String implements fmt.Stringer.
func (m *Mail) String() string {
	return fmt.Sprintf("mail[%s %s->%s %s]", m.category, m.sender, m.recipient, m.pkg.RequestSource)
}
