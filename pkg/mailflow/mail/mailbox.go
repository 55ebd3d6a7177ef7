package mail

import (
	"slices"
	"sync"
)

// Actor is anything that can send and receive mail.
type Actor interface {
	ID() string
	Mailbox() *MailBox
}

// MailBox is owned by exactly one actor. Inbound mail is grouped by sender
// and kept FIFO per sender; outbound mail is a single FIFO queue.
//
// Actors only enqueue outbound mail and drain inbound mail. The Manager
// is the only writer of the inbound side.
type MailBox struct {
	mu      sync.Mutex
	ins     map[string][]*Mail
	senders []string
	outs    []*Mail
}

// NewMailBox creates an empty mailbox.
func NewMailBox() *MailBox {
	return &MailBox{ins: make(map[string][]*Mail)}
}

// EnqueueOut appends m to the outbound queue.
func (b *MailBox) EnqueueOut(m *Mail) {
	b.mu.Lock()
	b.outs = append(b.outs, m)
	b.mu.Unlock()
}

// DrainIn removes and returns everything queued from sender.
func (b *MailBox) DrainIn(sender string) []*Mail {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.ins[sender]
	if !ok {
		return nil
	}
	delete(b.ins, sender)
	b.senders = slices.DeleteFunc(b.senders, func(s string) bool { return s == sender })
	return q
}

// DrainAllIn removes and returns all inbound mail, sender by sender in the
// order each sender was first seen.
func (b *MailBox) DrainAllIn() []*Mail {
	b.mu.Lock()
	defer b.mu.Unlock()

	var all []*Mail
	for _, s := range b.senders {
		all = append(all, b.ins[s]...)
	}
	b.ins = make(map[string][]*Mail)
	b.senders = nil
	return all
}

// Senders returns the senders with queued inbound mail.
func (b *MailBox) Senders() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, 0, len(b.ins))
	for _, s := range b.senders {
		if len(b.ins[s]) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// HasPending reports whether any inbound mail is waiting.
func (b *MailBox) HasPending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, q := range b.ins {
		if len(q) > 0 {
			return true
		}
	}
	return false
}

// PendingIns returns the number of queued inbound envelopes.
func (b *MailBox) PendingIns() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, q := range b.ins {
		n += len(q)
	}
	return n
}

// PendingOuts returns the number of queued outbound envelopes.
func (b *MailBox) PendingOuts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.outs)
}

func (b *MailBox) deliver(m *Mail) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.ins[m.sender]; !ok {
		b.senders = append(b.senders, m.sender)
	}
	b.ins[m.sender] = append(b.ins[m.sender], m)
}

func (b *MailBox) drainOuts() []*Mail {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.outs
	b.outs = nil
	return q
}
