package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/randalmurphal/mailflow/pkg/mailflow/observability"
)

// Observer is told about every envelope the Manager delivers or drops.
// Implementations shared with a structure must be safe for concurrent use.
type Observer interface {
	Delivered(m *Mail)
	Dropped(m *Mail, reason error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to no-op.
func WithMetrics(r observability.MetricsRecorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// Manager routes mail between registered actors ("sources").
//
// Collect moves a source's outbound queue into the Manager's buffers,
// keyed by recipient then sender. Send moves a recipient's buffers into
// its inbound queue. Both are destructive, so an envelope is delivered
// at most once. Callers must serialize ticks; Execute does.
//
// Mail addressed to or sent by a deleted source is dropped, not
// reported as an error.
type Manager struct {
	mu      sync.Mutex
	sources map[string]Actor
	order   []string

	// recipient -> sender -> FIFO
	mails   map[string]map[string][]*Mail
	senders map[string][]string

	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	observers []Observer

	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager creates a Manager with the given sources registered.
func NewManager(sources []Actor, opts ...Option) *Manager {
	m := &Manager{
		sources: make(map[string]Actor),
		mails:   make(map[string]map[string][]*Mail),
		senders: make(map[string][]string),
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.AddSources(sources...)
	return m
}

// AddSources registers actors. Re-registering an ID replaces the actor
// and keeps any mail already buffered for it.
func (m *Manager) AddSources(actors ...Actor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range actors {
		id := a.ID()
		if _, ok := m.sources[id]; !ok {
			m.order = append(m.order, id)
		}
		m.sources[id] = a
	}
}

// DeleteSource unregisters id. Mail buffered for it, buffered from it, or
// still in its outbound queue is dropped.
func (m *Manager) DeleteSource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	delete(m.sources, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })

	for _, sender := range m.senders[id] {
		m.dropAll(m.mails[id][sender], ErrSourceDeleted)
	}
	delete(m.mails, id)
	delete(m.senders, id)

	for recipient, bySender := range m.mails {
		if q, ok := bySender[id]; ok {
			m.dropAll(q, ErrSourceDeleted)
			delete(bySender, id)
			m.senders[recipient] = slices.DeleteFunc(m.senders[recipient], func(s string) bool { return s == id })
		}
	}

	m.dropAll(a.Mailbox().drainOuts(), ErrSourceDeleted)
	return nil
}

// HasSource reports whether id is registered.
func (m *Manager) HasSource(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sources[id]
	return ok
}

// Sources returns registered IDs in registration order.
func (m *Manager) Sources() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.order)
}

// Buffered returns the number of envelopes collected for recipient but
// not yet sent.
func (m *Manager) Buffered(recipient string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, q := range m.mails[recipient] {
		n += len(q)
	}
	return n
}

// Collect drains sender's outbound queue into the Manager. Envelopes with
// an unregistered sender or recipient are dropped, each reported as an
// *InvalidAddressError in the joined result. Envelopes naming a sender
// other than the outbox owner are dropped as *SenderMismatchError.
func (m *Manager) Collect(sender string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.collectLocked(sender)
}

func (m *Manager) collectLocked(sender string) error {
	a, ok := m.sources[sender]
	if !ok {
		return &InvalidAddressError{Role: "sender", Address: sender}
	}

	var errs []error
	for _, mail := range a.Mailbox().drainOuts() {
		err := m.validate(mail)
		if err == nil && mail.sender != sender {
			err = &SenderMismatchError{MailID: mail.id, Sender: mail.sender, Owner: sender}
		}
		if err != nil {
			m.drop(mail, err)
			errs = append(errs, err)
			continue
		}
		bySender, ok := m.mails[mail.recipient]
		if !ok {
			bySender = make(map[string][]*Mail)
			m.mails[mail.recipient] = bySender
		}
		if _, ok := bySender[mail.sender]; !ok {
			m.senders[mail.recipient] = append(m.senders[mail.recipient], mail.sender)
		}
		bySender[mail.sender] = append(bySender[mail.sender], mail)
	}
	return errors.Join(errs...)
}

func (m *Manager) validate(mail *Mail) error {
	if _, ok := m.sources[mail.sender]; !ok {
		return &InvalidAddressError{MailID: mail.id, Role: "sender", Address: mail.sender}
	}
	if _, ok := m.sources[mail.recipient]; !ok {
		return &InvalidAddressError{MailID: mail.id, Role: "recipient", Address: mail.recipient}
	}
	return nil
}

// Send delivers everything buffered for recipient into its inbound queue
// and clears the buffer.
func (m *Manager) Send(recipient string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendLocked(recipient)
}

func (m *Manager) sendLocked(recipient string) error {
	a, ok := m.sources[recipient]
	if !ok {
		return &InvalidAddressError{Role: "recipient", Address: recipient}
	}

	box := a.Mailbox()
	for _, sender := range m.senders[recipient] {
		for _, mail := range m.mails[recipient][sender] {
			box.deliver(mail)
			m.metrics.RecordMailRouted(context.Background(), mail.category.String())
			for _, o := range m.observers {
				o.Delivered(mail)
			}
		}
	}
	delete(m.mails, recipient)
	delete(m.senders, recipient)
	return nil
}

// CollectAll collects from every registered source.
func (m *Manager) CollectAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, id := range m.order {
		if err := m.collectLocked(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SendAll sends to every registered source.
func (m *Manager) SendAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, id := range m.order {
		if err := m.sendLocked(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tick runs one CollectAll followed by one SendAll.
func (m *Manager) Tick() error {
	return errors.Join(m.CollectAll(), m.SendAll())
}

// Execute ticks every refresh until ctx is done or Stop is called.
// Routing errors are logged and do not stop the loop.
func (m *Manager) Execute(ctx context.Context, refresh time.Duration) error {
	ticker := time.NewTicker(refresh)
	defer ticker.Stop()

	for {
		if err := m.Tick(); err != nil {
			m.logger.Warn("mail routing errors", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop ends Execute. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) dropAll(q []*Mail, reason error) {
	for _, mail := range q {
		m.drop(mail, reason)
	}
}

func (m *Manager) drop(mail *Mail, reason error) {
	m.metrics.RecordMailDropped(context.Background(), mail.category.String())
	observability.LogMailDropped(m.logger, mail.id, mail.category.String(), reason)
	for _, o := range m.observers {
		o.Dropped(mail, reason)
	}
}
