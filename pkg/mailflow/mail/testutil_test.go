package mail

import "sync"

type actor struct {
	id  string
	box *MailBox
}

func newActor(id string) *actor {
	return &actor{id: id, box: NewMailBox()}
}

func (a *actor) ID() string        { return a.id }
func (a *actor) Mailbox() *MailBox { return a.box }

func (a *actor) send(to string, c Category, payload any) *Mail {
	m := New(a.id, to, c, Package{RequestSource: a.id, Payload: payload})
	a.box.EnqueueOut(m)
	return m
}

type recordingObserver struct {
	mu        sync.Mutex
	delivered []*Mail
	dropped   []*Mail
	reasons   []error
}

func (o *recordingObserver) Delivered(m *Mail) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.delivered = append(o.delivered, m)
}

func (o *recordingObserver) Dropped(m *Mail, reason error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, m)
	o.reasons = append(o.reasons, reason)
}

func ids(ms []*Mail) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID()
	}
	return out
}
