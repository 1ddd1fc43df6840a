package conversation

import "sync"

// Kind names what the acting user's next text message will be interpreted
// as. The zero value means no pending action.
type Kind string

const (
	KindNone             Kind = ""
	KindAwaitAdminAdd    Kind = "await-admin-handle-add"
	KindAwaitAdminRemove Kind = "await-admin-handle-remove"
	KindAwaitPermsTarget Kind = "await-perms-target"
	KindAwaitMuteSpec    Kind = "await-mute-spec"
	KindAwaitBroadcast   Kind = "await-broadcast-text"
	KindAwaitImpersonate Kind = "await-impersonate-spec"
	KindAwaitBanTarget   Kind = "await-ban-target"
	KindAwaitUnbanTarget Kind = "await-unban-target"
	KindAwaitSendText    Kind = "await-send-text"
	KindAwaitPrivReply   Kind = "await-private-reply-spec"
)

// Pending is one installed conversation step: the kind plus any context
// captured from the triggering button, e.g. a target handle.
type Pending struct {
	Kind    Kind
	Payload string
}

// Tracker keeps the per-user pending-action slot. It is in-memory only and
// deliberately not persisted: a restart mid-flow means the user re-issues
// the command.
type Tracker struct {
	mu      sync.Mutex
	pending map[int64]Pending
}

func NewTracker() *Tracker {
	return &Tracker{pending: make(map[int64]Pending)}
}

// Begin installs a pending action for the user, replacing any previous one.
func (t *Tracker) Begin(userID int64, kind Kind, payload string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[userID] = Pending{Kind: kind, Payload: payload}
}

// Peek returns the pending action without consuming it.
func (t *Tracker) Peek(userID int64) (Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[userID]
	return p, ok
}

// Take consumes the pending action. Consumption is exactly-once: a second
// Take after a completed flow finds nothing.
func (t *Tracker) Take(userID int64) (Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[userID]
	if ok {
		delete(t.pending, userID)
	}
	return p, ok
}

// Keep reinstalls a taken pending action, used when the submitted text was
// malformed and the user should retry the same step.
func (t *Tracker) Keep(userID int64, p Pending) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[userID] = p
}

// Cancel clears any pending state unconditionally. Cancellation is always
// self-service and carries no authorization check.
func (t *Tracker) Cancel(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pending[userID]
	delete(t.pending, userID)
	return ok
}
