package message

import (
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
)

// EditWindow bounds how long after creation a message may still be edited.
const EditWindow = 48 * time.Hour

var terminal = map[State]bool{
	StateRecalled:    true,
	StateDeletedHard: true,
}

// validEdges enumerates the only state transitions the FSM allows. Keys
// are "from" states; INIT only ever appears as an edge source (INIT->SENT,
// taken by Persist), never as an edge target.
var validEdges = map[State]map[State]bool{
	StateInit:   {StateSent: true},
	StateSent:   {StateEdited: true, StateRecalled: true, StateDeletedHard: true},
	StateEdited: {StateEdited: true, StateRecalled: true, StateDeletedHard: true},
}

// CanTransition reports whether from->to is a permitted FSM edge.
func CanTransition(from, to State) bool {
	if terminal[from] {
		return false
	}
	return validEdges[from][to]
}

// Persist transitions a new message from INIT to SENT. The orchestrator
// invokes it once per persistable send, before the WAL write and the
// storage-topic publish; the Storage Writer does not call it, so a message
// is already SENT before any store has accepted it.
func (m *Message) Persist() error {
	if !CanTransition(m.State, StateSent) {
		return errors.Conflict("message is not in a persistable state", nil)
	}
	m.State = StateSent
	return nil
}

// Edit applies an edit Operation, enforcing operator identity, the edit
// window, and strict edit_version monotonicity (invariants 3 and 4 in
// section 8).
func (m *Message) Edit(op Operation, now time.Time) error {
	if op.ActorID != m.SenderID {
		return errors.PermissionDenied("only the sender may edit this message", nil)
	}
	if !CanTransition(m.State, StateEdited) {
		return errors.Conflict("message is not editable in its current state", nil)
	}
	if now.Sub(m.Timestamp) > EditWindow {
		return errors.Conflict("edit window has elapsed", nil)
	}
	if op.EditVersion <= m.EditVersion {
		return errors.Conflict("edit_version must strictly increase", nil)
	}
	if op.NewContent == nil {
		return errors.InvalidArgument("edit operation missing new content", nil)
	}

	m.EditHistory = append(m.EditHistory, EditHistoryEntry{
		EditVersion:  m.EditVersion,
		PriorContent: m.Content,
		EditedAt:     now,
	})
	m.Content = *op.NewContent
	m.EditVersion = op.EditVersion
	m.State = StateEdited
	m.Operations = append(m.Operations, AuditEntry{OpType: OpEdit, Actor: op.ActorID, At: now})
	return nil
}

// Recall transitions the message to RECALLED. edit_version is left
// untouched: recall is not an edit and does not reset version history
// (see SPEC_FULL.md's resolved Open Question).
func (m *Message) Recall(actorID string, now time.Time) error {
	if !CanTransition(m.State, StateRecalled) {
		return errors.Conflict("message cannot be recalled from its current state", nil)
	}
	m.State = StateRecalled
	m.IsRecalled = true
	m.Operations = append(m.Operations, AuditEntry{OpType: OpRecall, Actor: actorID, At: now})
	return nil
}

// DeleteHard marks the message invisible to every participant.
func (m *Message) DeleteHard(actorID string, now time.Time) error {
	if !CanTransition(m.State, StateDeletedHard) {
		return errors.Conflict("message cannot be hard-deleted from its current state", nil)
	}
	if m.Visibility == nil {
		m.Visibility = make(map[string]Visibility)
	}
	for _, uid := range append([]string{m.SenderID}, m.ReceiverIDs...) {
		m.Visibility[uid] = VisibilityDeleted
	}
	m.State = StateDeletedHard
	m.Operations = append(m.Operations, AuditEntry{OpType: OpDeleteHard, Actor: actorID, At: now})
	return nil
}

// DeleteSoft hides the message for a single user only, leaving the FSM
// state untouched; this is a per-user read-path concern, not an archive
// mutation (section 4.3 step 4).
func (m *Message) DeleteSoft(userID string) {
	if m.Visibility == nil {
		m.Visibility = make(map[string]Visibility)
	}
	m.Visibility[userID] = VisibilityDeleted
}
