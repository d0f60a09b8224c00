package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newSentMessage() *Message {
	return &Message{
		ServerID:       "srv-1",
		ConversationID: "conv-1",
		SenderID:       "user-a",
		State:          StateSent,
		Timestamp:      time.Now(),
	}
}

func TestCanTransition(t *testing.T) {
	require.True(t, CanTransition(StateInit, StateSent))
	require.True(t, CanTransition(StateSent, StateEdited))
	require.True(t, CanTransition(StateEdited, StateEdited))
	require.True(t, CanTransition(StateSent, StateRecalled))
	require.True(t, CanTransition(StateSent, StateDeletedHard))
	require.False(t, CanTransition(StateRecalled, StateEdited))
	require.False(t, CanTransition(StateDeletedHard, StateRecalled))
	require.False(t, CanTransition(StateInit, StateEdited))
}

func TestEditIncrementsVersionAndHistory(t *testing.T) {
	m := newSentMessage()
	m.Content = Content{Type: ContentText, Text: "hello"}

	err := m.Edit(Operation{
		ActorID:     "user-a",
		EditVersion: 1,
		NewContent:  &Content{Type: ContentText, Text: "hi"},
	}, m.Timestamp.Add(2*time.Hour))
	require.NoError(t, err)

	require.Equal(t, StateEdited, m.State)
	require.Equal(t, 1, m.EditVersion)
	require.Len(t, m.EditHistory, 1)
	require.Equal(t, "hello", m.EditHistory[0].PriorContent.Text)
	require.Equal(t, "hi", m.Content.Text)
}

func TestEditRejectsWrongActor(t *testing.T) {
	m := newSentMessage()
	err := m.Edit(Operation{ActorID: "user-b", EditVersion: 1, NewContent: &Content{}}, m.Timestamp)
	require.Error(t, err)
}

func TestEditRejectsBeyondWindow(t *testing.T) {
	m := newSentMessage()
	err := m.Edit(Operation{
		ActorID:     "user-a",
		EditVersion: 1,
		NewContent:  &Content{Type: ContentText, Text: "hi"},
	}, m.Timestamp.Add(EditWindow+time.Second))
	require.Error(t, err)
}

func TestEditAtExactlyWindowBoundaryAllowed(t *testing.T) {
	m := newSentMessage()
	err := m.Edit(Operation{
		ActorID:     "user-a",
		EditVersion: 1,
		NewContent:  &Content{Type: ContentText, Text: "hi"},
	}, m.Timestamp.Add(EditWindow))
	require.NoError(t, err)
}

func TestEditRejectsNonIncreasingVersion(t *testing.T) {
	m := newSentMessage()
	m.EditVersion = 2
	err := m.Edit(Operation{
		ActorID:     "user-a",
		EditVersion: 2,
		NewContent:  &Content{Type: ContentText, Text: "hi"},
	}, m.Timestamp)
	require.Error(t, err)
}

func TestRecallPreservesEditVersion(t *testing.T) {
	m := newSentMessage()
	m.EditVersion = 3

	err := m.Recall("user-a", m.Timestamp.Add(47*time.Hour+59*time.Minute))
	require.NoError(t, err)
	require.Equal(t, StateRecalled, m.State)
	require.True(t, m.IsRecalled)
	require.Equal(t, 3, m.EditVersion)

	err = m.Edit(Operation{ActorID: "user-a", EditVersion: 4, NewContent: &Content{}}, m.Timestamp)
	require.Error(t, err)
}

func TestDeleteHardMarksAllParticipantsVisibilityDeleted(t *testing.T) {
	m := newSentMessage()
	m.ReceiverIDs = []string{"user-b", "user-c"}

	err := m.DeleteHard("user-a", time.Now())
	require.NoError(t, err)
	require.Equal(t, StateDeletedHard, m.State)
	require.Equal(t, VisibilityDeleted, m.Visibility["user-a"])
	require.Equal(t, VisibilityDeleted, m.Visibility["user-b"])
	require.Equal(t, VisibilityDeleted, m.Visibility["user-c"])
}

func TestTerminalStatesRejectFurtherTransitions(t *testing.T) {
	m := newSentMessage()
	require.NoError(t, m.DeleteHard("user-a", time.Now()))
	require.Error(t, m.Recall("user-a", time.Now()))
	require.Error(t, m.Edit(Operation{ActorID: "user-a", EditVersion: 1, NewContent: &Content{}}, time.Now()))
}
