package orchestrator

import (
	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/internal/message"
)

// SendMessageRequest is the MessageOrchestratorService.SendMessage wire
// type: a gateway's RPC client bundles the three SendMessage arguments
// into one struct since a unary RPC carries a single request value.
type SendMessageRequest struct {
	SenderID string                `json:"sender_id"`
	Tenant   string                `json:"tenant"`
	Command  *frame.MessageCommand `json:"command"`
}

// sendRequest is the JSON shape a client's MessageCommand.Payload carries
// for a Send. It deliberately mirrors message.Content's oneof rather than
// inventing a second schema the gateway would have to translate.
type sendRequest struct {
	ConversationID string              `json:"conversation_id,omitempty"`
	ReceiverIDs    []string            `json:"receiver_ids,omitempty"`
	ClientMsgID    string              `json:"client_msg_id,omitempty"`
	Content        message.Content     `json:"content"`
	Attachments    []attachmentRequest `json:"attachments,omitempty"`
	Tags           []string            `json:"tags,omitempty"`
	Sync           bool                `json:"sync,omitempty"`
}

type attachmentRequest struct {
	AttachmentID string `json:"attachment_id"`
}
