// Package frame defines the wire-level unit exchanged on every client
// transport (WebSocket, QUIC) and its JSON codec.
package frame

import "time"

// Reliability is the delivery guarantee a client requests for one frame.
type Reliability int

const (
	AtMostOnce Reliability = iota
	AtLeastOnce
	ExactlyOnce
)

// Format is the negotiated serialization of a frame's command payload.
type Format int

const (
	FormatProtobuf Format = iota
	FormatJSON
)

// Compression is the negotiated payload compression algorithm.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionSnappy
)

// CommandKind identifies which oneof variant a Frame carries.
type CommandKind int

const (
	CommandSystem CommandKind = iota
	CommandMessage
	CommandNotification
	CommandCustom
)

// MessageCommandType distinguishes a client send from a client/server ACK
// inside a MessageCommand.
type MessageCommandType int

const (
	Send MessageCommandType = iota
	Ack
)

// AckStatus is the outcome carried in a SendEnvelopeAck.
type AckStatus int

const (
	StatusSuccess AckStatus = iota
	StatusFailed
)

// Frame is the atomic unit on every client transport. The same semantics
// apply whether it arrived over WebSocket or QUIC.
type Frame struct {
	Version     int               `json:"version"`
	MessageID   string            `json:"message_id"`
	Reliability Reliability       `json:"reliability"`
	Kind        CommandKind       `json:"kind"`
	System      *SystemCommand    `json:"system,omitempty"`
	Message     *MessageCommand   `json:"message,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// SystemCommand carries connection-lifecycle control messages: login,
// format/compression negotiation, heartbeat.
type SystemCommand struct {
	Type         string            `json:"type"` // "login" | "negotiate" | "heartbeat" | "negotiated"
	Token        string            `json:"token,omitempty"`
	DeviceID     string            `json:"device_id,omitempty"`
	Platform     string            `json:"platform,omitempty"`
	Formats      []Format          `json:"formats,omitempty"`
	Compressions []Compression     `json:"compressions,omitempty"`
	ChosenFormat *Format           `json:"chosen_format,omitempty"`
	ChosenComp   *Compression      `json:"chosen_compression,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// MessageCommand carries a user-to-user send, a server push, or a client
// ACK of one.
type MessageCommand struct {
	Type      MessageCommandType `json:"type"`
	MessageID string             `json:"message_id"`
	Payload   []byte             `json:"payload"`
	Metadata  map[string]string  `json:"metadata,omitempty"`
	Seq       int64              `json:"seq,omitempty"`
}

// SendEnvelopeAck is the payload of a MessageCommand{Type: Ack} the
// Gateway sends back to the originating connection after a client send.
type SendEnvelopeAck struct {
	ServerMsgID  string    `json:"server_msg_id"`
	Status       AckStatus `json:"status"`
	Seq          int64     `json:"seq,omitempty"`
	ErrorCode    string    `json:"error_code,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// ConversationID extracts the routing conversation id, falling back to the
// frame's metadata when the message command carries none of its own.
func (f *Frame) ConversationID() string {
	if f.Message != nil {
		if cid, ok := f.Message.Metadata["conversation_id"]; ok && cid != "" {
			return cid
		}
	}
	if f.Metadata != nil {
		return f.Metadata["conversation_id"]
	}
	return ""
}

// Received pairs a decoded Frame with its arrival time. The time is
// attached by the transport layer on decode, not part of the wire format,
// and is therefore not serialized.
type Received struct {
	Frame *Frame
	At    time.Time
}
