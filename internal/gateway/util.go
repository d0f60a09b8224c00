package gateway

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
)

// qualityFromAttributes reads an optional rtt_ms/loss_rate pair a client
// attaches to its heartbeat SystemCommand.
func qualityFromAttributes(attrs map[string]string) *ports.Quality {
	q := &ports.Quality{MeasuredAt: time.Now()}
	any := false
	if v, ok := attrs["rtt_ms"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			q.RTTMillis = f
			any = true
		}
	}
	if v, ok := attrs["loss_rate"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			q.LossRate = f
			any = true
		}
	}
	if v, ok := attrs["network_type"]; ok {
		q.NetworkType = v
		any = true
	}
	if !any {
		return nil
	}
	return q
}

// ackPayload serializes a SendEnvelopeAck for the frame.MessageCommand
// payload carried back to the client.
func ackPayload(ack *frame.SendEnvelopeAck) []byte {
	b, _ := json.Marshal(ack)
	return b
}
