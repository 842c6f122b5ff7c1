package ws

import (
	"encoding/json"

	"github.com/oklog/ulid/v2"
)

func newConnID() string {
	return ulid.Make().String()
}

// outboundFrame is the JSON envelope written to websocket clients.
type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// inboundFrame is the JSON envelope read from websocket clients. Ack is optional;
// when set, the server answers with an ack frame carrying the same id.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ack   string          `json:"ack,omitempty"`
}

type ackPayload struct {
	Ack   string `json:"ack"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: data})
}
