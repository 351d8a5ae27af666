package network

import "encoding/json"

type MsgType string

const (
	MsgHello    MsgType = "hello"
	MsgHelloAck MsgType = "hello_ack"
	MsgOp       MsgType = "op"
	MsgAck      MsgType = "ack"
	MsgPing     MsgType = "ping"
	MsgError    MsgType = "error"
)

// Envelope is the single frame type exchanged between the coordinator hub
// and agents, one JSON object per line.
type Envelope struct {
	Type     MsgType         `json:"type"`
	Token    string          `json:"token,omitempty"`
	Computer string          `json:"computer_id,omitempty"`
	Folder   string          `json:"folder_id,omitempty"`
	Seq      uint64          `json:"seq,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error,omitempty"`
}
