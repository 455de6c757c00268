package conveyor

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 "method not found".
const codeMethodNotFound = -32601

// rpcRequest is an outgoing JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      string      `json:"id"`
}

// rpcReply answers a request the daemon sent to us.
type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  interface{}     `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// rpcMessage is any incoming frame: a response, a notification, or a request.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

func (m *rpcMessage) hasID() bool {
	return len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null"))
}

// idString returns the response id as our string key. Daemons that echo
// numeric ids are matched by their decimal text.
func (m *rpcMessage) idString() string {
	var s string
	if err := json.Unmarshal(m.ID, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(m.ID))
}

// RPCError is an error response from the daemon. Job dispatch failures reach
// callers as *RPCError without reinterpretation.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("conveyor: rpc error %d: %s", e.Code, e.Message)
}

// firstParam unwraps positional params ([doc]) to the document itself.
func firstParam(params json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return trimmed
	}
	var list []json.RawMessage
	if err := json.Unmarshal(trimmed, &list); err != nil || len(list) == 0 {
		return trimmed
	}
	return list[0]
}
