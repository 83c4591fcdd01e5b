package rpc

import (
	"bytes"
	"encoding/json"
)

// ProtocolVersion is the supported JSON-RPC protocol version
const ProtocolVersion = "2.0"

// ErrorCode is a JSON-RPC 2.0 error code
type ErrorCode int

const (
	// CodeParseError indicates invalid JSON was received
	CodeParseError ErrorCode = -32700
	// CodeInvalidRequest indicates the JSON sent is not a valid Request object
	CodeInvalidRequest ErrorCode = -32600
	// CodeMethodNotFound indicates the method does not exist
	CodeMethodNotFound ErrorCode = -32601
	// CodeInvalidParams indicates invalid method parameters
	CodeInvalidParams ErrorCode = -32602
	// CodeInternalError indicates a handler failure
	CodeInternalError ErrorCode = -32603
)

// ID is a request id. It keeps the raw JSON so a response echoes the exact id
// the client sent, string or number.
type ID struct {
	raw json.RawMessage
}

// NewNumberID creates a numeric request id
func NewNumberID(n int64) *ID {
	b, _ := json.Marshal(n)
	return &ID{raw: b}
}

// NewStringID creates a string request id
func NewStringID(s string) *ID {
	b, _ := json.Marshal(s)
	return &ID{raw: b}
}

// String returns the id as written on the wire
func (id *ID) String() string {
	if id == nil {
		return "null"
	}
	return string(id.raw)
}

// MarshalJSON implements json.Marshaler
func (id *ID) MarshalJSON() ([]byte, error) {
	if id == nil || len(id.raw) == 0 {
		return []byte("null"), nil
	}
	return id.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler
func (id *ID) UnmarshalJSON(data []byte) error {
	id.raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return nil
}

// Request is a JSON-RPC request (with an id) or notification (without one)
type Request struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	ID             *ID             `json:"id,omitempty"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is a JSON-RPC response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	ID             *ID             `json:"id"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// envelope is used to classify an incoming message before decoding it fully
type envelope struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	ID             *ID             `json:"id,omitempty"`
	Method         *string         `json:"method,omitempty"`
	Params         json.RawMessage `json:"params,omitempty"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          json.RawMessage `json:"error,omitempty"`
}

func (e *envelope) isResponse() bool {
	return e.Method == nil && (len(e.Result) > 0 || len(e.Error) > 0)
}

// NewResultResponse builds a successful response. result must already be encoded.
func NewResultResponse(id *ID, result json.RawMessage) *Response {
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		ID:             id,
		Result:         result,
	}
}

// NewErrorResponse builds an error response with optional pre-encoded data
func NewErrorResponse(id *ID, code ErrorCode, message string, data json.RawMessage) *Response {
	return &Response{
		JSONRPCVersion: ProtocolVersion,
		ID:             id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// newNotificationMessage encodes an outbound notification
func newNotificationMessage(method string, params any) ([]byte, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Request{
		JSONRPCVersion: ProtocolVersion,
		Method:         method,
		Params:         raw,
	})
}
