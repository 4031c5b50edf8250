package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/hkv/lib/db"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Table    string `json:"table,omitempty"`    // Used for: all driver operations
	Key      string `json:"key,omitempty"`      // Used for: Get, Set, SetE, Delete, Acquire, Release
	Value    []byte `json:"value,omitempty"`    // JSON encoded value (see db.EncodeValue). Used for: Set, SetE (request and response), Get (response)
	Update   bool   `json:"update,omitempty"`   // Update hint. Used for: Set, SetE
	ExpireAt int64  `json:"expireAt,omitempty"` // Unix milliseconds. Used for: SetE
	Owner    string `json:"owner,omitempty"`    // Lock owner. Used for: Acquire (response), Release
	WaitMs   int64  `json:"waitMs,omitempty"`   // How long the server may wait for a lock. Used for: Acquire
	LeaseMs  int64  `json:"leaseMs,omitempty"`  // Lock is released automatically after the lease. Used for: Acquire

	// Response only fields
	Rows  []Row      `json:"rows,omitempty"`  // Used for: GetAll responses
	Count int64      `json:"count,omitempty"` // Used for: Delete, DeleteAll responses
	Ok    bool       `json:"ok,omitempty"`    // Used for: Get, Release responses
	Err   string     `json:"err,omitempty"`   // Empty if no error, otherwise contains the error message
	Code  db.RetCode `json:"code,omitempty"`  // Return code of the error

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Info responses (JSON encoded db.DatabaseInfo)
}

// Row is a db.Row with its value in wire encoding
type Row struct {
	ID    string `json:"id"`
	Value []byte `json:"value"`
}

// EncodeRows converts rows into their wire form
func EncodeRows(rows []db.Row) ([]Row, error) {
	out := make([]Row, len(rows))
	for i, r := range rows {
		b, err := db.EncodeValue(r.Value)
		if err != nil {
			return nil, err
		}
		out[i] = Row{ID: r.ID, Value: b}
	}
	return out, nil
}

// DecodeRows is the inverse of EncodeRows
func DecodeRows(rows []Row) ([]db.Row, error) {
	out := make([]db.Row, len(rows))
	for i, r := range rows {
		v, err := db.DecodeValue(r.Value)
		if err != nil {
			return nil, err
		}
		out[i] = db.Row{ID: r.ID, Value: v}
	}
	return out, nil
}

// AsError rebuilds the error carried by a response, nil if there is none.
func (m *Message) AsError(op string) error {
	if m.MsgType != MsgTError && m.Err == "" {
		return nil
	}
	code := m.Code
	if code == db.RetCSuccess {
		code = db.RetCDriverError
	}
	return &db.Error{Code: code, Op: op, Msg: m.Err}
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewPrepareRequest creates a new Prepare request
func NewPrepareRequest(table string) *Message {
	return &Message{
		MsgType: MsgTPrepare,
		Table:   table,
	}
}

// NewGetAllRequest creates a new GetAll request
func NewGetAllRequest(table string) *Message {
	return &Message{
		MsgType: MsgTGetAll,
		Table:   table,
	}
}

// NewGetRequest creates a new Get request
func NewGetRequest(table, key string) *Message {
	return &Message{
		MsgType: MsgTGet,
		Table:   table,
		Key:     key,
	}
}

// NewSetRequest creates a new Set request
func NewSetRequest(table, key string, value []byte, update bool) *Message {
	return &Message{
		MsgType: MsgTSet,
		Table:   table,
		Key:     key,
		Value:   value,
		Update:  update,
	}
}

// NewSetERequest creates a new SetE request
func NewSetERequest(table, key string, value []byte, update bool, expireAt int64) *Message {
	return &Message{
		MsgType:  MsgTSetE,
		Table:    table,
		Key:      key,
		Value:    value,
		Update:   update,
		ExpireAt: expireAt,
	}
}

// NewDeleteAllRequest creates a new DeleteAll request
func NewDeleteAllRequest(table string) *Message {
	return &Message{
		MsgType: MsgTDeleteAll,
		Table:   table,
	}
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(table, key string) *Message {
	return &Message{
		MsgType: MsgTDelete,
		Table:   table,
		Key:     key,
	}
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{MsgType: MsgTInfo}
}

// NewAcquireRequest creates a new Acquire request
func NewAcquireRequest(key string, waitMs, leaseMs int64) *Message {
	return &Message{
		MsgType: MsgTLCKAcquire,
		Key:     key,
		WaitMs:  waitMs,
		LeaseMs: leaseMs,
	}
}

// NewReleaseRequest creates a new Release request
func NewReleaseRequest(key, owner string) *Message {
	return &Message{
		MsgType: MsgTLCKRelease,
		Key:     key,
		Owner:   owner,
	}
}

// NewResponse creates a response of the given type. A non nil err is
// transported with its return code.
func NewResponse(t MessageType, err error) *Message {
	msg := &Message{MsgType: t}
	if err != nil {
		msg.Err = err.Error()
		msg.Code = db.CodeOf(err)
	}
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(code db.RetCode, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
		Code:    code,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:    "success",
	MsgTError:      "error",
	MsgTPrepare:    "prepare",
	MsgTGetAll:     "getAll",
	MsgTGet:        "get",
	MsgTSet:        "set",
	MsgTSetE:       "setE",
	MsgTDeleteAll:  "deleteAll",
	MsgTDelete:     "delete",
	MsgTInfo:       "info",
	MsgTLCKAcquire: "acquire",
	MsgTLCKRelease: "release",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// db.Driver operations

	MsgTPrepare   // Prepare a table
	MsgTGetAll    // Get all rows of a table
	MsgTGet       // Get a row by key
	MsgTSet       // Set a row
	MsgTSetE      // Set a row with expiration
	MsgTDeleteAll // Delete all rows of a table
	MsgTDelete    // Delete a row by key
	MsgTInfo      // Get the driver info

	// ILockManager operations

	MsgTLCKAcquire // Acquire a lock
	MsgTLCKRelease // Release a lock
)
