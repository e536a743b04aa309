package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/ValentinKolb/dHA/lib/replica"
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
	ReplicaID string `json:"replica_id,omitempty"` // Used for: Activate, Deactivate, Resolve

	// Statement fields
	Statement  replica.Statement `json:"statement"`           // Used for: Exec, Query
	Tables     []string          `json:"tables,omitempty"`     // Used for: Exec
	Structural bool              `json:"structural,omitempty"` // Used for: Exec
	Idempotent bool              `json:"idempotent,omitempty"` // Used for: Exec

	// Response only fields
	Ok       bool                    `json:"ok,omitempty"`       // Used for: Activate, Deactivate, Resolve responses
	Result   *replica.Result         `json:"result,omitempty"`   // Used for: Exec, Query responses
	Status   *cluster.Status         `json:"status,omitempty"`   // Used for: Status responses
	Replicas []cluster.ReplicaStatus `json:"replicas,omitempty"` // Used for: List responses
	Err      string                  `json:"err,omitempty"`      // Empty if no error, otherwise contains the error message
}

// Operation converts the statement fields of an exec or query request into a cluster operation
func (m *Message) Operation() cluster.Operation {
	return cluster.Operation{
		Statement:  m.Statement,
		Tables:     m.Tables,
		Structural: m.Structural,
		Idempotent: m.Idempotent,
	}
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewListRequest creates a new List request
func NewListRequest() *Message {
	return &Message{MsgType: MsgTList}
}

// NewListResponse creates a new List response
func NewListResponse(replicas []cluster.ReplicaStatus) *Message {
	return &Message{
		MsgType:  MsgTList,
		Replicas: replicas,
	}
}

// NewStatusRequest creates a new Status request
func NewStatusRequest() *Message {
	return &Message{MsgType: MsgTStatus}
}

// NewStatusResponse creates a new Status response
func NewStatusResponse(status cluster.Status) *Message {
	return &Message{
		MsgType: MsgTStatus,
		Status:  &status,
	}
}

// NewMembershipRequest creates a new Activate, Deactivate or Resolve request
func NewMembershipRequest(msgType MessageType, replicaID string) *Message {
	return &Message{
		MsgType:   msgType,
		ReplicaID: replicaID,
	}
}

// NewMembershipResponse creates a new Activate, Deactivate or Resolve response
func NewMembershipResponse(msgType MessageType, changed bool, err error) *Message {
	msg := &Message{
		MsgType: msgType,
		Ok:      changed,
	}
	if err != nil {
		msg.Err = err.Error()
	}
	return msg
}

// NewExecRequest creates a new Exec request
func NewExecRequest(op cluster.Operation) *Message {
	return &Message{
		MsgType:    MsgTExec,
		Statement:  op.Statement,
		Tables:     op.Tables,
		Structural: op.Structural,
		Idempotent: op.Idempotent,
	}
}

// NewQueryRequest creates a new Query request
func NewQueryRequest(stmt replica.Statement) *Message {
	return &Message{
		MsgType:   MsgTQuery,
		Statement: stmt,
	}
}

// NewResultResponse creates a new Exec or Query response
func NewResultResponse(msgType MessageType, result replica.Result, err error) *Message {
	msg := &Message{MsgType: msgType}
	if err != nil {
		msg.Err = err.Error()
		return msg
	}
	msg.Result = &result
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTList:
		return "list"
	case MsgTActivate:
		return "activate"
	case MsgTDeactivate:
		return "deactivate"
	case MsgTResolve:
		return "resolve"
	case MsgTStatus:
		return "status"
	case MsgTExec:
		return "exec"
	case MsgTQuery:
		return "query"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
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

	// Convert string back to MessageType
	switch s {
	case "list":
		*t = MsgTList
	case "activate":
		*t = MsgTActivate
	case "deactivate":
		*t = MsgTDeactivate
	case "resolve":
		*t = MsgTResolve
	case "status":
		*t = MsgTStatus
	case "exec":
		*t = MsgTExec
	case "query":
		*t = MsgTQuery
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Membership operations

	MsgTList       // List all configured replicas
	MsgTActivate   // Activate a replica
	MsgTDeactivate // Deactivate a replica
	MsgTResolve    // Clear the resync flag of a replica and activate it
	MsgTStatus     // Cluster status

	// Statement operations

	MsgTExec  // Write statement, executed on all active replicas
	MsgTQuery // Read statement, executed on one active replica
)
