package durability

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Phase is the kind of durability event.
type Phase uint8

const (
	PhaseInvoke   Phase = iota // operation is about to be dispatched
	PhaseCommit                // operation applied on one replica
	PhaseRollback              // operation not applied on one replica
	PhaseForget                // outcome on one replica is unknown
)

func (p Phase) String() string {
	switch p {
	case PhaseInvoke:
		return "INVOKE"
	case PhaseCommit:
		return "COMMIT"
	case PhaseRollback:
		return "ROLLBACK"
	case PhaseForget:
		return "FORGET"
	default:
		return fmt.Sprintf("Unknown(%d)", p)
	}
}

// Terminal reports whether the phase settles the outcome on a replica.
func (p Phase) Terminal() bool {
	return p == PhaseCommit || p == PhaseRollback
}

// ExceptionType classifies the failure attached to a result.
type ExceptionType uint8

const (
	ExceptionNone      ExceptionType = iota
	ExceptionLocal                   // replica unreachable or broken
	ExceptionUnknown                 // outcome unknown (timeout, canceled)
	ExceptionStatement               // statement rejected by the engine
)

func (e ExceptionType) String() string {
	switch e {
	case ExceptionNone:
		return "None"
	case ExceptionLocal:
		return "Local"
	case ExceptionUnknown:
		return "Unknown"
	case ExceptionStatement:
		return "Statement"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

const (
	flagIdempotent = 1 << 0

	// phase + exception + flags + unixNano + txLen
	headerSize = 1 + 1 + 1 + 8 + 4
)

// Event is one record of the durability log.
// INVOKE events carry the target replicas, result events carry ReplicaID.
type Event struct {
	Seq        uint64 // assigned by the journal, not part of the encoding
	TxID       string
	Phase      Phase
	ReplicaID  string
	Exception  ExceptionType
	Replicas   []string
	Idempotent bool
	Time       time.Time
}

func (e Event) String() string {
	if e.Phase == PhaseInvoke {
		return fmt.Sprintf("#%d %s tx=%s replicas=%v idempotent=%v", e.Seq, e.Phase, e.TxID, e.Replicas, e.Idempotent)
	}
	return fmt.Sprintf("#%d %s tx=%s replica=%s exception=%s", e.Seq, e.Phase, e.TxID, e.ReplicaID, e.Exception)
}

// ids returns the replica ids stored in the encoding
func (e *Event) ids() []string {
	if e.Phase == PhaseInvoke {
		return e.Replicas
	}
	return []string{e.ReplicaID}
}

// SizeBytes returns the exact number of bytes needed to serialize this event
func (e *Event) SizeBytes() int {
	size := headerSize + len(e.TxID) + 2 // + replicaCount
	for _, id := range e.ids() {
		size += 2 + len(id)
	}
	return size
}

// Serialize encodes the event with the format:
// 1 byte phase,
// 1 byte exception,
// 1 byte flags,
// 8 bytes unix nano timestamp,
// 4 bytes transaction id length,
// N bytes transaction id,
// 2 bytes replica count,
// per replica 2 bytes id length followed by the id
func (e *Event) Serialize() []byte {
	result := make([]byte, e.SizeBytes())

	result[0] = byte(e.Phase)
	result[1] = byte(e.Exception)
	if e.Idempotent {
		result[2] |= flagIdempotent
	}
	binary.BigEndian.PutUint64(result[3:11], uint64(e.Time.UnixNano()))
	binary.BigEndian.PutUint32(result[11:15], uint32(len(e.TxID)))
	off := headerSize + copy(result[headerSize:], e.TxID)

	ids := e.ids()
	binary.BigEndian.PutUint16(result[off:], uint16(len(ids)))
	off += 2
	for _, id := range ids {
		binary.BigEndian.PutUint16(result[off:], uint16(len(id)))
		off += 2
		off += copy(result[off:], id)
	}
	return result
}

// Deserialize decodes an event produced by Serialize. Seq is left untouched.
func (e *Event) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for event")
	}

	e.Phase = Phase(data[0])
	if e.Phase > PhaseForget {
		return fmt.Errorf("invalid phase %d", data[0])
	}
	e.Exception = ExceptionType(data[1])
	e.Idempotent = data[2]&flagIdempotent != 0
	e.Time = time.Unix(0, int64(binary.BigEndian.Uint64(data[3:11])))

	txLen := int(binary.BigEndian.Uint32(data[11:15]))
	off := headerSize
	if len(data) < off+txLen+2 {
		return fmt.Errorf("data too short for transaction id of length %d", txLen)
	}
	e.TxID = string(data[off : off+txLen])
	off += txLen

	count := int(binary.BigEndian.Uint16(data[off:]))
	off += 2
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if len(data) < off+2 {
			return fmt.Errorf("data too short for replica %d", i)
		}
		idLen := int(binary.BigEndian.Uint16(data[off:]))
		off += 2
		if len(data) < off+idLen {
			return fmt.Errorf("data too short for replica id of length %d", idLen)
		}
		ids = append(ids, string(data[off:off+idLen]))
		off += idLen
	}
	if off != len(data) {
		return fmt.Errorf("%d trailing bytes after event", len(data)-off)
	}

	if e.Phase == PhaseInvoke {
		e.Replicas = ids
		e.ReplicaID = ""
	} else {
		if len(ids) != 1 {
			return fmt.Errorf("result event must name exactly one replica, got %d", len(ids))
		}
		e.ReplicaID = ids[0]
		e.Replicas = nil
	}
	return nil
}
