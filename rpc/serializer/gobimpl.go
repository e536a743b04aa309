package serializer

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/ValentinKolb/dHA/rpc/common"
)

func init() {
	// row values are transported as interface values, basic types are registered by gob itself
	gob.Register(time.Time{})
}

// NewGOBSerializer creates a new serializer using Go's binary gob format.
// Unlike json it keeps the concrete types of statement arguments and row values.
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the IRPCSerializer interface using gob encoding
type gobSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	buf := bytes.NewBuffer(b)
	dec := gob.NewDecoder(buf)
	return dec.Decode(msg)
}
