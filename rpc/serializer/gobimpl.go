package serializer

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/ValentinKolb/hkv/rpc/common"
)

// NewGOBSerializer creates a serializer using Go's gob format. Byte fields are
// written raw, which makes it the smaller choice for large rows; both ends must be Go.
// Every message carries its own type information since frames are decoded independently.
func NewGOBSerializer() IRPCSerializer {
	return gobSerializer{}
}

type gobSerializer struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (gobSerializer) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("gob: encode %s message: %w", msg.MsgType, err)
	}
	return buf.Bytes(), nil
}

func (gobSerializer) Deserialize(b []byte, msg *common.Message) error {
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(msg); err != nil {
		return fmt.Errorf("gob: decode message: %w", err)
	}
	return nil
}
