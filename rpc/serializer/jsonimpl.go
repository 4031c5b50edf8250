package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/hkv/rpc/common"
)

// NewJSONSerializer creates a serializer writing messages as JSON (the default).
// Byte fields (Value, Rows, Meta) are base64 encoded by encoding/json.
func NewJSONSerializer() IRPCSerializer {
	return jsonSerializer{}
}

type jsonSerializer struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (jsonSerializer) Serialize(msg common.Message) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("json: encode %s message: %w", msg.MsgType, err)
	}
	return b, nil
}

func (jsonSerializer) Deserialize(b []byte, msg *common.Message) error {
	if err := json.Unmarshal(b, msg); err != nil {
		return fmt.Errorf("json: decode message: %w", err)
	}
	return nil
}
