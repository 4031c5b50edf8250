package db

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/ValentinKolb/hkv/lib/value"
)

// Row is the unit of persistence: a unique id and an opaque structured value.
type Row struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// --------------------------------------------------------------------------
// Row Codec
// --------------------------------------------------------------------------

// EncodeValue serializes a value as JSON text. Every driver that stores values
// as text or bytes goes through this function.
func EncodeValue(v any) ([]byte, error) {
	n, err := value.Normalize(v)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return json.Marshal(n)
}

// DecodeValue is the inverse of EncodeValue. It always yields a canonical value.
func DecodeValue(b []byte) (any, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("decode value: %w", err)
	}
	return v, nil
}

// --------------------------------------------------------------------------
// Table names
// --------------------------------------------------------------------------

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateTableName checks that the name can be used as a table, collection or
// SQL identifier by every driver.
func ValidateTableName(op, table string) error {
	if !tableNameRe.MatchString(table) {
		return InvalidArgument(op, "invalid table name %q (expected [A-Za-z_][A-Za-z0-9_]*)", table)
	}
	return nil
}
