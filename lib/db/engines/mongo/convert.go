package mongo

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ValentinKolb/hkv/lib/value"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fromBSON converts a decoded BSON value into a canonical value.
// Embedded documents decode as primitive.D and arrays as primitive.A,
// integers keep their BSON width.
func fromBSON(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			n, err := fromBSON(e.Value)
			if err != nil {
				return nil, err
			}
			out[e.Key] = n
		}
		return out, nil
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, item := range t {
			n, err := fromBSON(item)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case primitive.A:
		out := make([]any, len(t))
		for i, item := range t {
			n, err := fromBSON(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano), nil
	case primitive.ObjectID:
		return t.Hex(), nil
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return nil, fmt.Errorf("decimal %s: %w", t, err)
		}
		return value.Normalize(f)
	case primitive.Null, primitive.Undefined:
		return nil, nil
	default:
		n, err := value.Normalize(t)
		if err != nil {
			return nil, fmt.Errorf("unsupported bson value %T: %w", v, err)
		}
		return n, nil
	}
}
