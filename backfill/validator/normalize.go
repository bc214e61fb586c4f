package validator

import (
	"math"
	"reflect"
	"time"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// Normalize maps driver-specific representations onto a common form so a
// CQL source and a SQL target can be compared
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case gocql.UUID:
		return uuid.UUID(x).String()
	case uuid.UUID:
		return x.String()
	case [16]byte:
		return uuid.UUID(x).String()
	case string:
		if len(x) == 36 {
			if u, err := uuid.Parse(x); err == nil {
				return u.String()
			}
		}
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return normalizeUint(x)
	case float32:
		return float64(x)
	}

	// dereference pointers such as *string from nullable scans
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	}
	return v
}

func normalizeUint(x uint64) any {
	if x > math.MaxInt64 {
		return x
	}
	return int64(x)
}

// Equal compares two values after normalisation
func Equal(a, b any) bool {
	na, nb := Normalize(a), Normalize(b)
	if na == nil || nb == nil {
		return na == nil && nb == nil
	}
	if fa, ok := na.(float64); ok {
		if ib, ok := nb.(int64); ok {
			return fa == float64(ib)
		}
	}
	if ia, ok := na.(int64); ok {
		if fb, ok := nb.(float64); ok {
			return float64(ia) == fb
		}
	}
	return reflect.DeepEqual(na, nb)
}
