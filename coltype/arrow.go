package coltype

import (
	"fmt"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
)

// ArrowDataType returns the arrow type backing a Kind, the same dispatch the
// teacher's per-type files perform (merge/data_types/int64.go's
// ArrowDataType, float64.go's ArrowDataType, ...).
func (k Kind) ArrowDataType() arrow.DataType {
	switch k {
	case KindInt64:
		return arrow.PrimitiveTypes.Int64
	case KindUint64:
		return arrow.PrimitiveTypes.Uint64
	case KindFloat64, KindTimestamp:
		return arrow.PrimitiveTypes.Float64
	case KindString:
		return arrow.BinaryTypes.String
	default:
		return nil
	}
}

// KindFromArrow maps an arrow.DataType to the Kind the catalog stores it
// under. Unknown arrow types are reported as an error rather than silently
// downgraded, because a silently-wrong Kind would corrupt the catalog's
// min/max comparisons.
func KindFromArrow(t arrow.DataType) (Kind, error) {
	switch t.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
		return KindInt64, nil
	case arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return KindUint64, nil
	case arrow.FLOAT32, arrow.FLOAT64:
		return KindFloat64, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return KindString, nil
	case arrow.TIMESTAMP:
		return KindTimestamp, nil
	default:
		return 0, fmt.Errorf("coltype: unsupported arrow type %s", t)
	}
}

// ValueAt reads the i-th element of an arrow array as a tagged Value, and
// reports whether the slot is valid (non-null). Used by the catalog
// updater's per-file scan (§4.4 step 3) to fold a file's column into a
// Range without boxing every scalar as interface{}.
func ValueAt(k Kind, col arrow.Array, i int) (Value, bool) {
	if col.IsNull(i) {
		return Value{Kind: k}, false
	}
	switch k {
	case KindInt64:
		return Int64(readIntAt(col, i)), true
	case KindUint64:
		return Uint64(readUintAt(col, i)), true
	case KindFloat64:
		return Float64(readFloatAt(col, i)), true
	case KindTimestamp:
		return Timestamp(readFloatAt(col, i)), true
	case KindString:
		return String(col.(*array.String).Value(i)), true
	default:
		return Value{}, false
	}
}

func readIntAt(col arrow.Array, i int) int64 {
	switch c := col.(type) {
	case *array.Int8:
		return int64(c.Value(i))
	case *array.Int16:
		return int64(c.Value(i))
	case *array.Int32:
		return int64(c.Value(i))
	case *array.Int64:
		return c.Value(i)
	default:
		return 0
	}
}

func readUintAt(col arrow.Array, i int) uint64 {
	switch c := col.(type) {
	case *array.Uint8:
		return uint64(c.Value(i))
	case *array.Uint16:
		return uint64(c.Value(i))
	case *array.Uint32:
		return uint64(c.Value(i))
	case *array.Uint64:
		return c.Value(i)
	default:
		return 0
	}
}

func readFloatAt(col arrow.Array, i int) float64 {
	switch c := col.(type) {
	case *array.Float32:
		return float64(c.Value(i))
	case *array.Float64:
		return c.Value(i)
	case *array.Timestamp:
		return float64(c.Value(i)) / 1e9
	default:
		return 0
	}
}

// RangeFromArrow computes the full Range of one column of an arrow array,
// treating missingSentinel (if non-nil) as an additional "missing" value
// alongside arrow nulls -- mirroring the teacher's convertToStandardMissingValues
// step before calculateStats (EDDTableFromFiles.java's scan loop).
func RangeFromArrow(k Kind, col arrow.Array, missingSentinel *Value) Range {
	r := ZeroRange(k)
	n := col.Len()
	for i := 0; i < n; i++ {
		v, valid := ValueAt(k, col, i)
		if !valid {
			r.HasMissing = true
			continue
		}
		missing := missingSentinel != nil && v.Compare(*missingSentinel) == 0
		r.Widen(v, missing)
	}
	return r
}

// AppendValue appends a tagged Value onto an arrow array.Builder of the
// matching Kind, the inverse of ValueAt. Used by reference FileReader
// adapters building result chunks.
func AppendValue(b array.Builder, k Kind, v Value, valid bool) error {
	if !valid {
		b.AppendNull()
		return nil
	}
	switch k {
	case KindInt64:
		b.(*array.Int64Builder).Append(v.I64)
	case KindUint64:
		b.(*array.Uint64Builder).Append(v.U64)
	case KindFloat64, KindTimestamp:
		b.(*array.Float64Builder).Append(v.F64)
	case KindString:
		b.(*array.StringBuilder).Append(v.Str)
	default:
		return fmt.Errorf("coltype: cannot append kind %v", k)
	}
	return nil
}

// NewBuilder returns a fresh array.Builder for Kind k, the constructor half
// of AppendValue.
func NewBuilder(mem arrowMemoryAllocator, k Kind) array.Builder {
	return array.NewBuilder(mem, k.ArrowDataType())
}

// arrowMemoryAllocator is satisfied by memory.Allocator; declared locally so
// this file doesn't force every caller to import the memory package just to
// name the parameter type.
type arrowMemoryAllocator interface {
	Allocate(size int) []byte
	Reallocate(size int, b []byte) []byte
	Free(b []byte)
}
