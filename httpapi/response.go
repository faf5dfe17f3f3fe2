package httpapi

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/ayudhien/erddap/coltype"
	"github.com/ayudhien/erddap/core"
)

// writeJSONChunks streams every chunk as a {"columns":[...],"rows":[[...]]}
// document, using jsoniter the way persist.go does.
func writeJSONChunks(w io.Writer, chunks []*core.Table) error {
	stream := jsoniter.ConfigDefault.BorrowStream(w)
	defer jsoniter.ConfigDefault.ReturnStream(stream)

	stream.WriteObjectStart()
	stream.WriteObjectField("columns")
	if len(chunks) == 0 || chunks[0].Record == nil {
		stream.WriteArrayStart()
		stream.WriteArrayEnd()
	} else {
		stream.WriteArrayStart()
		for i, f := range chunks[0].Record.Schema().Fields() {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteString(f.Name)
		}
		stream.WriteArrayEnd()
	}

	stream.WriteMore()
	stream.WriteObjectField("rows")
	stream.WriteArrayStart()
	first := true
	for _, chunk := range chunks {
		if chunk == nil || chunk.Record == nil {
			continue
		}
		kinds := make([]coltype.Kind, chunk.Record.NumCols())
		for i, f := range chunk.Record.Schema().Fields() {
			k, err := coltype.KindFromArrow(f.Type)
			if err != nil {
				return fmt.Errorf("response column %s: %w", f.Name, err)
			}
			kinds[i] = k
		}
		n := int(chunk.Record.NumRows())
		for row := 0; row < n; row++ {
			if !first {
				stream.WriteMore()
			}
			first = false
			stream.WriteArrayStart()
			for col := 0; col < int(chunk.Record.NumCols()); col++ {
				if col > 0 {
					stream.WriteMore()
				}
				v, valid := coltype.ValueAt(kinds[col], chunk.Record.Column(col), row)
				if !valid {
					stream.WriteNil()
					continue
				}
				writeValue(stream, kinds[col], v)
			}
			stream.WriteArrayEnd()
		}
	}
	stream.WriteArrayEnd()
	stream.WriteObjectEnd()

	return stream.Flush()
}

func writeValue(stream *jsoniter.Stream, k coltype.Kind, v coltype.Value) {
	switch k {
	case coltype.KindInt64:
		stream.WriteInt64(v.I64)
	case coltype.KindUint64:
		stream.WriteUint64(v.U64)
	case coltype.KindFloat64, coltype.KindTimestamp:
		stream.WriteFloat64(v.F64)
	default:
		stream.WriteString(v.Str)
	}
}
