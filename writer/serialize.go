package writer

import (
	"encoding/hex"
	"strconv"

	"github.com/wudi/pdfcompose/contentstream"
	"github.com/wudi/pdfcompose/ir/raw"
)

// appendObject appends the indirect object definition "n g obj ... endobj".
func appendObject(b []byte, ref raw.ObjectRef, obj raw.Object) []byte {
	b = strconv.AppendInt(b, int64(ref.Num), 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(ref.Gen), 10)
	b = append(b, " obj\n"...)
	b = appendPrimitive(b, obj)
	return append(b, "\nendobj\n"...)
}

func appendPrimitive(b []byte, o raw.Object) []byte {
	switch v := o.(type) {
	case raw.NameObj:
		return contentstream.AppendName(b, v.Val)
	case raw.NumberObj:
		if v.IsInteger() {
			return strconv.AppendInt(b, v.Int(), 10)
		}
		return append(b, contentstream.FormatNumber(v.Float())...)
	case raw.BoolObj:
		return strconv.AppendBool(b, v.V)
	case raw.StringObj:
		if v.Hex {
			b = append(b, '<')
			b = append(b, hex.EncodeToString(v.Bytes)...)
			return append(b, '>')
		}
		return contentstream.AppendString(b, v.Bytes)
	case *raw.ArrayObj:
		b = append(b, '[')
		for i, it := range v.Items {
			if i > 0 {
				b = append(b, ' ')
			}
			b = appendPrimitive(b, it)
		}
		return append(b, ']')
	case *raw.DictObj:
		b = append(b, "<<"...)
		for _, k := range v.Keys() {
			b = contentstream.AppendName(b, k)
			b = append(b, ' ')
			b = appendPrimitive(b, v.KV[k])
		}
		return append(b, ">>"...)
	case *raw.StreamObj:
		dict := v.Dict
		if dict == nil {
			dict = raw.Dict()
		}
		dict.Set("Length", raw.NumberInt(int64(len(v.Data))))
		b = appendPrimitive(b, dict)
		b = append(b, "\nstream\n"...)
		b = append(b, v.Data...)
		return append(b, "\nendstream"...)
	case raw.RefObj:
		return append(b, v.R.String()...)
	default:
		return append(b, "null"...)
	}
}
