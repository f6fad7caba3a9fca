package filters

import (
	"errors"
	"fmt"

	"github.com/wudi/pdfcompose/ir/raw"
)

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
func ExtractFilters(dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj

	filterObj, ok := dict.Get("Filter")
	if !ok {
		return names, params
	}
	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}

	if pObj, ok := dict.Get("DecodeParms"); ok {
		switch p := pObj.(type) {
		case *raw.DictObj:
			params = append(params, p)
		case *raw.ArrayObj:
			for _, item := range p.Items {
				d, _ := item.(*raw.DictObj)
				params = append(params, d)
			}
		}
	}
	return names, params
}

func intParam(params *raw.DictObj, key string, def int) int {
	if o, ok := params.Get(key); ok {
		if f, ok := raw.Float(o); ok {
			return int(f)
		}
	}
	return def
}

// applyPredictor reverses TIFF (2) and PNG (10-15) predictors.
func applyPredictor(data []byte, params *raw.DictObj) ([]byte, error) {
	predictor := intParam(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if rowLen <= 0 || bpp <= 0 {
		return nil, errors.New("invalid predictor parameters")
	}

	if predictor == 2 {
		if bpc != 8 {
			return nil, fmt.Errorf("TIFF predictor with %d bits per component", bpc)
		}
		out := append([]byte(nil), data...)
		for row := 0; row+rowLen <= len(out); row += rowLen {
			for i := bpp; i < rowLen; i++ {
				out[row+i] += out[row+i-bpp]
			}
		}
		return out, nil
	}

	out := make([]byte, 0, len(data))
	prev := make([]byte, rowLen)
	for pos := 0; pos < len(data); pos += rowLen + 1 {
		if pos+1 > len(data) {
			break
		}
		filter := data[pos]
		end := pos + 1 + rowLen
		if end > len(data) {
			end = len(data)
		}
		cur := make([]byte, rowLen)
		copy(cur, data[pos+1:end])
		for i := 0; i < rowLen; i++ {
			var left, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch filter {
			case 0:
			case 1:
				cur[i] += left
			case 2:
				cur[i] += up
			case 3:
				cur[i] += byte((int(left) + int(up)) / 2)
			case 4:
				cur[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("unknown PNG filter type %d", filter)
			}
		}
		out = append(out, cur[:end-pos-1]...)
		prev = cur
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
