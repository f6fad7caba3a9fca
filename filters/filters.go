// Package filters decodes PDF stream filters.
package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfcompose/ir/raw"
)

// ErrUnsupported is returned for filters that are not decoded, such as
// image codecs that are embedded as-is.
var ErrUnsupported = errors.New("unsupported filter")

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params *raw.DictObj) ([]byte, error)
}

type Limits struct {
	MaxDecompressedSize int64
}

// DefaultLimits caps decoded streams at 256 MiB.
var DefaultLimits = Limits{MaxDecompressedSize: 256 << 20}

type Pipeline struct {
	decoders map[string]Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	p := &Pipeline{decoders: make(map[string]Decoder, len(decoders)), limits: limits}
	for _, d := range decoders {
		p.decoders[d.Name()] = d
	}
	return p
}

// Default returns a pipeline with every decoder of this package.
func Default() *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
	}, DefaultLimits)
}

var abbreviations = map[string]string{
	"Fl":  "FlateDecode",
	"LZW": "LZWDecode",
	"A85": "ASCII85Decode",
	"AHx": "ASCIIHexDecode",
	"RL":  "RunLengthDecode",
	"DCT": "DCTDecode",
	"CCF": "CCITTFaxDecode",
}

// Decode applies filterNames in order.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []*raw.DictObj) ([]byte, error) {
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if full, ok := abbreviations[name]; ok {
			name = full
		}
		dec, ok := p.decoders[name]
		if !ok {
			return nil, fmt.Errorf("%s: %w", name, ErrUnsupported)
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, fmt.Errorf("%s: decompressed size exceeds limit", name)
		}
		data = out
	}
	return data, nil
}

// DecodeStream decodes the data of s according to its dictionary.
func (p *Pipeline) DecodeStream(ctx context.Context, s *raw.StreamObj) ([]byte, error) {
	names, params := ExtractFilters(s.Dict)
	if len(names) == 0 {
		return s.Data, nil
	}
	return p.Decode(ctx, s.Data, names, params)
}

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }
func NewFlateDecoder() Decoder    { return flateDecoder{} }

// Decode accepts zlib streams and, for damaged producers, raw deflate data.
func (flateDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var r io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err == nil {
		r = zr
	} else {
		r = flate.NewReader(bytes.NewReader(in))
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil && !(errors.Is(err, io.ErrUnexpectedEOF) && len(out) > 0) {
		return nil, err
	}
	return applyPredictor(out, params)
}

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }
func NewLZWDecoder() Decoder    { return lzwDecoder{} }

func (lzwDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return applyPredictor(out, params)
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func NewASCII85Decoder() Decoder    { return ascii85Decoder{} }

func (ascii85Decoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*4+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func NewASCIIHexDecoder() Decoder    { return asciiHexDecoder{} }

func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	digits := make([]byte, 0, len(in))
	for _, c := range in {
		if c == '>' {
			break
		}
		switch c {
		case ' ', '\t', '\r', '\n', '\f', 0:
			continue
		}
		digits = append(digits, c)
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(out, digits)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func NewRunLengthDecoder() Decoder    { return runLengthDecoder{} }

func (runLengthDecoder) Decode(ctx context.Context, in []byte, params *raw.DictObj) ([]byte, error) {
	var out []byte
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out, nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				return nil, errors.New("run length literal overruns input")
			}
			out = append(out, in[i:end]...)
			i = end
		default:
			if i >= len(in) {
				return nil, errors.New("run length repeat overruns input")
			}
			out = append(out, bytes.Repeat(in[i:i+1], 257-n)...)
			i++
		}
	}
	return out, nil
}
