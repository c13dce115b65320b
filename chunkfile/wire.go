// Package chunkfile serializes compiled chunks to the .loxc container
// format so compilation and execution can run as separate steps.
package chunkfile

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/lox-lang/lox/vm"
)

// Wire format: a fixed header (magic, version, build ID) followed by the
// CBOR body. Canonical encoding keeps the body deterministic for a given
// chunk, so files diff and hash cleanly.
const (
	Magic         = "LOXC"
	FormatVersion = 1
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("chunkfile: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// wireValue is the serialized form of a vm.Value.
type wireValue struct {
	Kind uint8   `cbor:"k"`
	Num  float64 `cbor:"n,omitempty"`
	Str  string  `cbor:"s,omitempty"`
}

// wireChunk is the serialized form of a vm.Chunk.
type wireChunk struct {
	Code      []byte      `cbor:"code"`
	Constants []wireValue `cbor:"constants"`
	Lines     []int       `cbor:"lines"`
}

// File is a compiled chunk together with its container metadata.
type File struct {
	Version int
	BuildID uuid.UUID
	Chunk   *vm.Chunk
}

// New wraps a chunk in a container with a fresh build ID.
func New(c *vm.Chunk) *File {
	return &File{
		Version: FormatVersion,
		BuildID: uuid.New(),
		Chunk:   c,
	}
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func encodeValue(v vm.Value) (wireValue, error) {
	switch v.Kind() {
	case vm.KindNil:
		return wireValue{Kind: uint8(vm.KindNil)}, nil
	case vm.KindBool:
		w := wireValue{Kind: uint8(vm.KindBool)}
		if v.Bool() {
			w.Num = 1
		}
		return w, nil
	case vm.KindNumber:
		return wireValue{Kind: uint8(vm.KindNumber), Num: v.Number()}, nil
	case vm.KindString:
		return wireValue{Kind: uint8(vm.KindString), Str: v.StringText()}, nil
	default:
		return wireValue{}, fmt.Errorf("chunkfile: cannot encode value kind %v", v.Kind())
	}
}

func decodeValue(w wireValue) (vm.Value, error) {
	switch vm.Kind(w.Kind) {
	case vm.KindNil:
		return vm.NilValue(), nil
	case vm.KindBool:
		return vm.BoolValue(w.Num != 0), nil
	case vm.KindNumber:
		return vm.NumberValue(w.Num), nil
	case vm.KindString:
		return vm.StringValue(w.Str), nil
	default:
		return vm.Value{}, fmt.Errorf("chunkfile: invalid value kind %d", w.Kind)
	}
}

// Marshal serializes a File to .loxc bytes.
func Marshal(f *File) ([]byte, error) {
	wc := wireChunk{
		Code:      f.Chunk.Code,
		Constants: make([]wireValue, len(f.Chunk.Constants)),
		Lines:     f.Chunk.LineTable(),
	}
	for i, v := range f.Chunk.Constants {
		w, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		wc.Constants[i] = w
	}

	body, err := cborEncMode.Marshal(&wc)
	if err != nil {
		return nil, fmt.Errorf("chunkfile: marshal chunk: %w", err)
	}

	out := make([]byte, 0, len(Magic)+2+16+len(body))
	out = append(out, Magic...)
	out = append(out, byte(f.Version), byte(f.Version>>8))
	out = append(out, f.BuildID[:]...)
	out = append(out, body...)
	return out, nil
}

// Unmarshal parses .loxc bytes back into a File. Unknown magic, an
// unsupported version or a malformed body are errors, never panics.
func Unmarshal(data []byte) (*File, error) {
	headerLen := len(Magic) + 2 + 16
	if len(data) < headerLen {
		return nil, fmt.Errorf("chunkfile: truncated header (%d bytes)", len(data))
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, fmt.Errorf("chunkfile: bad magic %q", data[:len(Magic)])
	}

	version := int(data[4]) | int(data[5])<<8
	if version != FormatVersion {
		return nil, fmt.Errorf("chunkfile: unsupported format version %d", version)
	}

	var buildID uuid.UUID
	copy(buildID[:], data[6:22])

	var wc wireChunk
	if err := cbor.Unmarshal(data[headerLen:], &wc); err != nil {
		return nil, fmt.Errorf("chunkfile: unmarshal chunk: %w", err)
	}

	chunk := vm.NewChunk()
	chunk.Code = wc.Code
	chunk.SetLineTable(wc.Lines)
	chunk.Constants = make([]vm.Value, len(wc.Constants))
	for i, w := range wc.Constants {
		v, err := decodeValue(w)
		if err != nil {
			return nil, err
		}
		chunk.Constants[i] = v
	}

	return &File{Version: version, BuildID: buildID, Chunk: chunk}, nil
}
