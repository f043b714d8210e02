package bytecode

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// EnvelopeVersion is the current binary envelope format version.
// Increment when making incompatible changes to the format.
const EnvelopeVersion uint16 = 1

// Magic bytes for binary envelopes: "RPBC" (RiPple ByteCode).
var EnvelopeMagic = []byte{'R', 'P', 'B', 'C'}

// EnvelopeFlags carries envelope-level options.
type EnvelopeFlags uint16

const (
	// EnvelopeFlagAST indicates a debug AST sidecar trails the tables.
	EnvelopeFlagAST EnvelopeFlags = 1 << 0
)

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{
		IntDec:         cbor.IntDecConvertSigned,
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// Marshal serializes packed tables into a self-contained binary envelope.
// Each table is length-prefixed with unsigned varints; primitives and the
// optional debug AST are encoded as canonical CBOR so that output is
// bit-identical across runs.
//
// Format:
//
//	[magic:4] [version:2] [flags:2]
//	[primitives: uvarint count, per value uvarint len + CBOR]
//	[getters: ref-row table]
//	[topLevelNames: uvarint count + svarints]
//	[topLevelProjections: uvarint count + uvarints]
//	[metaData: uint32-row table]
//	[paths: ref-row table]
//	[setters: ref-row table]
//	[sources: uvarint count, per string uvarint len + bytes]
//	[ast: uvarint len + CBOR] (if EnvelopeFlagAST)
func Marshal(pd *ProjectionData, ast any) ([]byte, error) {
	buf := make([]byte, 0, 1024)
	buf = append(buf, EnvelopeMagic...)
	buf = binary.BigEndian.AppendUint16(buf, EnvelopeVersion)

	flags := EnvelopeFlags(0)
	if ast != nil {
		flags |= EnvelopeFlagAST
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(flags))

	buf = binary.AppendUvarint(buf, uint64(len(pd.Primitives)))
	for i, v := range pd.Primitives {
		blob, err := cborEncMode.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("bytecode: marshal primitive %d: %w", i, err)
		}
		buf = binary.AppendUvarint(buf, uint64(len(blob)))
		buf = append(buf, blob...)
	}

	buf = appendRefTable(buf, pd.Getters)

	buf = binary.AppendUvarint(buf, uint64(len(pd.TopLevelNames)))
	for _, n := range pd.TopLevelNames {
		buf = binary.AppendVarint(buf, int64(n))
	}
	buf = binary.AppendUvarint(buf, uint64(len(pd.TopLevelProjections)))
	for _, r := range pd.TopLevelProjections {
		buf = binary.AppendUvarint(buf, uint64(r))
	}

	buf = binary.AppendUvarint(buf, uint64(len(pd.MetaData)))
	for _, row := range pd.MetaData {
		buf = binary.AppendUvarint(buf, uint64(len(row)))
		for _, v := range row {
			buf = binary.AppendUvarint(buf, uint64(v))
		}
	}

	buf = appendRefTable(buf, pd.Paths)
	buf = appendRefTable(buf, pd.Setters)

	buf = binary.AppendUvarint(buf, uint64(len(pd.Sources)))
	for _, s := range pd.Sources {
		buf = binary.AppendUvarint(buf, uint64(len(s)))
		buf = append(buf, s...)
	}

	if ast != nil {
		blob, err := cborEncMode.Marshal(ast)
		if err != nil {
			return nil, fmt.Errorf("bytecode: marshal debug AST: %w", err)
		}
		buf = binary.AppendUvarint(buf, uint64(len(blob)))
		buf = append(buf, blob...)
	}

	return buf, nil
}

func appendRefTable(buf []byte, rows [][]Ref) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(rows)))
	for _, row := range rows {
		buf = binary.AppendUvarint(buf, uint64(len(row)))
		for _, r := range row {
			buf = binary.AppendUvarint(buf, uint64(r))
		}
	}
	return buf
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) uvarint(what string) (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("bytecode: unexpected end of envelope reading %s at pos %d", what, r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *reader) varint(what string) (int64, error) {
	v, n := binary.Varint(r.data[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("bytecode: unexpected end of envelope reading %s at pos %d", what, r.pos)
	}
	r.pos += n
	return v, nil
}

func (r *reader) bytes(n uint64, what string) ([]byte, error) {
	if uint64(len(r.data)-r.pos) < n {
		return nil, fmt.Errorf("bytecode: unexpected end of envelope reading %s: need %d bytes at pos %d", what, n, r.pos)
	}
	out := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *reader) refTable(what string) ([][]Ref, error) {
	count, err := r.uvarint(what + " count")
	if err != nil {
		return nil, err
	}
	rows := make([][]Ref, count)
	for i := range rows {
		length, err := r.uvarint(what + " row length")
		if err != nil {
			return nil, err
		}
		row := make([]Ref, length)
		for j := range row {
			v, err := r.uvarint(what + " ref")
			if err != nil {
				return nil, err
			}
			row[j] = Ref(v)
		}
		rows[i] = row
	}
	return rows, nil
}

// Unmarshal re-expands a binary envelope into in-memory tables plus the
// debug AST sidecar when present.
func Unmarshal(data []byte) (*ProjectionData, any, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("bytecode: envelope too short: need at least 8 bytes, got %d", len(data))
	}
	if string(data[0:4]) != string(EnvelopeMagic) {
		return nil, nil, fmt.Errorf("bytecode: invalid envelope magic: expected %q, got %q", EnvelopeMagic, data[0:4])
	}
	version := binary.BigEndian.Uint16(data[4:6])
	if version > EnvelopeVersion {
		return nil, nil, fmt.Errorf("bytecode: envelope version %d is newer than supported version %d", version, EnvelopeVersion)
	}
	flags := EnvelopeFlags(binary.BigEndian.Uint16(data[6:8]))

	r := &reader{data: data, pos: 8}
	pd := &ProjectionData{}

	count, err := r.uvarint("primitive count")
	if err != nil {
		return nil, nil, err
	}
	pd.Primitives = make([]any, count)
	for i := range pd.Primitives {
		length, err := r.uvarint("primitive length")
		if err != nil {
			return nil, nil, err
		}
		blob, err := r.bytes(length, "primitive")
		if err != nil {
			return nil, nil, err
		}
		var v any
		if err := cborDecMode.Unmarshal(blob, &v); err != nil {
			return nil, nil, fmt.Errorf("bytecode: unmarshal primitive %d: %w", i, err)
		}
		pd.Primitives[i] = v
	}

	if pd.Getters, err = r.refTable("getters"); err != nil {
		return nil, nil, err
	}

	count, err = r.uvarint("topLevelNames count")
	if err != nil {
		return nil, nil, err
	}
	pd.TopLevelNames = make([]int32, count)
	for i := range pd.TopLevelNames {
		v, err := r.varint("topLevelName")
		if err != nil {
			return nil, nil, err
		}
		pd.TopLevelNames[i] = int32(v)
	}

	count, err = r.uvarint("topLevelProjections count")
	if err != nil {
		return nil, nil, err
	}
	pd.TopLevelProjections = make([]Ref, count)
	for i := range pd.TopLevelProjections {
		v, err := r.uvarint("topLevelProjection")
		if err != nil {
			return nil, nil, err
		}
		pd.TopLevelProjections[i] = Ref(v)
	}

	count, err = r.uvarint("metaData count")
	if err != nil {
		return nil, nil, err
	}
	pd.MetaData = make([][]uint32, count)
	for i := range pd.MetaData {
		length, err := r.uvarint("metaData row length")
		if err != nil {
			return nil, nil, err
		}
		row := make([]uint32, length)
		for j := range row {
			v, err := r.uvarint("metaData entry")
			if err != nil {
				return nil, nil, err
			}
			row[j] = uint32(v)
		}
		pd.MetaData[i] = row
	}

	if pd.Paths, err = r.refTable("paths"); err != nil {
		return nil, nil, err
	}
	if pd.Setters, err = r.refTable("setters"); err != nil {
		return nil, nil, err
	}

	count, err = r.uvarint("sources count")
	if err != nil {
		return nil, nil, err
	}
	pd.Sources = make([]string, count)
	for i := range pd.Sources {
		length, err := r.uvarint("source length")
		if err != nil {
			return nil, nil, err
		}
		raw, err := r.bytes(length, "source")
		if err != nil {
			return nil, nil, err
		}
		pd.Sources[i] = string(raw)
	}

	var ast any
	if flags&EnvelopeFlagAST != 0 {
		length, err := r.uvarint("ast length")
		if err != nil {
			return nil, nil, err
		}
		blob, err := r.bytes(length, "ast")
		if err != nil {
			return nil, nil, err
		}
		if err := cborDecMode.Unmarshal(blob, &ast); err != nil {
			return nil, nil, fmt.Errorf("bytecode: unmarshal debug AST: %w", err)
		}
	}

	return pd, ast, nil
}
