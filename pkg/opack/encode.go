package opack

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/google/uuid"
)

// Pack serializes a value tree into OPACK bytes.
//
// Map keys are emitted in sorted order so that encoding is
// deterministic. Repeated scalar values are collapsed into
// back-references per the dedup rule described in the package comment.
func Pack(v any) ([]byte, error) {
	e := &encoder{index: make(map[string]int)}
	if err := e.encode(v); err != nil {
		return nil, err
	}
	return e.out, nil
}

type encoder struct {
	out []byte

	// Dedup table: encoded bytes of previously emitted scalar values, in
	// emission order, with an index for constant-time lookup.
	table []string
	index map[string]int
}

func (e *encoder) encode(v any) error {
	switch val := v.(type) {
	case nil:
		e.out = append(e.out, tagNull)
	case bool:
		if val {
			e.out = append(e.out, tagTrue)
		} else {
			e.out = append(e.out, tagFalse)
		}

	case int:
		return e.encodeInt(int64(val))
	case int8:
		return e.encodeInt(int64(val))
	case int16:
		return e.encodeInt(int64(val))
	case int32:
		return e.encodeInt(int64(val))
	case int64:
		return e.encodeInt(val)
	case uint:
		return e.encodeUint(uint64(val))
	case uint8:
		return e.encodeUint(uint64(val))
	case uint16:
		return e.encodeUint(uint64(val))
	case uint32:
		return e.encodeUint(uint64(val))
	case uint64:
		return e.encodeUint(val)

	case UInt8:
		return e.emitScalar(sized(tagUInt8, uint64(val), 1))
	case UInt16:
		return e.emitScalar(sized(tagUInt16, uint64(val), 2))
	case UInt32:
		return e.emitScalar(sized(tagUInt32, uint64(val), 4))
	case UInt64:
		return e.emitScalar(sized(tagUInt64, uint64(val), 8))

	case AbsoluteTime:
		return e.emitScalar(sized(tagTime, uint64(val), 8))

	case float32:
		enc := make([]byte, 5)
		enc[0] = tagFloat32
		binary.LittleEndian.PutUint32(enc[1:], math.Float32bits(val))
		return e.emitScalar(enc)
	case float64:
		enc := make([]byte, 9)
		enc[0] = tagFloat64
		binary.LittleEndian.PutUint64(enc[1:], math.Float64bits(val))
		return e.emitScalar(enc)

	case string:
		return e.emitScalar(encodeString(val))
	case []byte:
		return e.emitScalar(encodeBytes(val))
	case uuid.UUID:
		enc := make([]byte, 17)
		enc[0] = tagUUID
		copy(enc[1:], val[:])
		return e.emitScalar(enc)

	case []any:
		return e.encodeArray(val)
	case map[string]any:
		return e.encodeMap(val)

	default:
		return ErrUnsupportedType
	}
	return nil
}

// encodeInt picks the shortest integer form. Negative values have no
// OPACK representation.
func (e *encoder) encodeInt(v int64) error {
	if v < 0 {
		return ErrUnsupportedType
	}
	return e.encodeUint(uint64(v))
}

func (e *encoder) encodeUint(v uint64) error {
	if v <= smallIntMax {
		e.out = append(e.out, byte(tagSmallIntBase+v))
		return nil
	}
	switch {
	case v <= math.MaxUint8:
		return e.emitScalar(sized(tagUInt8, v, 1))
	case v <= math.MaxUint16:
		return e.emitScalar(sized(tagUInt16, v, 2))
	case v <= math.MaxUint32:
		return e.emitScalar(sized(tagUInt32, v, 4))
	default:
		return e.emitScalar(sized(tagUInt64, v, 8))
	}
}

func (e *encoder) encodeArray(items []any) error {
	endless := len(items) > shortItemMax
	if endless {
		e.out = append(e.out, tagEndlessArray)
	} else {
		e.out = append(e.out, byte(tagArray+len(items)))
	}
	for _, item := range items {
		if err := e.encode(item); err != nil {
			return err
		}
	}
	if endless {
		e.out = append(e.out, tagTerminator)
	}
	return nil
}

func (e *encoder) encodeMap(m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	endless := len(m) > shortItemMax
	if endless {
		e.out = append(e.out, tagEndlessMap)
	} else {
		e.out = append(e.out, byte(tagMap+len(m)))
	}
	for _, k := range keys {
		if err := e.encode(k); err != nil {
			return err
		}
		if err := e.encode(m[k]); err != nil {
			return err
		}
	}
	if endless {
		e.out = append(e.out, tagTerminator)
	}
	return nil
}

// emitScalar writes a pre-encoded scalar value, replacing it with a
// back-reference if a byte-identical encoding was emitted before.
// One-byte encodings are never indexed.
func (e *encoder) emitScalar(enc []byte) error {
	if len(enc) <= 1 {
		e.out = append(e.out, enc...)
		return nil
	}
	if idx, ok := e.index[string(enc)]; ok {
		e.writeRef(idx)
		return nil
	}
	e.index[string(enc)] = len(e.table)
	e.table = append(e.table, string(enc))
	e.out = append(e.out, enc...)
	return nil
}

// writeRef emits the shortest back-reference form that fits idx.
func (e *encoder) writeRef(idx int) {
	if idx <= shortRefMax {
		e.out = append(e.out, byte(tagShortRef+idx))
		return
	}
	switch {
	case idx <= math.MaxUint8:
		e.out = append(e.out, tagLongRef, byte(idx))
	case idx <= math.MaxUint16:
		e.out = append(e.out, tagLongRef+1, byte(idx), byte(idx>>8))
	case idx <= 0xFFFFFF:
		e.out = append(e.out, tagLongRef+2, byte(idx), byte(idx>>8), byte(idx>>16))
	default:
		e.out = append(e.out, tagLongRef+3, byte(idx), byte(idx>>8), byte(idx>>16), byte(idx>>24))
	}
}

func sized(tag byte, v uint64, width int) []byte {
	enc := make([]byte, 1+width)
	enc[0] = tag
	for i := 0; i < width; i++ {
		enc[1+i] = byte(v >> (8 * i))
	}
	return enc
}

func encodeString(s string) []byte {
	n := len(s)
	var enc []byte
	switch {
	case n <= shortLenMax:
		enc = append(enc, byte(tagShortString+n))
	case n <= math.MaxUint8:
		enc = append(enc, tagLongString, byte(n))
	case n <= math.MaxUint16:
		enc = append(enc, tagLongString+1, byte(n), byte(n>>8))
	case n <= 0xFFFFFF:
		enc = append(enc, tagLongString+2, byte(n), byte(n>>8), byte(n>>16))
	default:
		enc = append(enc, tagLongString+3, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	}
	return append(enc, s...)
}

func encodeBytes(b []byte) []byte {
	n := len(b)
	var enc []byte
	switch {
	case n <= shortLenMax:
		enc = append(enc, byte(tagShortBytes+n))
	case n <= math.MaxUint8:
		enc = append(enc, tagLongBytes, byte(n))
	case n <= math.MaxUint16:
		enc = append(enc, tagLongBytes+1, byte(n), byte(n>>8))
	case n <= math.MaxUint32:
		enc = append(enc, tagLongBytes+2, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	default:
		enc = append(enc, tagLongBytes+3,
			byte(n), byte(n>>8), byte(n>>16), byte(n>>24),
			byte(uint64(n)>>32), byte(uint64(n)>>40), byte(uint64(n)>>48), byte(uint64(n)>>56))
	}
	return append(enc, b...)
}
