package opack

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
)

// Unpack parses a single OPACK value from data. Trailing bytes after
// the top-level value are an error.
func Unpack(data []byte) (any, error) {
	v, rest, err := UnpackPartial(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, ErrTrailingData
	}
	return v, nil
}

// UnpackPartial parses a single OPACK value and returns the remaining
// bytes.
func UnpackPartial(data []byte) (any, []byte, error) {
	d := &decoder{data: data}
	v, err := d.decode()
	if err != nil {
		return nil, nil, err
	}
	return v, d.data[d.pos:], nil
}

type decoder struct {
	data []byte
	pos  int

	// Dedup table: previously decoded scalar values, in decode order.
	table []any
}

func (d *decoder) decode() (any, error) {
	start := d.pos
	tag, err := d.next()
	if err != nil {
		return nil, err
	}

	var v any
	indexable := true

	switch {
	case tag == tagTrue:
		v, indexable = true, false
	case tag == tagFalse:
		v, indexable = false, false
	case tag == tagNull:
		v, indexable = nil, false

	case tag == tagUUID:
		raw, err := d.take(16)
		if err != nil {
			return nil, err
		}
		var u uuid.UUID
		copy(u[:], raw)
		v = u

	case tag == tagTime:
		raw, err := d.take(8)
		if err != nil {
			return nil, err
		}
		v = AbsoluteTime(binary.LittleEndian.Uint64(raw))

	case tag >= tagSmallIntBase && tag <= tagSmallIntBase+smallIntMax:
		v, indexable = int64(tag-tagSmallIntBase), false

	case tag == tagUInt8:
		n, err := d.uintLE(1)
		if err != nil {
			return nil, err
		}
		v = UInt8(n)
	case tag == tagUInt16:
		n, err := d.uintLE(2)
		if err != nil {
			return nil, err
		}
		v = UInt16(n)
	case tag == tagUInt32:
		n, err := d.uintLE(4)
		if err != nil {
			return nil, err
		}
		v = UInt32(n)
	case tag == tagUInt64:
		n, err := d.uintLE(8)
		if err != nil {
			return nil, err
		}
		v = UInt64(n)

	case tag == tagFloat32:
		raw, err := d.take(4)
		if err != nil {
			return nil, err
		}
		v = math.Float32frombits(binary.LittleEndian.Uint32(raw))
	case tag == tagFloat64:
		raw, err := d.take(8)
		if err != nil {
			return nil, err
		}
		v = math.Float64frombits(binary.LittleEndian.Uint64(raw))

	case tag >= tagShortString && tag <= tagShortString+shortLenMax:
		raw, err := d.take(int(tag - tagShortString))
		if err != nil {
			return nil, err
		}
		v = string(raw)
	case tag >= tagLongString && tag <= tagLongString+3:
		n, err := d.uintLE(int(tag-tagLongString) + 1)
		if err != nil {
			return nil, err
		}
		raw, err := d.take(int(n))
		if err != nil {
			return nil, err
		}
		v = string(raw)

	case tag >= tagShortBytes && tag <= tagShortBytes+shortLenMax:
		raw, err := d.take(int(tag - tagShortBytes))
		if err != nil {
			return nil, err
		}
		v = cloneBytes(raw)
	case tag >= tagLongBytes && tag <= tagLongBytes+3:
		// Long byte strings use length widths 1, 2, 4 and 8.
		width := 1 << (tag - tagLongBytes)
		n, err := d.uintLE(width)
		if err != nil {
			return nil, err
		}
		raw, err := d.take(int(n))
		if err != nil {
			return nil, err
		}
		v = cloneBytes(raw)

	case tag >= tagShortRef && tag <= tagShortRef+shortRefMax:
		return d.resolveRef(int(tag - tagShortRef))
	case tag >= tagLongRef && tag <= tagLongRef+3:
		n, err := d.uintLE(int(tag-tagLongRef) + 1)
		if err != nil {
			return nil, err
		}
		return d.resolveRef(int(n))

	case tag >= tagArray && tag <= tagEndlessArray:
		return d.decodeArray(int(tag & 0x0F))
	case tag >= tagMap && tag <= tagEndlessMap:
		return d.decodeMap(int(tag & 0x0F))

	default:
		return nil, ErrUnknownTag
	}

	// Scalars whose encoding is longer than one byte join the
	// back-reference table.
	if indexable && d.pos-start > 1 {
		d.table = append(d.table, v)
	}
	return v, nil
}

// decodeArray reads count items, or items until the terminator when the
// count field is 0x0F.
func (d *decoder) decodeArray(count int) (any, error) {
	items := []any{}
	if count < 0x0F {
		for i := 0; i < count; i++ {
			item, err := d.decode()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil
	}
	for {
		done, err := d.consumeTerminator()
		if err != nil {
			return nil, err
		}
		if done {
			return items, nil
		}
		item, err := d.decode()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func (d *decoder) decodeMap(count int) (any, error) {
	m := make(map[string]any)
	pair := func() error {
		key, err := d.decode()
		if err != nil {
			return err
		}
		ks, ok := key.(string)
		if !ok {
			return ErrInvalidMapKey
		}
		val, err := d.decode()
		if err != nil {
			return err
		}
		m[ks] = val
		return nil
	}

	if count < 0x0F {
		for i := 0; i < count; i++ {
			if err := pair(); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
	for {
		done, err := d.consumeTerminator()
		if err != nil {
			return nil, err
		}
		if done {
			return m, nil
		}
		if err := pair(); err != nil {
			return nil, err
		}
	}
}

// consumeTerminator reports whether the next byte is the endless
// container terminator, consuming it if so.
func (d *decoder) consumeTerminator() (bool, error) {
	if d.pos >= len(d.data) {
		return false, ErrUnterminated
	}
	if d.data[d.pos] == tagTerminator {
		d.pos++
		return true, nil
	}
	return false, nil
}

func (d *decoder) resolveRef(idx int) (any, error) {
	if idx >= len(d.table) {
		return nil, ErrBadReference
	}
	return d.table[idx], nil
}

func (d *decoder) next() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, ErrTruncated
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.data) {
		return nil, ErrTruncated
	}
	raw := d.data[d.pos : d.pos+n]
	d.pos += n
	return raw, nil
}

func (d *decoder) uintLE(width int) (uint64, error) {
	raw, err := d.take(width)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(raw[i]) << (8 * i)
	}
	return v, nil
}

func cloneBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
