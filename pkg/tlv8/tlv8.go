// Package tlv8 implements the Type-Length-Value encoding used by the
// HomeKit Accessory Protocol pairing sub-protocol.
//
// A record is a sequence of (tag:1, length:1, value:length) triples.
// Values longer than 255 bytes are split across consecutive triples
// sharing the same tag; the reader concatenates them back into a single
// logical value.
package tlv8

// maxChunk is the largest value a single triple can carry.
const maxChunk = 255

// Records is an ordered multimap of tag to value. Iteration order is
// tag-insertion order.
type Records struct {
	tags   []uint8
	values map[uint8][]byte
}

// New returns an empty record set.
func New() *Records {
	return &Records{values: make(map[uint8][]byte)}
}

// Append appends value to the logical value stored under tag.
// Appending to a tag that is already present extends its value and does
// not change iteration order.
func (r *Records) Append(tag uint8, value []byte) {
	if _, ok := r.values[tag]; !ok {
		r.tags = append(r.tags, tag)
	}
	r.values[tag] = append(r.values[tag], value...)
}

// Get returns the concatenated value stored under tag.
func (r *Records) Get(tag uint8) ([]byte, error) {
	v, ok := r.values[tag]
	if !ok {
		return nil, ErrTagNotFound
	}
	return v, nil
}

// Has reports whether tag is present.
func (r *Records) Has(tag uint8) bool {
	_, ok := r.values[tag]
	return ok
}

// Tags returns the tags in insertion order.
func (r *Records) Tags() []uint8 {
	out := make([]uint8, len(r.tags))
	copy(out, r.tags)
	return out
}

// Len returns the number of distinct tags.
func (r *Records) Len() int {
	return len(r.tags)
}

// Encode serializes the records. Values longer than 255 bytes are
// emitted as consecutive 255-byte chunks under the same tag, with a
// trailing shorter chunk for the remainder. An empty value emits exactly
// one (tag, 0) triple.
func (r *Records) Encode() []byte {
	var out []byte
	for _, tag := range r.tags {
		v := r.values[tag]
		if len(v) == 0 {
			out = append(out, tag, 0)
			continue
		}
		for len(v) > 0 {
			n := len(v)
			if n > maxChunk {
				n = maxChunk
			}
			out = append(out, tag, uint8(n))
			out = append(out, v[:n]...)
			v = v[n:]
		}
	}
	return out
}

// Decode parses data into a record set, concatenating consecutive
// triples that share a tag. A triple that extends past the end of the
// input is a fatal parse error.
func Decode(data []byte) (*Records, error) {
	r := New()
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, ErrTruncated
		}
		tag, length := data[0], int(data[1])
		if len(data) < 2+length {
			return nil, ErrTruncated
		}
		r.Append(tag, data[2:2+length])
		data = data[2+length:]
	}
	return r, nil
}
