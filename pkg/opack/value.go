// Package opack implements Apple's OPACK tagged binary serialization as
// used by the Companion protocol.
//
// Values are modeled as plain Go values:
//
//	nil                    null
//	bool                   true / false
//	int, int64, uint, ...  integer (smallest encoding chosen)
//	UInt8 ... UInt64       integer with explicit width
//	AbsoluteTime           absolute time (tag 0x06)
//	float32, float64       IEEE 754
//	string                 UTF-8 string
//	[]byte                 byte string
//	uuid.UUID              16-byte UUID
//	[]any                  array
//	map[string]any         dictionary
//
// The encoder deduplicates repeated values through back-references:
// any value whose encoding is longer than one byte is remembered, and a
// later byte-identical encoding is replaced by a reference to the first
// occurrence. Arrays and maps are never referenced.
package opack

// Sized integer carriers. The decoder produces these for the sized
// integer forms (tags 0x30-0x33) so that re-encoding preserves the wire
// width. Small integers (0-39) decode to int64; a plain Go integer of
// 40 or more is packed in the smallest sized form and therefore decodes
// to the matching carrier.
type (
	// UInt8 is an integer encoded as a 1-byte sized integer.
	UInt8 uint8
	// UInt16 is an integer encoded as a 2-byte sized integer.
	UInt16 uint16
	// UInt32 is an integer encoded as a 4-byte sized integer.
	UInt32 uint32
	// UInt64 is an integer encoded as an 8-byte sized integer.
	UInt64 uint64
)

// AbsoluteTime is a timestamp value (tag 0x06). The payload is carried
// as an opaque 8-byte integer.
type AbsoluteTime uint64

// Tag ranges of the OPACK wire format.
const (
	tagTrue       = 0x01
	tagFalse      = 0x02
	tagTerminator = 0x03
	tagNull       = 0x04
	tagUUID       = 0x05
	tagTime       = 0x06

	tagSmallIntBase = 0x08 // 0x08-0x2F encode 0-39
	smallIntMax     = 0x27

	tagUInt8  = 0x30
	tagUInt16 = 0x31
	tagUInt32 = 0x32
	tagUInt64 = 0x33

	tagFloat32 = 0x35
	tagFloat64 = 0x36

	tagShortString = 0x40 // 0x40-0x60, length = tag - 0x40
	tagLongString  = 0x61 // 0x61-0x64, length width 1/2/3/4

	tagShortBytes = 0x70 // 0x70-0x90, length = tag - 0x70
	tagLongBytes  = 0x91 // 0x91-0x94, length width 1/2/4/8

	tagShortRef = 0xA0 // 0xA0-0xC0, index = tag - 0xA0
	tagLongRef  = 0xC1 // 0xC1-0xC4, index width 1/2/3/4

	tagArray        = 0xD0 // 0xD0-0xDE, count = tag & 0x0F
	tagEndlessArray = 0xDF

	tagMap        = 0xE0 // 0xE0-0xEE, count = tag & 0x0F
	tagEndlessMap = 0xEF

	shortLenMax  = 0x20 // longest short string/bytes form
	shortRefMax  = 0x20 // largest short back-reference index
	shortItemMax = 0x0E // largest counted array/map size
)
