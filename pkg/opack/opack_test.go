package opack

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestPackSmallInt(t *testing.T) {
	tests := []struct {
		value any
		want  []byte
	}{
		{0, []byte{0x08}},
		{1, []byte{0x09}},
		{0x27, []byte{0x2F}},
		{int64(12), []byte{0x14}},
		{uint(39), []byte{0x2F}},
	}

	for _, tt := range tests {
		got, err := Pack(tt.value)
		if err != nil {
			t.Fatalf("Pack(%v) error: %v", tt.value, err)
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("Pack(%v) = % X, want % X", tt.value, got, tt.want)
		}
	}
}

func TestPackSizedInt(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []byte
	}{
		{"auto 1-byte", 0x80, []byte{0x30, 0x80}},
		{"auto 2-byte", 0x1234, []byte{0x31, 0x34, 0x12}},
		{"auto 4-byte", 0x12345678, []byte{0x32, 0x78, 0x56, 0x34, 0x12}},
		{"auto 8-byte", uint64(0x0102030405060708), []byte{0x33, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}},
		{"carrier preserves width", UInt32(7), []byte{0x32, 0x07, 0x00, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pack(tt.value)
			if err != nil {
				t.Fatalf("Pack() error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Pack() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestPackNegativeInt(t *testing.T) {
	if _, err := Pack(-1); err != ErrUnsupportedType {
		t.Fatalf("Pack(-1) error = %v, want ErrUnsupportedType", err)
	}
}

func TestPackBackReference(t *testing.T) {
	got, err := Pack([]any{"foo", "bar", "foo", "bar"})
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	want := []byte{0xD4, 0x43, 0x66, 0x6F, 0x6F, 0x43, 0x62, 0x61, 0x72, 0xA0, 0xA1}
	if !bytes.Equal(got, want) {
		t.Fatalf("Pack() = % X, want % X", got, want)
	}
}

func TestPackBooleanNullNotIndexed(t *testing.T) {
	got, err := Pack([]any{true, true, nil, nil, false, false})
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}
	want := []byte{0xD6, 0x01, 0x01, 0x04, 0x04, 0x02, 0x02}
	if !bytes.Equal(got, want) {
		t.Fatalf("Pack() = % X, want % X", got, want)
	}
}

func TestRoundtrip(t *testing.T) {
	u := uuid.MustParse("12345678-1234-5678-1234-567812345678")

	tests := []struct {
		name  string
		value any
	}{
		{"null", nil},
		{"true", true},
		{"false", false},
		{"small int", int64(17)},
		{"sized uint8", UInt8(200)},
		{"sized uint16", UInt16(514)},
		{"sized uint32", UInt32(0xDEADBEEF)},
		{"sized uint64", UInt64(1 << 40)},
		{"float32", float32(1.5)},
		{"float64", 3.14159},
		{"short string", "hello"},
		{"boundary string", strings.Repeat("a", 32)},
		{"long string", strings.Repeat("b", 300)},
		{"short bytes", []byte{1, 2, 3}},
		{"long bytes", bytes.Repeat([]byte{0xAB}, 400)},
		{"uuid", u},
		{"absolute time", AbsoluteTime(0x5F5E100)},
		{"array", []any{int64(1), "two", []byte{3}}},
		{"endless array", []any{
			int64(0), int64(1), int64(2), int64(3), int64(4), int64(5), int64(6), int64(7),
			int64(8), int64(9), int64(10), int64(11), int64(12), int64(13), int64(14), int64(15),
		}},
		{"map", map[string]any{"_i": "_systemInfo", "_t": int64(2), "_x": UInt16(4660)}},
		{"nested", map[string]any{
			"_c": map[string]any{"_hBtS": int64(1), "_hidC": int64(12)},
			"_i": "_hidC",
		}},
		{"empty array", []any{}},
		{"empty map", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packed, err := Pack(tt.value)
			if err != nil {
				t.Fatalf("Pack() error: %v", err)
			}
			got, err := Unpack(packed)
			if err != nil {
				t.Fatalf("Unpack() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.value) {
				t.Errorf("Unpack(Pack(v)) = %#v, want %#v", got, tt.value)
			}
		})
	}
}

func TestRoundtripDeduplicated(t *testing.T) {
	// The same long string referenced from several container slots must
	// decode back to equal values.
	v := map[string]any{
		"a": "shared-identifier",
		"b": "shared-identifier",
		"c": []any{"shared-identifier", UInt16(999), UInt16(999)},
	}

	packed, err := Pack(v)
	if err != nil {
		t.Fatalf("Pack() error: %v", err)
	}

	got, err := Unpack(packed)
	if err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	if !reflect.DeepEqual(got, v) {
		t.Fatalf("Unpack(Pack(v)) = %#v, want %#v", got, v)
	}

	// Dedup must actually shrink the payload: three copies of the string
	// but only one literal emission.
	if n := bytes.Count(packed, []byte("shared-identifier")); n != 1 {
		t.Fatalf("literal emitted %d times, want 1", n)
	}
}

func TestUnpackEndlessContainers(t *testing.T) {
	// 0xDF items... 0x03
	data := []byte{0xDF, 0x08, 0x09, 0x03}
	got, err := Unpack(data)
	if err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	want := []any{int64(0), int64(1)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unpack() = %#v, want %#v", got, want)
	}

	// 0xEF "a" 1 0x03
	data = []byte{0xEF, 0x41, 'a', 0x09, 0x03}
	got, err = Unpack(data)
	if err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	wantMap := map[string]any{"a": int64(1)}
	if !reflect.DeepEqual(got, wantMap) {
		t.Fatalf("Unpack() = %#v, want %#v", got, wantMap)
	}
}

func TestUnpackErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty input", nil, ErrTruncated},
		{"unknown tag", []byte{0x07}, ErrUnknownTag},
		{"reserved tag", []byte{0x34}, ErrUnknownTag},
		{"truncated sized int", []byte{0x31, 0x01}, ErrTruncated},
		{"truncated string", []byte{0x43, 'a'}, ErrTruncated},
		{"undefined backref", []byte{0xA0}, ErrBadReference},
		{"unterminated endless array", []byte{0xDF, 0x08}, ErrUnterminated},
		{"trailing data", []byte{0x08, 0x08}, ErrTrailingData},
		{"non-string map key", []byte{0xE1, 0x08, 0x08}, ErrInvalidMapKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unpack(tt.data); err != tt.want {
				t.Fatalf("Unpack() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestUnpackBackReferenceTable(t *testing.T) {
	// Two distinct multi-byte scalars, then short refs to each:
	// table index 0 is the string, index 1 the sized int.
	data := []byte{
		0xD4,
		0x43, 'f', 'o', 'o', // index 0
		0x30, 0xFF, // index 1
		0xA0,
		0xA1,
	}
	got, err := Unpack(data)
	if err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	want := []any{"foo", UInt8(0xFF), "foo", UInt8(0xFF)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unpack() = %#v, want %#v", got, want)
	}
}

func TestUnpackCompositesNotIndexed(t *testing.T) {
	// An inner array must not consume a table slot: after [ "ab" ] the
	// first back-reference index still resolves to "ab".
	data := []byte{
		0xD3,
		0xD1, 0x42, 'a', 'b', // inner array, "ab" -> index 0
		0xA0,       // ref to "ab"
		0x42, 'a', 'b', // second literal would be index 1; encoder would ref it
	}
	got, err := Unpack(data)
	if err != nil {
		t.Fatalf("Unpack() error: %v", err)
	}
	want := []any{[]any{"ab"}, "ab", "ab"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unpack() = %#v, want %#v", got, want)
	}
}
