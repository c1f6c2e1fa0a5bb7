package frame

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

func TestHeaderRoundtrip(t *testing.T) {
	tests := []struct {
		name   string
		typ    Type
		length int
		want   []byte
	}{
		{"noop empty", TypeNoOp, 0, []byte{0x00, 0x00, 0x00, 0x00}},
		{"opack small", TypeEOPACK, 0x14, []byte{0x08, 0x00, 0x00, 0x14}},
		{"big-endian length", TypePSNext, 0x012345, []byte{0x04, 0x01, 0x23, 0x45}},
		{"max length", TypeUOPACK, MaxPayload, []byte{0x07, 0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeHeader(tt.typ, tt.length)
			if err != nil {
				t.Fatalf("EncodeHeader() error: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("EncodeHeader() = % X, want % X", got, tt.want)
			}

			typ, length, err := DecodeHeader(got)
			if err != nil {
				t.Fatalf("DecodeHeader() error: %v", err)
			}
			if typ != tt.typ || length != tt.length {
				t.Fatalf("DecodeHeader() = (%v, %d), want (%v, %d)", typ, length, tt.typ, tt.length)
			}
		})
	}
}

func TestEncodeHeaderTooLarge(t *testing.T) {
	if _, err := EncodeHeader(TypeEOPACK, MaxPayload+1); err != ErrPayloadTooLarge {
		t.Fatalf("EncodeHeader() error = %v, want ErrPayloadTooLarge", err)
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	if _, _, err := DecodeHeader([]byte{0x08, 0x00}); err != ErrShortHeader {
		t.Fatalf("DecodeHeader() error = %v, want ErrShortHeader", err)
	}
}

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{TypeNoOp, "NoOp"},
		{TypePSStart, "PS_Start"},
		{TypePVNext, "PV_Next"},
		{TypeEOPACK, "E_OPACK"},
		{Type(0x42), "Type(0x42)"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("Type(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestStreamRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)

	payloads := [][]byte{
		[]byte("first"),
		nil,
		bytes.Repeat([]byte{0xAA}, 1000),
	}
	types := []Type{TypeEOPACK, TypeNoOp, TypePSNext}

	for i := range payloads {
		if err := w.WriteFrame(types[i], payloads[i]); err != nil {
			t.Fatalf("WriteFrame() error: %v", err)
		}
	}

	r := NewStreamReader(&buf)
	for i := range payloads {
		f, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() error: %v", err)
		}
		if f.Type != types[i] {
			t.Fatalf("frame %d type = %v, want %v", i, f.Type, types[i])
		}
		want := payloads[i]
		if want == nil {
			want = []byte{}
		}
		if !bytes.Equal(f.Payload, want) {
			t.Fatalf("frame %d payload mismatch", i)
		}
	}
}

func TestStreamReaderHeaderIsAAD(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)
	if err := w.WriteFrame(TypeEOPACK, []byte("data")); err != nil {
		t.Fatalf("WriteFrame() error: %v", err)
	}

	r := NewStreamReader(&buf)
	if _, err := r.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	want := []byte{0x08, 0x00, 0x00, 0x04}
	if got := r.Header(); !bytes.Equal(got, want) {
		t.Fatalf("Header() = % X, want % X", got, want)
	}
}

func TestStreamReaderPartialDelivery(t *testing.T) {
	// A frame delivered byte-by-byte across a socket must still be
	// reassembled.
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		var buf bytes.Buffer
		w := NewStreamWriter(&buf)
		_ = w.WriteFrame(TypeUOPACK, []byte("slow"))
		for _, b := range buf.Bytes() {
			server.Write([]byte{b})
			time.Sleep(time.Millisecond)
		}
	}()

	r := NewStreamReader(client)
	f, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error: %v", err)
	}
	if f.Type != TypeUOPACK || !bytes.Equal(f.Payload, []byte("slow")) {
		t.Fatalf("ReadFrame() = (%v, %q)", f.Type, f.Payload)
	}
}

func TestStreamReaderTruncated(t *testing.T) {
	// Header promises 10 bytes but the stream ends after 3.
	data := []byte{0x08, 0x00, 0x00, 0x0A, 0x01, 0x02, 0x03}
	r := NewStreamReader(bytes.NewReader(data))
	if _, err := r.ReadFrame(); err != io.ErrUnexpectedEOF {
		t.Fatalf("ReadFrame() error = %v, want io.ErrUnexpectedEOF", err)
	}
}
