package frame

import "io"

// StreamReader reads frames off a byte stream. Partial reads are
// retried until a full frame is available; the reader owns no
// goroutines and is not safe for concurrent use.
type StreamReader struct {
	r      io.Reader
	header [HeaderSize]byte
}

// NewStreamReader creates a StreamReader over r.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{r: r}
}

// ReadFrame blocks until a complete frame has been read.
func (s *StreamReader) ReadFrame() (*Frame, error) {
	if _, err := io.ReadFull(s.r, s.header[:]); err != nil {
		return nil, err
	}
	t, length, err := DecodeHeader(s.header[:])
	if err != nil {
		return nil, err
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return &Frame{Type: t, Payload: payload}, nil
}

// Header returns the header bytes of the most recently read frame.
// They serve as additional authenticated data when the payload is
// sealed.
func (s *StreamReader) Header() []byte {
	h := make([]byte, HeaderSize)
	copy(h, s.header[:])
	return h
}

// StreamWriter writes frames to a byte stream. It is not safe for
// concurrent use; callers serialize writes.
type StreamWriter struct {
	w io.Writer
}

// NewStreamWriter creates a StreamWriter over w.
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w}
}

// WriteFrame writes a header for payload and then the payload itself.
// The payload is written as given; sealing happens above this layer.
func (s *StreamWriter) WriteFrame(t Type, payload []byte) error {
	header, err := EncodeHeader(t, len(payload))
	if err != nil {
		return err
	}
	if _, err := s.w.Write(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err = s.w.Write(payload)
	return err
}
