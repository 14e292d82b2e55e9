package downloader

import "io"

// DefaultChunkSize is the read size of a body stream.
const DefaultChunkSize = 32 * 1024

// Stream yields the body of a transfer one chunk at a time. The consumer
// decides when to pull, so a paused transfer simply stops calling Next.
type Stream interface {
	// Next returns the next non-empty chunk, or io.EOF once the body is drained.
	// The returned slice is only valid until the following call.
	Next() ([]byte, error)
}

type readerStream struct {
	r   io.Reader
	buf []byte
}

// NewStream reads r in chunks of size bytes.
func NewStream(r io.Reader, size int) Stream {
	if size <= 0 {
		size = DefaultChunkSize
	}

	return &readerStream{r: r, buf: make([]byte, size)}
}

func (s *readerStream) Next() ([]byte, error) {
	for {
		n, err := s.r.Read(s.buf)
		if n > 0 {
			return s.buf[:n], nil
		}

		if err != nil {
			return nil, err
		}
	}
}
