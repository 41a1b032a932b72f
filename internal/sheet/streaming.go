package sheet

// streaming.go cleans CSV input on the fly without buffering the file:
//
//   - bomSkipper drops a leading UTF-8 BOM (0xEF 0xBB 0xBF) written by Excel on Windows
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?'
//
// Use wrapCSV to apply both in the correct order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomSkipper discards a UTF-8 BOM at the start of the stream, if present.
type bomSkipper struct {
	r       *bufio.Reader
	checked bool
}

func newBOMSkipper(r io.Reader) *bomSkipper {
	return &bomSkipper{r: bufio.NewReader(r)}
}

func (b *bomSkipper) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.r.Peek(len(utf8BOM))
		if err != nil && err != io.EOF {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// utf8Sanitizer replaces invalid UTF-8 bytes with '?'. A multi-byte rune
// split across two underlying reads is carried over to the next chunk.
type utf8Sanitizer struct {
	r     io.Reader
	buf   []byte
	carry int
	out   []byte
	spare []byte
	err   error
}

const (
	sanitizeChunk = 32 * 1024
	maxEmptyReads = 100
)

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, buf: make([]byte, sanitizeChunk)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for empty := 0; len(s.out) == 0; empty++ {
		if s.err != nil {
			return 0, s.err
		}
		if empty == maxEmptyReads {
			return 0, io.ErrNoProgress
		}
		s.fill()
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

func (s *utf8Sanitizer) fill() {
	m, err := s.r.Read(s.buf[s.carry:])
	data := s.buf[:s.carry+m]
	s.carry = 0
	s.err = err

	out := s.spare[:0]
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		switch {
		case r != utf8.RuneError || size > 1:
			out = append(out, data[i:i+size]...)
			i += size
		case err == nil && !utf8.FullRune(data[i:]):
			// An unfinished rune at the end of the chunk is not invalid yet.
			s.carry = copy(s.buf, data[i:])
			i = len(data)
		default:
			out = append(out, '?')
			i++
		}
	}
	s.spare = out
	s.out = out
}

// wrapCSV strips the BOM first, then sanitizes what remains.
func wrapCSV(r io.Reader) io.Reader {
	return newUTF8Sanitizer(newBOMSkipper(r))
}
