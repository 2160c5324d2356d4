// Package lineiter yields logical log lines from a byte stream.
//
// A line boundary is '\n', a lone '\r' (ansible joins whole task outputs into
// one physical line with carriage returns), or the literal two-byte sequence
// `\n` used when command output is embedded as an escaped one-liner. Escaped
// sub-lines share the line number of their physical line.
//
// Memory use is constant: lines longer than the cap are dropped (their bytes
// still count toward ByteCount) and the iterator never buffers more than one
// line.
package lineiter

import (
	"bufio"
	"errors"
	"io"
)

// DefaultMaxLineLen is the hard cap on a single line. Longer lines are
// binary noise or minified blobs and carry no per-line signal.
const DefaultMaxLineLen = 4096

// Line is one logical log line.
type Line struct {
	// Bytes is the line content without its terminator. The slice is owned
	// by the caller; it does not alias the iterator's buffer.
	Bytes []byte
	// Offset is the byte offset of the line start in the original stream.
	Offset int64
	// Number is the 1-based physical line number. Escaped sub-lines share
	// their parent's number.
	Number int
}

// Iter streams lines from a reader.
type Iter struct {
	r       *bufio.Reader
	maxLen  int
	cur     []byte
	curOff  int64
	off     int64
	number  int
	discard bool
	done    bool

	byteCount int64
	lineCount int64
}

// New creates an iterator over r with the default line cap.
func New(r io.Reader) *Iter {
	return NewWithMaxLen(r, DefaultMaxLineLen)
}

// NewWithMaxLen creates an iterator with an explicit line cap.
func NewWithMaxLen(r io.Reader, maxLen int) *Iter {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLen
	}
	return &Iter{
		r:      bufio.NewReaderSize(r, 8192),
		maxLen: maxLen,
		cur:    make([]byte, 0, 256),
		number: 1,
	}
}

// Next returns the next line, or (nil, nil) at end of stream. The first read
// error is returned as-is; the iterator is exhausted afterwards.
func (it *Iter) Next() (*Line, error) {
	if it.done {
		return nil, nil
	}
	for {
		b, err := it.r.ReadByte()
		if err != nil {
			it.done = true
			if errors.Is(err, io.EOF) {
				if line := it.flush(false); line != nil {
					return line, nil
				}
				return nil, nil
			}
			return nil, err
		}
		it.off++
		it.byteCount++

		switch b {
		case '\n':
			if line := it.flush(true); line != nil {
				return line, nil
			}
		case '\r':
			// Swallow the '\n' of a CRLF pair so the pair is one boundary.
			if next, perr := it.r.Peek(1); perr == nil && next[0] == '\n' {
				_, _ = it.r.ReadByte()
				it.off++
				it.byteCount++
			}
			if line := it.flush(true); line != nil {
				return line, nil
			}
		case '\\':
			next, perr := it.r.Peek(1)
			if perr == nil && next[0] == 'n' {
				_, _ = it.r.ReadByte()
				it.off++
				it.byteCount++
				if line := it.flush(false); line != nil {
					return line, nil
				}
				continue
			}
			it.push(b)
		default:
			it.push(b)
		}
	}
}

// ByteCount returns the number of bytes consumed so far, including bytes of
// discarded oversized lines.
func (it *Iter) ByteCount() int64 { return it.byteCount }

// LineCount returns the number of lines emitted so far.
func (it *Iter) LineCount() int64 { return it.lineCount }

func (it *Iter) push(b byte) {
	if it.discard {
		return
	}
	if len(it.cur) >= it.maxLen {
		it.discard = true
		it.cur = it.cur[:0]
		return
	}
	it.cur = append(it.cur, b)
}

// flush terminates the current line. newLine distinguishes physical
// boundaries (which advance the line number) from escaped sub-lines.
func (it *Iter) flush(newLine bool) *Line {
	var line *Line
	if !it.discard && len(it.cur) > 0 {
		content := make([]byte, len(it.cur))
		copy(content, it.cur)
		line = &Line{Bytes: content, Offset: it.curOff, Number: it.number}
		it.lineCount++
	}
	it.discard = false
	it.cur = it.cur[:0]
	it.curOff = it.off
	if newLine {
		it.number++
	}
	return line
}
