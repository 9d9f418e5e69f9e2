package scan

import (
	"bytes"
)

// lineScanner provides zero-allocation line iteration over file content,
// tracking the byte offset of each line so records can carry positions
// without a separate offset table.
type lineScanner struct {
	data    []byte
	start   int // start of current line
	end     int // end of current line (exclusive, before newline)
	pos     int // current position in data
	lineNum int // current line number (1-based)
	done    bool
}

func newLineScanner(data []byte) *lineScanner {
	return &lineScanner{data: data}
}

// Scan advances to the next line. Returns false when done.
// Trailing \r\n or \n is stripped from the reported line.
func (ls *lineScanner) Scan() bool {
	if ls.done {
		return false
	}
	if ls.pos >= len(ls.data) {
		ls.done = true
		return false
	}

	ls.start = ls.pos
	ls.lineNum++

	idx := bytes.IndexByte(ls.data[ls.pos:], '\n')
	if idx < 0 {
		// Last line without trailing newline
		ls.end = len(ls.data)
		ls.pos = len(ls.data)
	} else {
		ls.end = ls.pos + idx
		ls.pos = ls.pos + idx + 1
	}

	// CRLF handling
	if ls.end > ls.start && ls.data[ls.end-1] == '\r' {
		ls.end--
	}

	return true
}

// Bytes returns the current line as a byte slice (zero-copy).
// The returned slice is valid until the underlying data is released.
func (ls *lineScanner) Bytes() []byte {
	if ls.start >= len(ls.data) || ls.end > len(ls.data) {
		return nil
	}
	return ls.data[ls.start:ls.end]
}

// Text returns the current line as a string.
func (ls *lineScanner) Text() string {
	return string(ls.Bytes())
}

// Offset returns the byte offset of the current line start.
func (ls *lineScanner) Offset() int {
	return ls.start
}

// LineNumber returns the current line number (1-based).
func (ls *lineScanner) LineNumber() int {
	return ls.lineNum
}
