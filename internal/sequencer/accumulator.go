// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sequencer

import (
	"strings"
	"sync"
)

// Accumulator is the append-only document buffer. Fragments are appended
// verbatim in arrival order. Readers may observe it while a stream is
// appending.
type Accumulator struct {
	mu  sync.RWMutex
	buf strings.Builder
}

// Append adds text to the end of the buffer.
func (a *Accumulator) Append(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.WriteString(text)
}

// Replace discards the buffer and starts it again with text.
func (a *Accumulator) Replace(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buf.Reset()
	a.buf.WriteString(text)
}

// String returns the whole buffer.
func (a *Accumulator) String() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.buf.String()
}

// Len returns the buffer length in bytes.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.buf.Len()
}

// Since returns the text after byte offset off and the current length.
// Offsets past the end yield "". A negative offset is treated as 0. When
// Replace has swapped the text, callers holding an old offset should compare
// against the returned length and re-read from 0.
func (a *Accumulator) Since(off int) (string, int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := a.buf.String()
	if off < 0 {
		off = 0
	}
	if off >= len(s) {
		return "", len(s)
	}
	return s[off:], len(s)
}
