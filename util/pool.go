package util

import "sync"

// LineBufSize is the initial capacity of a pooled line buffer.  The
// protocol's lines are short; the scanner grows the buffer up to the
// configured maximum only for unusually long input.
const LineBufSize = 1024

// LinePool provides reusable read buffers for per-connection line
// scanners, so a burst of short-lived connections does not churn the heap.
var LinePool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, LineBufSize)
		return &buf
	},
}

// GetLineBuf retrieves a buffer from the pool.  Callers must return it
// with [PutLineBuf] when the connection is done.
func GetLineBuf() *[]byte {
	return LinePool.Get().(*[]byte)
}

// PutLineBuf returns a buffer to the pool for reuse.
func PutLineBuf(buf *[]byte) {
	if buf == nil {
		return
	}
	LinePool.Put(buf)
}
