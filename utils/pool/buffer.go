package pool

import "sync"

// BufferSize is the shared copy-buffer size (256KB).
const BufferSize = 256 * 1024

// SharedBufferPool holds *[]byte to avoid allocating on Put.
var SharedBufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, BufferSize)
		return &buf
	},
}
