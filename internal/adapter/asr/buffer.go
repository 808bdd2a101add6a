package asr

import "sync"

// tailBuffer is a goroutine-safe io.Writer that keeps the last max bytes.
// Process output goes here so a chatty recorder cannot grow memory without
// bound.
type tailBuffer struct {
	mu        sync.Mutex
	data      []byte
	max       int
	truncated bool
}

func newTailBuffer(maxBytes int) *tailBuffer {
	return &tailBuffer{data: make([]byte, 0, min(maxBytes, 4096)), max: maxBytes}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)
	if len(b.data) > b.max {
		b.data = b.data[len(b.data)-b.max:]
		b.truncated = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// Truncated reports whether older output was dropped.
func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
