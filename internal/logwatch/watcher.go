// Package logwatch detects a marker string in a stream of log output.
package logwatch

import (
	"bytes"
	"strconv"
	"sync"
)

// ListeningPrefix is the text LiteServ writes to stderr, followed by the
// port number, once its listener accepts connections.
const ListeningPrefix = "is listening on port "

// Marker returns the line fragment that signals a LiteServ listening on port.
func Marker(port int) string {
	return ListeningPrefix + strconv.Itoa(port)
}

// Watcher is an io.Writer that closes Ready the first time the bytes written
// to it contain the marker. Writes are matched with a contains check, so a
// marker at the very start of a chunk counts, as does a marker split across
// two writes. Text after the marker is not inspected, so the marker for
// port 5984 also matches "port 59840".
//
// A Watcher never fails a write and is safe for concurrent use.
type Watcher struct {
	marker []byte
	ready  chan struct{}

	mu      sync.Mutex
	matched bool
	tail    []byte // last len(marker)-1 bytes seen before a match
}

// New returns a Watcher for marker. Panics if marker is empty, since an empty
// marker would match before anything is written.
func New(marker string) *Watcher {
	if marker == "" {
		panic("liteservenv: log marker must not be empty")
	}
	return &Watcher{
		marker: []byte(marker),
		ready:  make(chan struct{}),
	}
}

// Write scans p for the marker and always reports len(p) written.
func (w *Watcher) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.matched {
		return len(p), nil
	}

	buf := append(w.tail, p...) //nolint:gocritic // tail is owned by w
	if bytes.Contains(buf, w.marker) {
		w.matched = true
		w.tail = nil
		close(w.ready)
		return len(p), nil
	}

	keep := min(len(w.marker)-1, len(buf))
	w.tail = append(w.tail[:0:0], buf[len(buf)-keep:]...)
	return len(p), nil
}

// Ready returns a channel closed exactly once, after the write that completed
// the marker.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Matched reports whether the marker has been seen.
func (w *Watcher) Matched() bool {
	select {
	case <-w.ready:
		return true
	default:
		return false
	}
}

// Marker returns the text the watcher looks for.
func (w *Watcher) Marker() string {
	return string(w.marker)
}
