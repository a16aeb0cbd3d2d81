// Package logmon keeps a bounded history of log output and fans every write out
// to listeners.
package logmon

import (
	"container/ring"
	"context"
	"io"
	"sync"

	"github.com/mostlygeek/pubsub/event"
	"github.com/rs/zerolog"
)

// DataEvent is the event name log writes are published under.
const DataEvent = "log.data"

// LogMonitor is an io.Writer that tees to another writer, remembers the most
// recent writes and publishes each one on DataEvent.
type LogMonitor struct {
	eventbus *event.Dispatcher
	buffer   *ring.Ring
	bufferMu sync.RWMutex
	stdout   io.Writer
}

// NewLogMonitorWriter creates a LogMonitor writing through to stdout and keeping
// the last 10240 writes.
func NewLogMonitorWriter(stdout io.Writer) *LogMonitor {
	return NewLogMonitorWriterSize(stdout, 10*1024)
}

// NewLogMonitorWriterSize creates a LogMonitor with a history of size writes.
func NewLogMonitorWriterSize(stdout io.Writer, size int) *LogMonitor {
	if size < 1 {
		size = 1
	}
	return &LogMonitor{
		eventbus: event.NewDispatcher(event.WithLogger(zerolog.Nop())),
		buffer:   ring.New(size),
		stdout:   stdout,
	}
}

func (w *LogMonitor) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}

	n, err = w.stdout.Write(p)
	if err != nil {
		return n, err
	}

	// p may be reused by the caller
	bufferCopy := make([]byte, len(p))
	copy(bufferCopy, p)

	w.bufferMu.Lock()
	w.buffer.Value = bufferCopy
	w.buffer = w.buffer.Next()
	w.bufferMu.Unlock()

	_ = w.eventbus.Publish(DataEvent, bufferCopy)
	return n, nil
}

// GetHistory returns the buffered writes, oldest first.
func (w *LogMonitor) GetHistory() []byte {
	w.bufferMu.RLock()
	defer w.bufferMu.RUnlock()

	var history []byte
	w.buffer.Do(func(p any) {
		if content, ok := p.([]byte); ok {
			history = append(history, content...)
		}
	})
	return history
}

// OnLogData calls callback with every write, on the writing goroutine, before
// Write returns. The callback must not write to this LogMonitor, directly or
// through a logger backed by it: that write is delivered to the callback again
// and recurses without bound. The returned function stops delivery.
func (w *LogMonitor) OnLogData(callback func(data []byte)) context.CancelFunc {
	h, _ := w.eventbus.Subscribe(DataEvent, event.Typed(callback).Named("log-listener"))
	return func() {
		_, _ = w.eventbus.Unsubscribe(DataEvent, h)
	}
}
