package download

import (
	"io"
	"sync/atomic"

	"github.com/topicgrab/topicgrab/internal/model"
)

// Counter is a concurrency-safe byte counter shared across all
// downloads in a run.
type Counter struct {
	n atomic.Int64
}

// Add records n more bytes and returns the new total.
func (c *Counter) Add(n int64) int64 {
	return c.n.Add(n)
}

// Total returns the bytes counted so far.
func (c *Counter) Total() int64 {
	return c.n.Load()
}

// Reset clears the counter.
func (c *Counter) Reset() {
	c.n.Store(0)
}

// countingReader wraps a response body, accumulating received bytes
// into the run-wide counter and publishing the running total on the
// event stream as chunks arrive.
type countingReader struct {
	r       io.Reader
	counter *Counter
	sink    model.Sink
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		total := cr.counter.Add(int64(n))
		cr.sink.Emit(model.BandwidthEvent{TotalBytes: total})
	}
	return n, err
}
