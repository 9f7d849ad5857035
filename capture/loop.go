package capture

import (
	"sync/atomic"

	"go.enteract.dev/enteract/audiodev"
)

const (
	// defaultQueueDepth bounds the frame queue between the real-time
	// callback and the processor.
	defaultQueueDepth = 32
	// maxCallbackSamples caps the per-callback copy; anything larger is
	// counted as dropped.
	maxCallbackSamples = 16384
)

// Loop ferries frames from the device's real-time callback to the
// processor over a bounded single-producer queue. The callback side never
// blocks and never allocates: buffers are recycled through a free list, and
// frames that do not fit are counted and discarded.
type Loop struct {
	format  audiodev.StreamFormat
	frames  chan []float32
	free    chan []float32
	dropped atomic.Uint64
	closed  atomic.Bool
}

// NewLoop creates a loop for streams in the given native format.
func NewLoop(format audiodev.StreamFormat) *Loop {
	l := &Loop{
		format: format,
		frames: make(chan []float32, defaultQueueDepth),
		free:   make(chan []float32, defaultQueueDepth),
	}
	for i := 0; i < defaultQueueDepth; i++ {
		l.free <- make([]float32, 0, maxCallbackSamples)
	}
	return l
}

// Callback is the audiodev.StreamCallback bound to the device stream. It
// runs on the platform's real-time thread.
func (l *Loop) Callback(buf audiodev.Buffer) {
	n := buf.Frames(l.format.Channels) * l.format.Channels
	if n == 0 || l.closed.Load() {
		return
	}

	var dst []float32
	select {
	case dst = <-l.free:
	default:
		l.dropped.Add(uint64(buf.Frames(l.format.Channels)))
		return
	}

	if n > maxCallbackSamples {
		l.dropped.Add(uint64((n - maxCallbackSamples) / l.format.Channels))
		n = maxCallbackSamples
	}
	dst = appendSamples(dst[:0], buf, n)

	select {
	case l.frames <- dst:
	default:
		// Unreachable while free and frames share a depth, kept so a
		// future depth change cannot reintroduce blocking.
		l.dropped.Add(uint64(len(dst) / l.format.Channels))
		l.free <- dst[:0]
	}
}

// Frames returns the consumer side of the queue. Each received slice must
// be returned via Recycle once processed.
func (l *Loop) Frames() <-chan []float32 { return l.frames }

// Recycle returns a processed buffer to the free list.
func (l *Loop) Recycle(buf []float32) {
	select {
	case l.free <- buf[:0]:
	default:
	}
}

// Dropped returns the cumulative count of frames discarded because the
// queue was full.
func (l *Loop) Dropped() uint64 { return l.dropped.Load() }

// CloseIntake stops accepting new frames. Frames already queued remain
// readable so the processor can drain them.
func (l *Loop) CloseIntake() { l.closed.Store(true) }
