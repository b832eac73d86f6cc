package arena

import (
	"strings"
	"sync"
	"time"
)

// deltaBuffer accumulates content and reasoning fragments between flushes.
// Fragments arrive at arbitrary rate from the stream consumer; the flush
// scheduler drains the accumulation at a fixed cadence so observable state
// commits are bounded in frequency regardless of token arrival rate.
type deltaBuffer struct {
	mu        sync.Mutex
	content   strings.Builder
	reasoning strings.Builder
}

// add appends fragments in arrival order.
func (b *deltaBuffer) add(content, reasoning string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content.WriteString(content)
	b.reasoning.WriteString(reasoning)
}

// drain atomically takes the accumulation and clears the buffer.
func (b *deltaBuffer) drain() (content, reasoning string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	content = b.content.String()
	reasoning = b.reasoning.String()
	b.content.Reset()
	b.reasoning.Reset()
	return content, reasoning
}

// flushFunc commits one drained accumulation into observable slot state.
type flushFunc func(content, reasoning string)

// flushScheduler drains a deltaBuffer into a flushFunc on a fixed ticker.
// stop waits for the loop to exit, so after stop returns no further flush
// runs and the caller can perform the single final drain itself.
type flushScheduler struct {
	interval time.Duration
	buf      *deltaBuffer
	flush    flushFunc
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newFlushScheduler(interval time.Duration, buf *deltaBuffer, flush flushFunc) *flushScheduler {
	return &flushScheduler{
		interval: interval,
		buf:      buf,
		flush:    flush,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// start launches the flush loop.
func (s *flushScheduler) start() {
	go func() {
		defer close(s.doneCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if content, reasoning := s.buf.drain(); content != "" || reasoning != "" {
					s.flush(content, reasoning)
				}
			case <-s.stopCh:
				return
			}
		}
	}()
}

// stop cancels the ticker and blocks until the loop has exited. Safe to
// call more than once.
func (s *flushScheduler) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	<-s.doneCh
}
