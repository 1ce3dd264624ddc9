package chat

import (
	"context"
	"errors"
	"sync"

	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
)

// ErrLogClosed is returned by Write after Close
var ErrLogClosed = errors.New("run log closed")

// AppendFunc durably records a chunk at the given index. The log calls
// it before the chunk becomes visible to any subscriber, so everything
// a client has ever observed is already on disk.
type AppendFunc func(ctx context.Context, index int, chunk chatModels.Chunk) error

// Log is the in-memory event log of one live run. It has exactly one
// writer (the loop driving the run) and any number of subscribers, each
// reading from its own offset. A subscriber that joins late replays the
// prefix it missed and then follows live appends; a subscriber that
// joined early simply blocks until the next append. Either way every
// subscriber sees the same dense, gap-free sequence.
type Log struct {
	runID  string
	append AppendFunc

	mu     sync.Mutex
	cond   *sync.Cond
	chunks []chatModels.Chunk
	closed bool
}

// NewLog creates a log for a run. append may be nil, in which case
// chunks are only held in memory (used in tests).
func NewLog(runID string, append AppendFunc) *Log {
	l := &Log{
		runID:  runID,
		append: append,
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// RunID returns the run this log belongs to
func (l *Log) RunID() string {
	return l.runID
}

// Write appends one chunk: durable first, then visible. Write must only
// be called from the single goroutine that owns the run. Returns the
// durable append's error without publishing the chunk, so subscribers
// never observe anything that failed to persist.
func (l *Log) Write(ctx context.Context, chunk chatModels.Chunk) error {
	l.mu.Lock()
	index := len(l.chunks)
	closed := l.closed
	l.mu.Unlock()

	if closed {
		return ErrLogClosed
	}

	if l.append != nil {
		if err := l.append(ctx, index, chunk); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.chunks = append(l.chunks, chunk)
	l.mu.Unlock()
	l.cond.Broadcast()

	return nil
}

// Close marks the log complete. Subscribers drain whatever remains and
// then their channels close. Close is idempotent.
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Len returns the number of chunks written so far
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.chunks)
}

// Closed reports whether the log has been closed
func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Subscribe returns a channel that yields every chunk at index >=
// fromIndex: first the already-written prefix, then live appends, with
// no gap and no duplicate at the seam. The channel closes when the log
// closes and the subscriber has caught up, or when ctx ends. A negative
// fromIndex is clamped to zero; a fromIndex past the current head waits
// for the log to grow that far (an empty tail if the log closes first).
func (l *Log) Subscribe(ctx context.Context, fromIndex int) <-chan chatModels.Chunk {
	out := make(chan chatModels.Chunk)

	// cond.Wait cannot observe ctx directly; a broadcast on cancel
	// wakes the subscriber goroutine so it can notice and bail.
	stop := context.AfterFunc(ctx, l.cond.Broadcast)

	go func() {
		defer close(out)
		defer stop()

		offset := fromIndex
		if offset < 0 {
			offset = 0
		}

		for {
			l.mu.Lock()
			for offset >= len(l.chunks) && !l.closed && ctx.Err() == nil {
				l.cond.Wait()
			}
			if ctx.Err() != nil {
				l.mu.Unlock()
				return
			}
			if offset >= len(l.chunks) && l.closed {
				l.mu.Unlock()
				return
			}
			batch := l.chunks[offset:len(l.chunks):len(l.chunks)]
			offset += len(batch)
			l.mu.Unlock()

			for _, chunk := range batch {
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
