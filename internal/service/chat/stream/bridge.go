// Package stream provides the channel plumbing used to move chunks
// between a producing step and its consumers without buffering beyond
// one in-flight element. Producers block until every consumer has taken
// the previous chunk, so a slow subscriber applies backpressure all the
// way up to the provider read loop.
package stream

import (
	"context"

	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
)

// Sink consumes chunks one at a time. Write returns only after the
// chunk has been accepted; a non-nil error permanently rejects the
// stream and the caller must stop sending.
type Sink interface {
	Write(ctx context.Context, chunk chatModels.Chunk) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, chunk chatModels.Chunk) error

func (f SinkFunc) Write(ctx context.Context, chunk chatModels.Chunk) error {
	return f(ctx, chunk)
}

// Pipe drains src into sink, one chunk at a time. It returns nil when
// src closes, the sink's error as soon as a Write fails, or ctx.Err()
// when the context ends first. On a sink failure the remaining chunks
// are left unread; cancelling ctx is how the producer gets released.
func Pipe(ctx context.Context, src <-chan chatModels.Chunk, sink Sink) error {
	for {
		select {
		case chunk, ok := <-src:
			if !ok {
				return nil
			}
			if err := sink.Write(ctx, chunk); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tee fans src out to n branches in lockstep. Every chunk is delivered
// to all branches before the next one is read from src, so the branches
// observe identical sequences in identical order. Branch channels are
// unbuffered and single-reader; all of them close once src closes.
//
// When ctx ends, Tee stops reading, closes every branch, and returns.
// Readers must drain or abandon their branch on cancellation; Tee never
// blocks past ctx.Done on a stuck branch.
func Tee(ctx context.Context, src <-chan chatModels.Chunk, n int) []<-chan chatModels.Chunk {
	branches := make([]chan chatModels.Chunk, n)
	out := make([]<-chan chatModels.Chunk, n)
	for i := range branches {
		branches[i] = make(chan chatModels.Chunk)
		out[i] = branches[i]
	}

	go func() {
		defer func() {
			for _, branch := range branches {
				close(branch)
			}
		}()

		for {
			var chunk chatModels.Chunk
			var ok bool
			select {
			case chunk, ok = <-src:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}

			for _, branch := range branches {
				select {
				case branch <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
