package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	chatModels "github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/models/chat"
)

func textChunk(text string) chatModels.Chunk {
	return chatModels.Chunk{Type: chatModels.ChunkTypeTextDelta, Delta: text}
}

func collect(t *testing.T, ch <-chan chatModels.Chunk, n int) []chatModels.Chunk {
	t.Helper()

	out := make([]chatModels.Chunk, 0, n)
	timeout := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case chunk, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d chunks, want %d", len(out), n)
			}
			out = append(out, chunk)
		case <-timeout:
			t.Fatalf("timed out after %d chunks, want %d", len(out), n)
		}
	}
	return out
}

func TestLogSubscribeReplaysExistingChunks(t *testing.T) {
	log := NewLog("run-1", nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := log.Write(ctx, textChunk(fmt.Sprintf("chunk-%d", i))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	got := collect(t, log.Subscribe(ctx, 0), 5)
	for i, chunk := range got {
		want := fmt.Sprintf("chunk-%d", i)
		if chunk.Delta != want {
			t.Errorf("chunk %d: got delta %q, want %q", i, chunk.Delta, want)
		}
	}
}

func TestLogSubscribeFromOffset(t *testing.T) {
	log := NewLog("run-1", nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := log.Write(ctx, textChunk(fmt.Sprintf("chunk-%d", i))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	log.Close()

	tests := []struct {
		name      string
		fromIndex int
		wantFirst string
		wantCount int
	}{
		{name: "from start", fromIndex: 0, wantFirst: "chunk-0", wantCount: 10},
		{name: "mid stream", fromIndex: 6, wantFirst: "chunk-6", wantCount: 4},
		{name: "negative clamps to zero", fromIndex: -3, wantFirst: "chunk-0", wantCount: 10},
		{name: "past end yields nothing", fromIndex: 10, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := log.Subscribe(ctx, tt.fromIndex)

			var got []chatModels.Chunk
			for chunk := range ch {
				got = append(got, chunk)
			}

			if len(got) != tt.wantCount {
				t.Fatalf("got %d chunks, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount > 0 && got[0].Delta != tt.wantFirst {
				t.Errorf("first chunk: got %q, want %q", got[0].Delta, tt.wantFirst)
			}
		})
	}
}

// A subscriber ahead of the head waits until the log grows to its
// offset, then receives from exactly that index.
func TestLogSubscribePastHeadWaits(t *testing.T) {
	log := NewLog("run-1", nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := log.Write(ctx, textChunk(fmt.Sprintf("chunk-%d", i))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	ch := log.Subscribe(ctx, 4)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 2; i < 6; i++ {
			if err := log.Write(ctx, textChunk(fmt.Sprintf("chunk-%d", i))); err != nil {
				t.Errorf("write %d: %v", i, err)
				return
			}
		}
		log.Close()
	}()

	var got []chatModels.Chunk
	for chunk := range ch {
		got = append(got, chunk)
	}
	<-done

	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if got[0].Delta != "chunk-4" || got[1].Delta != "chunk-5" {
		t.Errorf("got deltas %q, %q; want chunk-4, chunk-5", got[0].Delta, got[1].Delta)
	}
}

// A subscriber that joins mid-run must see the replayed prefix and the
// live suffix as one dense sequence with no gap and no duplicate.
func TestLogSubscribeReplayThenLive(t *testing.T) {
	log := NewLog("run-1", nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := log.Write(ctx, textChunk(fmt.Sprintf("chunk-%d", i))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	ch := log.Subscribe(ctx, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 3; i < 8; i++ {
			if err := log.Write(ctx, textChunk(fmt.Sprintf("chunk-%d", i))); err != nil {
				t.Errorf("write %d: %v", i, err)
			}
		}
		log.Close()
	}()

	var got []chatModels.Chunk
	for chunk := range ch {
		got = append(got, chunk)
	}
	<-done

	if len(got) != 8 {
		t.Fatalf("got %d chunks, want 8", len(got))
	}
	for i, chunk := range got {
		want := fmt.Sprintf("chunk-%d", i)
		if chunk.Delta != want {
			t.Errorf("chunk %d: got %q, want %q", i, chunk.Delta, want)
		}
	}
}

// Every subscriber sees the same sequence regardless of when it joined.
func TestLogMultipleSubscribersSeeSameSequence(t *testing.T) {
	log := NewLog("run-1", nil)
	ctx := context.Background()

	early := log.Subscribe(ctx, 0)

	for i := 0; i < 4; i++ {
		if err := log.Write(ctx, textChunk(fmt.Sprintf("chunk-%d", i))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	late := log.Subscribe(ctx, 0)
	log.Close()

	drain := func(ch <-chan chatModels.Chunk) []string {
		var out []string
		for chunk := range ch {
			out = append(out, chunk.Delta)
		}
		return out
	}

	gotEarly := drain(early)
	gotLate := drain(late)

	if len(gotEarly) != 4 || len(gotLate) != 4 {
		t.Fatalf("got %d and %d chunks, want 4 and 4", len(gotEarly), len(gotLate))
	}
	for i := range gotEarly {
		if gotEarly[i] != gotLate[i] {
			t.Errorf("chunk %d: early saw %q, late saw %q", i, gotEarly[i], gotLate[i])
		}
	}
}

// The durable append runs before the chunk becomes visible, and a
// failed append publishes nothing.
func TestLogWriteDurableFirst(t *testing.T) {
	var appended []int
	appendFn := func(ctx context.Context, index int, chunk chatModels.Chunk) error {
		if index == 2 {
			return errors.New("disk full")
		}
		appended = append(appended, index)
		return nil
	}

	log := NewLog("run-1", appendFn)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := log.Write(ctx, textChunk("ok")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	err := log.Write(ctx, textChunk("lost"))
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("got err %v, want disk full", err)
	}

	if log.Len() != 2 {
		t.Errorf("got len %d, want 2: failed append must not be published", log.Len())
	}
	if len(appended) != 2 {
		t.Errorf("got %d durable appends, want 2", len(appended))
	}
}

func TestLogWriteAfterClose(t *testing.T) {
	log := NewLog("run-1", nil)
	log.Close()
	log.Close() // idempotent

	err := log.Write(context.Background(), textChunk("late"))
	if !errors.Is(err, ErrLogClosed) {
		t.Errorf("got err %v, want ErrLogClosed", err)
	}
}

func TestLogSubscribeCancelClosesChannel(t *testing.T) {
	log := NewLog("run-1", nil)
	ctx, cancel := context.WithCancel(context.Background())

	ch := log.Subscribe(ctx, 0)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("got chunk after cancel, want closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel did not close after cancel")
	}
}
