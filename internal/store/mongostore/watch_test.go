package mongostore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedStream 依次产生 events 次变更，然后以 err 结束；block 为真时一直等到 ctx 取消。
type scriptedStream struct {
	events int
	err    error
	block  bool
	closed chan struct{}
}

func newScriptedStream(events int, err error, block bool) *scriptedStream {
	return &scriptedStream{events: events, err: err, block: block, closed: make(chan struct{})}
}

func (s *scriptedStream) Next(ctx context.Context) bool {
	if s.events > 0 {
		s.events--
		return true
	}
	if s.block {
		<-ctx.Done()
		s.err = ctx.Err()
	}
	return false
}

func (s *scriptedStream) Err() error { return s.err }

func (s *scriptedStream) Close(context.Context) error {
	close(s.closed)
	return nil
}

func TestFollowPushesStreamFailure(t *testing.T) {
	boom := errors.New("cursor killed")
	stream := newScriptedStream(2, boom, false)

	var queries atomic.Int32
	failures := make(chan error, 1)
	streamCtx, cancel := context.WithCancel(context.Background())
	sub := follow(context.Background(), streamCtx, cancel, "threads", stream,
		func(context.Context) error {
			queries.Add(1)
			return nil
		},
		func(err error) { failures <- err })
	defer sub.Unsubscribe()

	select {
	case err := <-failures:
		if !errors.Is(err, boom) {
			t.Fatalf("expected stream error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected the stream failure to reach the subscriber")
	}
	if got := queries.Load(); got != 3 {
		t.Fatalf("expected initial query plus one per change, got %d", got)
	}
}

func TestFollowStaysQuietAfterUnsubscribe(t *testing.T) {
	stream := newScriptedStream(0, nil, true)

	failures := make(chan error, 1)
	streamCtx, cancel := context.WithCancel(context.Background())
	sub := follow(context.Background(), streamCtx, cancel, "aggregates", stream,
		func(context.Context) error { return nil },
		func(err error) { failures <- err })

	sub.Unsubscribe()
	select {
	case <-stream.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the stream to be closed after unsubscribe")
	}

	select {
	case err := <-failures:
		t.Fatalf("expected no error after unsubscribe, got %v", err)
	default:
	}
}

func TestFollowStopsWhenParentContextEnds(t *testing.T) {
	stream := newScriptedStream(0, nil, true)

	parent, stop := context.WithCancel(context.Background())
	streamCtx, cancel := context.WithCancel(context.Background())
	sub := follow(parent, streamCtx, cancel, "threads", stream,
		func(context.Context) error { return nil },
		func(error) {})
	defer sub.Unsubscribe()

	stop()
	select {
	case <-stream.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the stream to close with its parent context")
	}
}
