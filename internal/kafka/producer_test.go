package kafka

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// gatedWriter blocks every write until gate is closed.
type gatedWriter struct {
	gate chan struct{}

	mu      sync.Mutex
	written []string
	closed  bool
}

func (w *gatedWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	<-w.gate
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		w.written = append(w.written, string(m.Key))
	}
	return nil
}

func (w *gatedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *gatedWriter) keys() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}

func TestProducer_CloseFlushesQueued(t *testing.T) {
	defer goleak.VerifyNone(t)
	w := &gatedWriter{gate: make(chan struct{})}
	close(w.gate)
	p := newProducer(w, "events", 8, testLogger())
	p.Start(context.Background())

	require.NoError(t, p.Publish([]byte("o-1"), []byte(`{}`)))
	require.NoError(t, p.Publish([]byte("o-2"), []byte(`{}`)))
	p.Close()
	p.Close()
	p.WaitClosed()

	assert.Equal(t, []string{"o-1", "o-2"}, w.keys())
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish([]byte("o-3"), nil), ErrProducerClosed)
}

func TestProducer_CancelWithPublisherBlockedOnFullInbox(t *testing.T) {
	defer goleak.VerifyNone(t)
	w := &gatedWriter{gate: make(chan struct{})}
	p := newProducer(w, "events", 1, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.NoError(t, p.Publish([]byte("o-1"), nil)) // taken by the loop, stuck in the writer
	require.Eventually(t, func() bool { return len(p.inbox) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, p.Publish([]byte("o-2"), nil)) // fills the inbox

	blocked := make(chan error, 1)
	go func() { blocked <- p.Publish([]byte("o-3"), nil) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	close(w.gate)

	closed := make(chan struct{})
	go func() {
		p.WaitClosed()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not shut down")
	}
	require.NoError(t, <-blocked)
	assert.ElementsMatch(t, []string{"o-1", "o-2", "o-3"}, w.keys())
}
