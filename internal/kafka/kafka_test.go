package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thriftian/marketplace/internal/orders"
	"github.com/thriftian/marketplace/internal/outbox"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakePublisher) Publish(key, value []byte, headers ...kafka.Header) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, kafka.Message{Key: key, Value: value, Headers: headers})
	return nil
}

type fakeRunner struct {
	mu    sync.Mutex
	calls map[string]int
	fail  int // fail this many calls per intent before succeeding; -1 always fails
}

func (r *fakeRunner) Execute(_ context.Context, it outbox.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[it.ID]++
	if r.fail < 0 || r.calls[it.ID] <= r.fail {
		return errors.New("downstream unavailable")
	}
	return nil
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var fastRetry = outbox.Retry{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func auditIntent(key string) outbox.Intent {
	return outbox.Audit(key, outbox.AuditEntry{ActorID: "admin-1", Action: "approve_listing", TargetID: key})
}

func TestRelay_PublishesKeyedIntents(t *testing.T) {
	pub := &fakePublisher{}
	r := &Relay{P: pub, Log: testLogger()}

	b := outbox.Batch{auditIntent("p-1"), auditIntent("p-2")}
	r.Dispatch(context.Background(), b)

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, "p-1", string(pub.msgs[0].Key))
	assert.Equal(t, HeaderIntentKind, pub.msgs[0].Headers[0].Key)
	assert.Equal(t, string(outbox.KindAudit), string(pub.msgs[0].Headers[0].Value))

	got, err := DecodeIntent(pub.msgs[1])
	require.NoError(t, err)
	assert.Equal(t, b[1].ID, got.ID)
	require.NotNil(t, got.Audit)
	assert.Equal(t, "p-2", got.Audit.TargetID)
}

func TestRelay_PublishErrorDoesNotPanic(t *testing.T) {
	r := &Relay{P: &fakePublisher{err: ErrProducerClosed}, Log: testLogger()}
	assert.NotPanics(t, func() { r.Dispatch(context.Background(), outbox.Batch{auditIntent("p-1")}) })
}

func TestEventPublisher_SetsTypeHeader(t *testing.T) {
	pub := &fakePublisher{}
	e := &EventPublisher{P: pub}
	require.NoError(t, e.PublishEvent(context.Background(), "order-1", outbox.Event{Type: orders.EventOrderPlaced, Body: []byte(`{}`)}))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "order-1", string(pub.msgs[0].Key))
	assert.Equal(t, HeaderEventType, pub.msgs[0].Headers[0].Key)
	assert.Equal(t, orders.EventOrderPlaced, string(pub.msgs[0].Headers[0].Value))
}

func message(t *testing.T, it outbox.Intent) kafka.Message {
	t.Helper()
	m, err := encodeIntent(it)
	require.NoError(t, err)
	return m
}

func TestIntentHandler_ExecutesOnceAcrossRedeliveries(t *testing.T) {
	run := &fakeRunner{}
	h := IntentHandler(run, &memDedup{}, fastRetry, testLogger())
	it := auditIntent("p-1")
	m := message(t, it)

	require.NoError(t, h(context.Background(), m))
	require.NoError(t, h(context.Background(), m))
	assert.Equal(t, 1, run.calls[it.ID])
}

func TestIntentHandler_RetriesThenSucceeds(t *testing.T) {
	run := &fakeRunner{fail: 2}
	h := IntentHandler(run, nil, fastRetry, testLogger())
	it := auditIntent("p-1")

	require.NoError(t, h(context.Background(), message(t, it)))
	assert.Equal(t, 3, run.calls[it.ID])
}

func TestIntentHandler_DeadLetterIsCommitted(t *testing.T) {
	run := &fakeRunner{fail: -1}
	h := IntentHandler(run, &memDedup{}, fastRetry, testLogger())
	it := auditIntent("p-1")

	assert.NoError(t, h(context.Background(), message(t, it)))
	assert.Equal(t, fastRetry.MaxAttempts, run.calls[it.ID])
}

func TestIntentHandler_ShutdownLeavesMessageForRedelivery(t *testing.T) {
	run := &fakeRunner{fail: -1}
	dedup := &memDedup{}
	h := IntentHandler(run, dedup, outbox.Retry{MaxAttempts: 5, BaseBackoff: time.Hour}, testLogger())
	it := auditIntent("p-1")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := h(ctx, message(t, it))
	assert.ErrorIs(t, err, context.Canceled)

	first, _ := dedup.Claim(context.Background(), it.ID)
	assert.True(t, first, "dedup mark must be released")
}

func TestIntentHandler_SkipsGarbage(t *testing.T) {
	run := &fakeRunner{}
	h := IntentHandler(run, nil, fastRetry, testLogger())
	assert.NoError(t, h(context.Background(), kafka.Message{Value: []byte("not json")}))
	assert.NoError(t, h(context.Background(), kafka.Message{Value: []byte(`{"kind":"audit"}`)}))
	assert.Empty(t, run.calls)
}
