package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// =============================================================================
// Fakes
// =============================================================================

type recordingHandlers struct {
	mu            sync.Mutex
	notifications []Notification
	audits        []AuditEntry
	sales         []Sale
	auditErr      error
	notifyFails   int // fail this many Deliver calls before succeeding
}

func (h *recordingHandlers) Deliver(_ context.Context, n Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.notifyFails > 0 {
		h.notifyFails--
		return errors.New("store unavailable")
	}
	h.notifications = append(h.notifications, n)
	return nil
}

func (h *recordingHandlers) Record(_ context.Context, a AuditEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.auditErr != nil {
		return h.auditErr
	}
	h.audits = append(h.audits, a)
	return nil
}

func (h *recordingHandlers) RecordSale(_ context.Context, s Sale) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sales = append(h.sales, s)
	return nil
}

func (h *recordingHandlers) snapshot() ([]Notification, []AuditEntry, []Sale) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Notification(nil), h.notifications...),
		append([]AuditEntry(nil), h.audits...),
		append([]Sale(nil), h.sales...)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fastRetry(attempts int) Retry {
	return Retry{MaxAttempts: attempts, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func newTestDispatcher(h *recordingHandlers, attempts int) *Dispatcher {
	exec := &Executor{Notifications: h, Audit: h, Analytics: h, Log: quietLogger()}
	return NewDispatcher(exec, 4, 16, fastRetry(attempts), quietLogger())
}

func orderPlacedBatch() Batch {
	return Batch{
		RecordSale(Sale{SellerID: "seller-1", OrderID: "order-1", Amount: decimal.NewFromInt(100)}),
		Notify("order-1", Notification{UserID: "buyer-1", Title: "Order Placed", Type: "order"}),
		Notify("order-1", Notification{UserID: "seller-1", Title: "New Order", Type: "order"}),
		Audit("order-1", AuditEntry{ActorID: "buyer-1", Action: "place_order", TargetID: "order-1"}),
	}
}

// =============================================================================
// Dispatcher
// =============================================================================

func TestDispatcher_DeliversEveryIntent(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := &recordingHandlers{}
	d := newTestDispatcher(h, 3)
	d.Start(context.Background())

	d.Dispatch(context.Background(), orderPlacedBatch())
	d.Close()
	d.Wait()

	notifications, audits, sales := h.snapshot()
	assert.Len(t, notifications, 2)
	assert.Len(t, audits, 1)
	require.Len(t, sales, 1)
	assert.True(t, sales[0].Amount.Equal(decimal.NewFromInt(100)))
}

func TestDispatcher_AuditFailureDoesNotBlockOthers(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := &recordingHandlers{auditErr: errors.New("audit table locked")}
	d := newTestDispatcher(h, 2)
	d.Start(context.Background())

	d.Dispatch(context.Background(), orderPlacedBatch())
	d.Close()
	d.Wait()

	notifications, audits, sales := h.snapshot()
	assert.Len(t, notifications, 2)
	assert.Empty(t, audits)
	assert.Len(t, sales, 1)
}

func TestDispatcher_RetriesTransientFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := &recordingHandlers{notifyFails: 2}
	d := newTestDispatcher(h, 3)
	d.Start(context.Background())

	d.Dispatch(context.Background(), Batch{
		Notify("order-1", Notification{UserID: "buyer-1", Title: "Order Shipped"}),
	})
	d.Close()
	d.Wait()

	notifications, _, _ := h.snapshot()
	require.Len(t, notifications, 1)
	assert.Equal(t, "Order Shipped", notifications[0].Title)
}

func TestDispatcher_DropsAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := &recordingHandlers{}
	d := newTestDispatcher(h, 1)
	d.Start(context.Background())
	d.Close()
	d.Close()
	d.Wait()

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), orderPlacedBatch())
	})
	notifications, _, _ := h.snapshot()
	assert.Empty(t, notifications)
}

// =============================================================================
// Executor and Retry
// =============================================================================

func TestExecutor_NilHandlerIsNoop(t *testing.T) {
	exec := &Executor{}
	err := exec.Execute(context.Background(), SendEmail("order-1", Email{To: "a@b.c", Template: "order_confirmation"}))
	assert.NoError(t, err)

	err = exec.Execute(context.Background(), Intent{ID: "x", Kind: "bogus"})
	assert.Error(t, err)
}

func TestRetry_Backoff(t *testing.T) {
	r := Retry{MaxAttempts: 5, BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second}

	assert.Equal(t, 100*time.Millisecond, r.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, r.Backoff(2))
	assert.Equal(t, 400*time.Millisecond, r.Backoff(3))
	assert.Equal(t, time.Second, r.Backoff(5))
	assert.Equal(t, time.Second, r.Backoff(64))
}

func TestRetry_GivesUp(t *testing.T) {
	calls := 0
	attempts, err := fastRetry(3).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry{MaxAttempts: 10, BaseBackoff: time.Hour}

	attempts, err := r.Do(ctx, func(context.Context) error { return errors.New("boom") })
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}
