package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelight/internal/eventbus"
)

type delivery struct {
	header http.Header
	body   []byte
}

// recorder - HTTP-получатель, отвечающий статусами из failFirst, затем 200
func recorder(t *testing.T, failFirst int32) (*httptest.Server, <-chan delivery, *atomic.Int32) {
	t.Helper()
	deliveries := make(chan delivery, 16)
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		if n <= failFirst {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		deliveries <- delivery{header: r.Header.Clone(), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, deliveries, &calls
}

func startManager(t *testing.T) *OutboundWebhookManager {
	t.Helper()
	owm := NewOutboundWebhookManager("main", nil)
	owm.retryDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		owm.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return owm
}

func waitDelivery(t *testing.T, ch <-chan delivery) delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("webhook не получил событие")
		return delivery{}
	}
}

func TestWebhookDeliveryIsSigned(t *testing.T) {
	srv, deliveries, _ := recorder(t, 0)
	owm := startManager(t)

	_, err := owm.AddWebhook(OutboundWebhook{Name: "audit", URL: srv.URL, Secret: "s3cr3t", Events: []string{eventbus.EventSnapshotSaved}})
	require.NoError(t, err)

	require.True(t, owm.SendEvent(eventbus.EventVoxelChanged, "engine", json.RawMessage(`{"ignored":true}`)))
	require.True(t, owm.SendEvent(eventbus.EventSnapshotSaved, "engine", json.RawMessage(`{"snapshot":"abc"}`)))

	d := waitDelivery(t, deliveries)
	assert.Equal(t, eventbus.EventSnapshotSaved, d.header.Get("X-Event-Type"), "Неподписанные события не доставляются")
	assert.Equal(t, "main", d.header.Get("X-World"))
	assert.Equal(t, generateSignature(d.body, "s3cr3t"), d.header.Get("X-Webhook-Signature"))

	var event OutboundWebhookEvent
	require.NoError(t, json.Unmarshal(d.body, &event))
	assert.Equal(t, "engine", event.Source)
	assert.JSONEq(t, `{"snapshot":"abc"}`, string(event.Data))
}

func TestWebhookRetriesUntilSuccess(t *testing.T) {
	srv, deliveries, calls := recorder(t, 2)
	owm := startManager(t)

	hook, err := owm.AddWebhook(OutboundWebhook{Name: "flaky", URL: srv.URL, Events: []string{"*"}})
	require.NoError(t, err)
	assert.Equal(t, 3, hook.RetryCount)

	owm.SendEvent(eventbus.EventWorldLoaded, "engine", nil)
	d := waitDelivery(t, deliveries)
	assert.Empty(t, d.header.Get("X-Webhook-Signature"))
	assert.Equal(t, int32(3), calls.Load())

	require.Eventually(t, func() bool {
		stored, ok := owm.GetWebhook(hook.ID)
		return ok && stored.LastUsed != nil
	}, 2*time.Second, 5*time.Millisecond)
	stored, _ := owm.GetWebhook(hook.ID)
	assert.Zero(t, stored.FailureCount)
}

func TestWebhookFailureIsCounted(t *testing.T) {
	srv, _, calls := recorder(t, 100)
	owm := startManager(t)

	hook, err := owm.AddWebhook(OutboundWebhook{Name: "down", URL: srv.URL, Events: []string{"*"}, RetryCount: 1})
	require.NoError(t, err)

	owm.SendEvent(eventbus.EventWorldLoaded, "engine", nil)
	require.Eventually(t, func() bool {
		stored, _ := owm.GetWebhook(hook.ID)
		return stored.FailureCount == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load(), "Одна попытка и один повтор")
}

func TestWebhookAttachBus(t *testing.T) {
	srv, deliveries, _ := recorder(t, 0)
	owm := startManager(t)
	_, err := owm.AddWebhook(OutboundWebhook{Name: "all", URL: srv.URL, Events: []string{"*"}})
	require.NoError(t, err)

	bus := eventbus.NewMemoryBus(16)
	t.Cleanup(func() { bus.Close() })
	sub, err := owm.AttachBus(context.Background(), bus)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ev, err := eventbus.NewEnvelope("engine", eventbus.EventChunksModified, 5, map[string]int{"total": 2})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	d := waitDelivery(t, deliveries)
	assert.Equal(t, eventbus.EventChunksModified, d.header.Get("X-Event-Type"))
}

func TestAddWebhookValidation(t *testing.T) {
	owm := NewOutboundWebhookManager("main", nil)

	_, err := owm.AddWebhook(OutboundWebhook{Name: "x", URL: "not a url", Events: []string{"*"}})
	assert.ErrorIs(t, err, ErrInvalidWebhook)
	_, err = owm.AddWebhook(OutboundWebhook{Name: "x", URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrInvalidWebhook)

	first, err := owm.AddWebhook(OutboundWebhook{Name: "a", URL: "https://example.com/a", Events: []string{"*"}})
	require.NoError(t, err)
	second, err := owm.AddWebhook(OutboundWebhook{Name: "b", URL: "https://example.com/b", Events: []string{"*"}, Timeout: 5})
	require.NoError(t, err)
	assert.Equal(t, 30, first.Timeout)
	assert.Equal(t, 5, second.Timeout)

	list := owm.GetWebhooks()
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)

	assert.True(t, owm.DeleteWebhook(first.ID))
	assert.False(t, owm.DeleteWebhook(first.ID))
	_, ok := owm.GetWebhook(first.ID)
	assert.False(t, ok)
}
