package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/opolis/payledger/internal/events/webhook"
	"github.com/opolis/payledger/internal/ledger"
	"go.uber.org/zap"
)

const secret = "0123456789abcdef-webhook"

type received struct {
	mu     sync.Mutex
	bodies [][]byte
	sigs   []string
}

func (r *received) add(body []byte, sig string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = append(r.bodies, body)
	r.sigs = append(r.sigs, sig)
}

func (r *received) snapshot() ([][]byte, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.bodies...), append([]string(nil), r.sigs...)
}

func newDispatcher(t *testing.T, urls ...string) *webhook.Dispatcher {
	t.Helper()
	d, err := webhook.New(webhook.Config{
		URLs:    urls,
		Secret:  secret,
		Backoff: []time.Duration{time.Millisecond, time.Millisecond},
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestPublish_signedDelivery(t *testing.T) {
	var got received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.add(body, r.Header.Get(webhook.SignatureHeader))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := newDispatcher(t, srv.URL)
	ev := ledger.Event{
		Kind:      ledger.EventPaid,
		Caller:    common.HexToAddress("0x0e0e"),
		Asset:     common.HexToAddress("0xa1"),
		PayrollID: 7,
		Amount:    uint256.NewInt(2500),
	}
	if err := d.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	d.Close()

	bodies, sigs := got.snapshot()
	if len(bodies) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(bodies))
	}
	if want := webhook.Sign(bodies[0], []byte(secret)); sigs[0] != want {
		t.Errorf("signature: got %q, want %q", sigs[0], want)
	}

	var n webhook.Notification
	if err := json.Unmarshal(bodies[0], &n); err != nil {
		t.Fatalf("decode notification: %v", err)
	}
	if n.Type != "ledger.Paid" {
		t.Errorf("type: got %q", n.Type)
	}
	var data ledger.Event
	if err := json.Unmarshal(n.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.PayrollID != 7 || data.Amount == nil || data.Amount.Uint64() != 2500 {
		t.Errorf("data: got %+v", data)
	}
}

func TestPublish_retriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newDispatcher(t, srv.URL)
	var mu sync.Mutex
	var outcomes []bool
	d.SetMetricsRecorder(func(success bool) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, success)
	})

	if err := d.Publish(context.Background(), ledger.Event{Kind: ledger.EventNewTokens}); err != nil {
		t.Fatal(err)
	}
	d.Close()

	if n := calls.Load(); n != 3 {
		t.Errorf("attempts: got %d, want 3", n)
	}
	if len(outcomes) != 3 || outcomes[0] || outcomes[1] || !outcomes[2] {
		t.Errorf("metrics outcomes: got %v", outcomes)
	}
}

func TestAlert(t *testing.T) {
	var got received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.add(body, r.Header.Get(webhook.SignatureHeader))
	}))
	defer srv.Close()

	d := newDispatcher(t, srv.URL)
	d.Alert(context.Background(), "solvency", errors.New("custody short"))
	d.Close()

	bodies, _ := got.snapshot()
	if len(bodies) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(bodies))
	}
	var n webhook.Notification
	if err := json.Unmarshal(bodies[0], &n); err != nil {
		t.Fatal(err)
	}
	var data map[string]string
	if err := json.Unmarshal(n.Data, &data); err != nil {
		t.Fatal(err)
	}
	if n.Type != webhook.TypeHealthDegraded || data["probe"] != "solvency" || data["error"] != "custody short" {
		t.Errorf("alert: type=%q data=%v", n.Type, data)
	}
}

func TestClose_waitsForPendingDeliveries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := newDispatcher(t, srv.URL)
	if err := d.Publish(context.Background(), ledger.Event{Kind: ledger.EventNewAdmin}); err != nil {
		t.Fatal(err)
	}
	d.Close()

	if n := calls.Load(); n != 2 {
		t.Errorf("Close returned before the retry finished: %d attempts", n)
	}
	if err := d.Publish(context.Background(), ledger.Event{Kind: ledger.EventNewAdmin}); !errors.Is(err, webhook.ErrClosed) {
		t.Errorf("publish after close: got %v, want ErrClosed", err)
	}
}

func TestNew_validation(t *testing.T) {
	if _, err := webhook.New(webhook.Config{Secret: secret}, zap.NewNop()); err == nil {
		t.Error("expected error without URLs")
	}
	if _, err := webhook.New(webhook.Config{URLs: []string{"http://x"}, Secret: "short"}, zap.NewNop()); err == nil {
		t.Error("expected error with short secret")
	}
}
