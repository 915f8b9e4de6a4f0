package health

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type switchProbe struct {
	mu  sync.Mutex
	err error
}

func (s *switchProbe) set(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *switchProbe) Check(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

type stubBooks struct {
	owed map[common.Address]*uint256.Int
	held map[common.Address]*uint256.Int
}

func (b *stubBooks) Outstanding() map[common.Address]*uint256.Int { return b.owed }

func (b *stubBooks) CustodyBalance(_ context.Context, asset common.Address) (*uint256.Int, error) {
	if v, ok := b.held[asset]; ok {
		return v, nil
	}
	return new(uint256.Int), nil
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheckAll_degradesAfterThreshold(t *testing.T) {
	p := &switchProbe{err: errors.New("connection refused")}
	checker := New([]Probe{{Name: "postgres", Check: p.Check}}, Config{FailThreshold: 3}, zap.NewNop())

	var degraded []string
	checker.SetDegradedHook(func(_ context.Context, probe string, _ error) {
		degraded = append(degraded, probe)
	})

	if ready, st := checker.Status(); !ready || st[0].Status != StatusUnknown {
		t.Fatalf("before first check: ready=%v status=%+v", ready, st)
	}

	for i := 1; i <= 2; i++ {
		checker.CheckAll(context.Background())
		ready, st := checker.Status()
		if !ready || st[0].Status != StatusHealthy || st[0].FailCount != i {
			t.Errorf("round %d: ready=%v status=%+v", i, ready, st[0])
		}
	}

	checker.CheckAll(context.Background())
	ready, st := checker.Status()
	if ready || st[0].Status != StatusDegraded {
		t.Errorf("after threshold: ready=%v status=%+v", ready, st[0])
	}
	if st[0].LastError != "connection refused" {
		t.Errorf("last error: got %q", st[0].LastError)
	}
	if len(degraded) != 1 || degraded[0] != "postgres" {
		t.Errorf("degraded hook: got %v", degraded)
	}

	// Hook fires only on the transition.
	checker.CheckAll(context.Background())
	if len(degraded) != 1 {
		t.Errorf("hook fired again: %v", degraded)
	}
}

func TestCheckAll_recovers(t *testing.T) {
	p := &switchProbe{err: errors.New("down")}
	checker := New([]Probe{{Name: "journal", Check: p.Check}}, Config{FailThreshold: 1}, zap.NewNop())

	checker.CheckAll(context.Background())
	if ready, _ := checker.Status(); ready {
		t.Fatal("expected degraded")
	}

	p.set(nil)
	checker.CheckAll(context.Background())
	ready, st := checker.Status()
	if !ready || st[0].Status != StatusHealthy || st[0].FailCount != 0 || st[0].LastError != "" {
		t.Errorf("after recovery: ready=%v status=%+v", ready, st[0])
	}
}

func TestCheckAll_recordsMetrics(t *testing.T) {
	ok := &switchProbe{}
	bad := &switchProbe{err: errors.New("x")}
	checker := New([]Probe{
		{Name: "a", Check: ok.Check},
		{Name: "b", Check: bad.Check},
	}, Config{}, zap.NewNop())

	var mu sync.Mutex
	results := map[string]bool{}
	checker.SetMetricsRecord(func(probe string, success bool) {
		mu.Lock()
		defer mu.Unlock()
		results[probe] = success
	})

	checker.CheckAll(context.Background())
	if !results["a"] || results["b"] {
		t.Errorf("metrics: got %v", results)
	}

	_, st := checker.Status()
	if len(st) != 2 || st[0].Name != "a" || st[1].Name != "b" {
		t.Errorf("status order: got %+v", st)
	}
}

func TestSolvencyProbe(t *testing.T) {
	asset := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	books := &stubBooks{
		owed: map[common.Address]*uint256.Int{asset: uint256.NewInt(100)},
		held: map[common.Address]*uint256.Int{asset: uint256.NewInt(100)},
	}
	probe := SolvencyProbe(books)

	if err := probe.Check(context.Background()); err != nil {
		t.Errorf("covered: unexpected error %v", err)
	}

	books.held[asset] = uint256.NewInt(99)
	if err := probe.Check(context.Background()); !errors.Is(err, ErrInsolvent) {
		t.Errorf("short: expected ErrInsolvent, got %v", err)
	}
}
