package journal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/opolis/payledger/internal/journal"
	"github.com/opolis/payledger/internal/ledger"
	"github.com/opolis/payledger/internal/vault"
	"go.uber.org/zap"
)

var ctx = context.Background()

func TestNewMemory_genesisEntry(t *testing.T) {
	j := journal.NewMemory()

	n, err := j.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 genesis entry, got %d", n)
	}

	entry, err := j.Get(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Action != journal.ActionGenesis {
		t.Errorf("expected action 'genesis', got %q", entry.Action)
	}
	if entry.Hash != journal.GenesisHash {
		t.Errorf("genesis hash: got %q, want GenesisHash", entry.Hash)
	}
}

func TestAppend_chainsCorrectly(t *testing.T) {
	j := journal.NewMemory()

	e1, err := j.Append(ctx, "Paid", "0x01", map[string]string{"key": "val"})
	if err != nil {
		t.Fatal(err)
	}
	e2, err := j.Append(ctx, "OpsPayrollWithdraw", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	if e2.PrevHash != e1.Hash {
		t.Errorf("chain broken: e2.PrevHash=%q, want e1.Hash=%q", e2.PrevHash, e1.Hash)
	}

	n, err := j.Len(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 { // genesis + 2
		t.Errorf("expected 3 entries, got %d", n)
	}

	root, err := j.Root(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if root != e2.Hash {
		t.Errorf("Root(): got %q, want %q", root, e2.Hash)
	}
}

func TestVerify(t *testing.T) {
	j := journal.NewMemory()
	if err := j.Verify(ctx); err != nil {
		t.Errorf("Verify() on genesis-only chain should pass: %v", err)
	}

	_, _ = j.Append(ctx, "Paid", "0x01", nil)
	e, _ := j.Append(ctx, "Paid", "0x02", nil)
	if err := j.Verify(ctx); err != nil {
		t.Errorf("Verify() failed on valid chain: %v", err)
	}

	e.Actor = "0x03"
	if err := j.Verify(ctx); err == nil {
		t.Error("Verify() should detect a tampered entry")
	}
}

func TestList_pages(t *testing.T) {
	j := journal.NewMemory()
	for i := 0; i < 5; i++ {
		if _, err := j.Append(ctx, "Paid", "", i); err != nil {
			t.Fatal(err)
		}
	}

	page, err := j.List(ctx, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 || page[0].Index != 2 || page[2].Index != 4 {
		t.Errorf("unexpected page: %d entries", len(page))
	}

	page, _ = j.List(ctx, 5, 10)
	if len(page) != 1 {
		t.Errorf("tail page: got %d entries, want 1", len(page))
	}
	page, _ = j.List(ctx, 50, 10)
	if len(page) != 0 {
		t.Errorf("past end: got %d entries", len(page))
	}
}

func TestHistory_restoresLedger(t *testing.T) {
	var (
		token   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
		admin   = common.HexToAddress("0x0000000000000000000000000000000000000a0a")
		custody = common.HexToAddress("0x0000000000000000000000000000000000000c0c")
		member  = common.HexToAddress("0x0000000000000000000000000000000000000e0e")
	)

	j := journal.NewMemory()
	v := vault.NewMemoryVault()
	_ = v.Mint(ctx, token, member, uint256.NewInt(1000))
	_ = v.Approve(ctx, token, member, custody, uint256.NewInt(1000))

	l, err := ledger.New(ctx, ledger.Config{
		Destination: common.HexToAddress("0x0000000000000000000000000000000000000d0d"),
		Admin:       admin,
		Helper:      common.HexToAddress("0x0000000000000000000000000000000000000b0b"),
		Custody:     custody,
		Assets:      []common.Address{token},
	}, journal.NewMemoryStore(v, j), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := l.SubmitPayroll(ctx, member, token, uint256.NewInt(400), 11); err != nil {
		t.Fatal(err)
	}
	if _, err := l.SubmitStake(ctx, member, token, uint256.NewInt(600), 3, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := l.WithdrawPayrolls(ctx, admin, []uint64{11}, []common.Address{token}, []*uint256.Int{uint256.NewInt(400)}); err != nil {
		t.Fatal(err)
	}

	paid, err := j.Get(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if paid.Action != "Paid" || paid.Actor != member.Hex() {
		t.Errorf("unexpected journal entry: action=%q actor=%q", paid.Action, paid.Actor)
	}

	history, err := journal.History(ctx, j)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 4 {
		t.Fatalf("expected 4 events, got %d", len(history))
	}
	if history[1].Amount.Uint64() != 400 {
		t.Errorf("decoded amount: got %s", history[1].Amount)
	}

	restored, err := ledger.Restore(custody, journal.NewMemoryStore(v, j), zap.NewNop(), history)
	if err != nil {
		t.Fatal(err)
	}
	rec, ok := restored.Payroll(11)
	if !ok || !rec.Remaining.IsZero() {
		t.Errorf("restored payroll: %+v ok=%v", rec, ok)
	}
	stake, ok := restored.Stake(3, 1)
	if !ok || stake.Remaining.Uint64() != 600 {
		t.Errorf("restored stake: %+v ok=%v", stake, ok)
	}
	if restored.StakeCount(3) != 1 {
		t.Errorf("restored counter: %d", restored.StakeCount(3))
	}
	if err := j.Verify(ctx); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestMemoryStore_commitsTransfersWithEntries(t *testing.T) {
	var (
		token = common.HexToAddress("0x00000000000000000000000000000000000000a1")
		from  = common.HexToAddress("0x0000000000000000000000000000000000000c0c")
		to    = common.HexToAddress("0x0000000000000000000000000000000000000d0d")
	)

	j := journal.NewMemory()
	v := vault.NewMemoryVault()
	s := journal.NewMemoryStore(v, j)
	appended := 0
	s.SetAppendHook(func() { appended++ })

	transfers := []vault.Transfer{{Kind: vault.KindPush, Asset: token, From: from, To: to, Amount: uint256.NewInt(5)}}
	events := []ledger.Event{{Kind: ledger.EventBalanceCleared, Asset: token, Amount: uint256.NewInt(5)}}

	if err := s.Commit(ctx, transfers, events); !errors.Is(err, vault.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if n, _ := j.Len(ctx); n != 1 || appended != 0 {
		t.Fatalf("failed batch was journaled: len=%d appended=%d", n, appended)
	}

	if err := v.Mint(ctx, token, from, uint256.NewInt(5)); err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(ctx, transfers, events); err != nil {
		t.Fatal(err)
	}
	if n, _ := j.Len(ctx); n != 2 || appended != 1 {
		t.Errorf("after commit: len=%d appended=%d", n, appended)
	}
	bal, err := s.BalanceOf(ctx, token, to)
	if err != nil || bal.Uint64() != 5 {
		t.Errorf("recipient balance: %v %v", bal, err)
	}
	history, err := journal.History(ctx, j)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Kind != ledger.EventBalanceCleared || history[0].Amount.Uint64() != 5 {
		t.Errorf("unexpected history %+v", history)
	}
	if err := j.Verify(ctx); err != nil {
		t.Errorf("Verify: %v", err)
	}
}
