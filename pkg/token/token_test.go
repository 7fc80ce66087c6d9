package token

import (
	"encoding/json"
	"path"
	"testing"
	"time"

	"tokenbank/pkg/asset"
	"tokenbank/pkg/filedb"
	"tokenbank/pkg/xnats"

	"github.com/google/btree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()

	fdb, err := filedb.New(path.Join(t.TempDir(), "token.log"))
	require.Nil(t, err)

	w := &Worker{
		Name:     "token",
		Stats:    map[string]*StatState{},
		Balances: btree.NewG(32, balanceLess),
		Lockups:  map[string]map[string]*LockState{},
		Plans:    map[string]map[string]*PlanState{},
		Users:    map[string]bool{"alice": true, "bob": true, "issuer": true, "ledger": true},
		Owner:    "ledger",
		ch:       make(chan TokenMsg, 16),
		fdb:      fdb,
	}
	w.Now = func() time.Time { return testNow }
	w.IsAccount = func(name string) bool { return w.Users[name] }

	return w
}

func auths(names ...string) []string { return names }

func mustBalance(t *testing.T, w *Worker, owner, code, want string) {
	t.Helper()
	item, ok := w.balanceOf(owner, code)
	require.True(t, ok, "balance row %s/%s missing", owner, code)
	require.True(t, item.Amount.Equal(decimal.RequireFromString(want)),
		"balance %s/%s = %s, want %s", owner, code, item.Amount, want)
}

func TestCreateAndIssue(t *testing.T) {
	w := newTestWorker(t)
	maxSupply := asset.MustParse("1000.0000 TOK")

	// only the ledger owner registers symbols
	err := w.Create(1, auths("issuer"), "issuer", maxSupply)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = w.Create(1, auths("ledger"), "issuer", maxSupply)
	require.Nil(t, err)

	err = w.Create(2, auths("ledger"), "issuer", maxSupply)
	require.ErrorIs(t, err, ErrAlreadyExists)

	st := w.Stats["TOK"]
	require.NotNil(t, st)
	require.True(t, st.Supply.IsZero())
	require.Equal(t, "issuer", st.Issuer)

	// issue to the issuer itself
	err = w.Issue(3, auths("issuer"), "issuer", asset.MustParse("500.0000 TOK"), "")
	require.Nil(t, err)
	require.True(t, st.Supply.Equal(decimal.RequireFromString("500")))
	mustBalance(t, w, "issuer", "TOK", "500")

	// issuing beyond max supply is rejected without side effects
	err = w.Issue(4, auths("issuer"), "issuer", asset.MustParse("600.0000 TOK"), "")
	require.ErrorIs(t, err, ErrSupplyExceeded)
	require.True(t, st.Supply.Equal(decimal.RequireFromString("500")))

	// only the issuer may issue
	err = w.Issue(5, auths("alice"), "alice", asset.MustParse("1.0000 TOK"), "")
	require.ErrorIs(t, err, ErrUnauthorized)

	err = w.Issue(6, auths("issuer"), "issuer", asset.MustParse("1.0000 ZZZ"), "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIssueForwardsToReceiver(t *testing.T) {
	w := newTestWorker(t)
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))

	err := w.Issue(2, auths("issuer"), "alice", asset.MustParse("300.0000 TOK"), "grant")
	require.Nil(t, err)

	mustBalance(t, w, "alice", "TOK", "300")
	item, ok := w.balanceOf("issuer", "TOK")
	require.True(t, ok)
	require.True(t, item.Amount.IsZero())
	require.True(t, w.Stats["TOK"].Supply.Equal(decimal.RequireFromString("300")))

	// issuing to an unknown account leaves nothing behind
	err = w.Issue(3, auths("issuer"), "nobody", asset.MustParse("10.0000 TOK"), "")
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.True(t, w.Stats["TOK"].Supply.Equal(decimal.RequireFromString("300")))
	item, _ = w.balanceOf("issuer", "TOK")
	require.True(t, item.Amount.IsZero())
}

func TestTransfer(t *testing.T) {
	w := newTestWorker(t)
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))
	require.Nil(t, w.Issue(2, auths("issuer"), "alice", asset.MustParse("500.0000 TOK"), ""))

	err := w.Transfer(3, auths("alice"), "alice", "alice", asset.MustParse("1.0000 TOK"), "")
	require.ErrorIs(t, err, ErrSelfTransfer)

	err = w.Transfer(3, auths("bob"), "alice", "bob", asset.MustParse("1.0000 TOK"), "")
	require.ErrorIs(t, err, ErrUnauthorized)

	err = w.Transfer(3, auths("alice"), "alice", "nobody", asset.MustParse("1.0000 TOK"), "")
	require.ErrorIs(t, err, ErrAccountNotFound)

	err = w.Transfer(3, auths("alice"), "alice", "bob", asset.MustParse("600.0000 TOK"), "")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	longMemo := make([]byte, MaxMemoLen+1)
	err = w.Transfer(3, auths("alice"), "alice", "bob", asset.MustParse("1.0000 TOK"), string(longMemo))
	require.ErrorIs(t, err, ErrMemoTooLong)

	err = w.Transfer(3, auths("alice"), "alice", "bob", asset.MustParse("200.0000 TOK"), "rent")
	require.Nil(t, err)
	mustBalance(t, w, "alice", "TOK", "300")
	mustBalance(t, w, "bob", "TOK", "200")

	// the receiving row is billed to from unless to also consented
	item, _ := w.balanceOf("bob", "TOK")
	require.Equal(t, "alice", item.Payer)

	err = w.Transfer(4, auths("bob", "ledger"), "bob", "ledger", asset.MustParse("10.0000 TOK"), "")
	require.Nil(t, err)
	item, _ = w.balanceOf("ledger", "TOK")
	require.Equal(t, "ledger", item.Payer)
}

func TestRetireAndDecreaseMaxSupply(t *testing.T) {
	w := newTestWorker(t)
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))
	require.Nil(t, w.Issue(2, auths("issuer"), "issuer", asset.MustParse("500.0000 TOK"), ""))

	err := w.Retire(3, auths("alice"), asset.MustParse("100.0000 TOK"), "")
	require.ErrorIs(t, err, ErrUnauthorized)

	err = w.Retire(3, auths("issuer"), asset.MustParse("600.0000 TOK"), "")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	err = w.Retire(3, auths("issuer"), asset.MustParse("100.0000 TOK"), "burn")
	require.Nil(t, err)
	require.True(t, w.Stats["TOK"].Supply.Equal(decimal.RequireFromString("400")))
	mustBalance(t, w, "issuer", "TOK", "400")

	// the ceiling may not drop below the circulating supply
	err = w.DecreaseMaxSupply(4, auths("issuer"), asset.MustParse("700.0000 TOK"), "")
	require.ErrorIs(t, err, ErrSupplyExceeded)

	err = w.DecreaseMaxSupply(4, auths("issuer"), asset.MustParse("500.0000 TOK"), "")
	require.Nil(t, err)
	require.True(t, w.Stats["TOK"].MaxSupply.Equal(decimal.RequireFromString("500")))

	// even a cut past zero is the same rejection
	err = w.DecreaseMaxSupply(5, auths("issuer"), asset.MustParse("600.0000 TOK"), "")
	require.ErrorIs(t, err, ErrSupplyExceeded)
}

func TestOpenAndClose(t *testing.T) {
	w := newTestWorker(t)
	sym := asset.Symbol{Code: "TOK", Precision: 4}
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))

	err := w.Open(2, auths("bob"), "alice", sym, "bob")
	require.Nil(t, err)
	mustBalance(t, w, "alice", "TOK", "0")
	item, _ := w.balanceOf("alice", "TOK")
	require.Equal(t, "bob", item.Payer)

	// opening an already open balance changes nothing
	err = w.Open(3, auths("alice"), "alice", sym, "alice")
	require.Nil(t, err)
	item, _ = w.balanceOf("alice", "TOK")
	require.Equal(t, "bob", item.Payer)

	err = w.Open(3, auths("alice"), "nobody", sym, "alice")
	require.ErrorIs(t, err, ErrAccountNotFound)

	err = w.Close(4, auths("bob"), "alice", sym)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.Nil(t, w.Issue(5, auths("issuer"), "alice", asset.MustParse("10.0000 TOK"), ""))
	err = w.Close(6, auths("alice"), "alice", sym)
	require.ErrorIs(t, err, ErrNotEmpty)

	require.Nil(t, w.Transfer(7, auths("alice"), "alice", "bob", asset.MustParse("10.0000 TOK"), ""))
	err = w.Close(8, auths("alice"), "alice", sym)
	require.Nil(t, err)
	_, ok := w.balanceOf("alice", "TOK")
	require.False(t, ok)

	err = w.Close(9, auths("alice"), "alice", sym)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLockupRestrictsTransfers(t *testing.T) {
	w := newTestWorker(t)
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))
	require.Nil(t, w.Issue(2, auths("issuer"), "alice", asset.MustParse("500.0000 TOK"), ""))

	expire := testNow.Add(30 * 24 * time.Hour)
	err := w.Lockup(3, auths("alice"), "alice", asset.MustParse("300.0000 TOK"), expire, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	err = w.Lockup(3, auths("issuer"), "alice", asset.MustParse("300.0000 TOK"), expire, "vesting")
	require.Nil(t, err)

	// 500 held, 300 locked: 250 dips into the lock, 200 does not
	err = w.Transfer(4, auths("alice"), "alice", "bob", asset.MustParse("250.0000 TOK"), "")
	require.ErrorIs(t, err, ErrLockedFundsInsufficient)

	err = w.Transfer(4, auths("alice"), "alice", "bob", asset.MustParse("200.0000 TOK"), "")
	require.Nil(t, err)
	mustBalance(t, w, "alice", "TOK", "300")

	// everything left is locked now
	err = w.Transfer(5, auths("alice"), "alice", "bob", asset.MustParse("0.0001 TOK"), "")
	require.ErrorIs(t, err, ErrLockedFundsInsufficient)

	// only transfers are restricted, the issuer can burn into its own lock
	require.Nil(t, w.Issue(6, auths("issuer"), "issuer", asset.MustParse("100.0000 TOK"), ""))
	require.Nil(t, w.Lockup(7, auths("issuer"), "issuer", asset.MustParse("100.0000 TOK"), expire, ""))
	err = w.Retire(8, auths("issuer"), asset.MustParse("50.0000 TOK"), "")
	require.Nil(t, err)
	mustBalance(t, w, "issuer", "TOK", "50")
	require.True(t, w.Stats["TOK"].Supply.Equal(decimal.RequireFromString("550")))
}

func TestExpiredLockupStopsRestricting(t *testing.T) {
	w := newTestWorker(t)
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))
	require.Nil(t, w.Issue(2, auths("issuer"), "alice", asset.MustParse("500.0000 TOK"), ""))

	expire := testNow.Add(time.Hour)
	require.Nil(t, w.Lockup(3, auths("issuer"), "alice", asset.MustParse("500.0000 TOK"), expire, ""))

	err := w.Transfer(4, auths("alice"), "alice", "bob", asset.MustParse("100.0000 TOK"), "")
	require.ErrorIs(t, err, ErrLockedFundsInsufficient)

	// past the expiry the lock row remains but no longer restricts
	w.Now = func() time.Time { return expire.Add(time.Second) }
	err = w.Transfer(4, auths("alice"), "alice", "bob", asset.MustParse("100.0000 TOK"), "")
	require.Nil(t, err)
	require.NotNil(t, w.getLock("alice", "TOK"))
}

func TestLockupEraseForms(t *testing.T) {
	w := newTestWorker(t)
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))
	require.Nil(t, w.Issue(2, auths("issuer"), "alice", asset.MustParse("500.0000 TOK"), ""))

	expire := testNow.Add(24 * time.Hour)
	require.Nil(t, w.Lockup(3, auths("issuer"), "alice", asset.MustParse("300.0000 TOK"), expire, ""))
	require.Nil(t, w.PlanUnlock(4, auths("issuer"), "alice", asset.MustParse("100.0000 TOK"), testNow, 24, ""))

	// a zero quantity erases the lock and takes the plan with it
	require.Nil(t, w.Lockup(5, auths("issuer"), "alice", asset.MustParse("0.0000 TOK"), expire, ""))
	require.Nil(t, w.getLock("alice", "TOK"))
	require.Nil(t, w.getPlan("alice", "TOK"))

	// an expiry in the past is the other erase form
	require.Nil(t, w.Lockup(6, auths("issuer"), "alice", asset.MustParse("300.0000 TOK"), expire, ""))
	require.Nil(t, w.Lockup(7, auths("issuer"), "alice", asset.MustParse("300.0000 TOK"), testNow.Add(-time.Hour), ""))
	require.Nil(t, w.getLock("alice", "TOK"))

	// erasing when nothing exists is a quiet no-op
	require.Nil(t, w.Lockup(8, auths("issuer"), "alice", asset.MustParse("0.0000 TOK"), expire, ""))
}

func TestClaimUnlockDrainsLock(t *testing.T) {
	w := newTestWorker(t)
	sym := asset.Symbol{Code: "TOK", Precision: 4}
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))
	require.Nil(t, w.Issue(2, auths("issuer"), "alice", asset.MustParse("500.0000 TOK"), ""))

	expire := testNow.Add(365 * 24 * time.Hour)
	require.Nil(t, w.Lockup(3, auths("issuer"), "alice", asset.MustParse("300.0000 TOK"), expire, ""))

	firstRelease := testNow.Add(-time.Hour)
	require.Nil(t, w.PlanUnlock(4, auths("issuer"), "alice", asset.MustParse("100.0000 TOK"), firstRelease, 24, ""))

	err := w.ClaimUnlock(5, auths("issuer"), "alice", sym)
	require.ErrorIs(t, err, ErrUnauthorized)

	err = w.ClaimUnlock(5, auths("alice"), "alice", sym)
	require.Nil(t, err)
	lk := w.getLock("alice", "TOK")
	require.True(t, lk.Amount.Equal(decimal.RequireFromString("200")))

	// the next installment is a full span away
	err = w.ClaimUnlock(6, auths("alice"), "alice", sym)
	require.ErrorIs(t, err, ErrTooEarly)

	w.Now = func() time.Time { return firstRelease.Add(25 * time.Hour) }
	require.Nil(t, w.ClaimUnlock(7, auths("alice"), "alice", sym))
	lk = w.getLock("alice", "TOK")
	require.True(t, lk.Amount.Equal(decimal.RequireFromString("100")))

	// the last claim drains the lock and removes both rows
	w.Now = func() time.Time { return firstRelease.Add(49 * time.Hour) }
	require.Nil(t, w.ClaimUnlock(8, auths("alice"), "alice", sym))
	require.Nil(t, w.getLock("alice", "TOK"))
	require.Nil(t, w.getPlan("alice", "TOK"))

	err = w.ClaimUnlock(9, auths("alice"), "alice", sym)
	require.ErrorIs(t, err, ErrPlanNotFound)
}

func TestClaimUnlockClampsUnevenDrain(t *testing.T) {
	w := newTestWorker(t)
	sym := asset.Symbol{Code: "TOK", Precision: 4}
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))
	require.Nil(t, w.Issue(2, auths("issuer"), "alice", asset.MustParse("500.0000 TOK"), ""))

	expire := testNow.Add(365 * 24 * time.Hour)
	require.Nil(t, w.Lockup(3, auths("issuer"), "alice", asset.MustParse("250.0000 TOK"), expire, ""))
	require.Nil(t, w.PlanUnlock(4, auths("issuer"), "alice", asset.MustParse("100.0000 TOK"), testNow.Add(-time.Hour), 24, ""))

	require.Nil(t, w.ClaimUnlock(5, auths("alice"), "alice", sym))
	require.True(t, w.getLock("alice", "TOK").Amount.Equal(decimal.RequireFromString("150")))

	w.Now = func() time.Time { return testNow.Add(24 * time.Hour) }
	require.Nil(t, w.ClaimUnlock(6, auths("alice"), "alice", sym))
	require.True(t, w.getLock("alice", "TOK").Amount.Equal(decimal.RequireFromString("50")))

	// 50 left against a 100 installment clamps to zero and removes both rows
	w.Now = func() time.Time { return testNow.Add(48 * time.Hour) }
	require.Nil(t, w.ClaimUnlock(7, auths("alice"), "alice", sym))
	require.Nil(t, w.getLock("alice", "TOK"))
	require.Nil(t, w.getPlan("alice", "TOK"))
}

func TestPlanUnlockForms(t *testing.T) {
	w := newTestWorker(t)
	sym := asset.Symbol{Code: "TOK", Precision: 4}
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))

	err := w.PlanUnlock(2, auths("alice"), "alice", asset.MustParse("100.0000 TOK"), testNow, 24, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	err = w.PlanUnlock(2, auths("issuer"), "alice", asset.MustParse("-1.0000 TOK"), testNow, 24, "")
	require.ErrorIs(t, err, ErrInvalidAmount)

	// a plan may exist without a lock, but claiming needs the lock
	require.Nil(t, w.PlanUnlock(3, auths("issuer"), "alice", asset.MustParse("100.0000 TOK"), testNow.Add(-time.Hour), 24, ""))
	err = w.ClaimUnlock(4, auths("alice"), "alice", sym)
	require.ErrorIs(t, err, ErrPlanNotFound)

	// replace updates in place
	require.Nil(t, w.PlanUnlock(5, auths("issuer"), "alice", asset.MustParse("50.0000 TOK"), testNow, 12, ""))
	p := w.getPlan("alice", "TOK")
	require.True(t, p.Quantity.Equal(decimal.RequireFromString("50")))
	require.Equal(t, uint32(12), p.SpanHour)

	// zero quantity erases
	require.Nil(t, w.PlanUnlock(6, auths("issuer"), "alice", asset.MustParse("0.0000 TOK"), testNow, 0, ""))
	require.Nil(t, w.getPlan("alice", "TOK"))

	// a lock without a plan cannot be claimed either
	expire := testNow.Add(24 * time.Hour)
	require.Nil(t, w.Lockup(7, auths("issuer"), "alice", asset.MustParse("100.0000 TOK"), expire, ""))
	err = w.ClaimUnlock(8, auths("alice"), "alice", sym)
	require.ErrorIs(t, err, ErrPlanNotFound)

	// a zero span is stored as-is, claiming then never advances the window
	require.Nil(t, w.PlanUnlock(9, auths("issuer"), "alice", asset.MustParse("40.0000 TOK"), testNow, 0, ""))
	require.Nil(t, w.ClaimUnlock(10, auths("alice"), "alice", sym))
	require.True(t, w.getLock("alice", "TOK").Amount.Equal(decimal.RequireFromString("60")))
	require.True(t, w.getPlan("alice", "TOK").NextTime.Equal(testNow))
}

func TestSupplyInvariantHolds(t *testing.T) {
	w := newTestWorker(t)
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))
	require.Nil(t, w.Issue(2, auths("issuer"), "alice", asset.MustParse("500.0000 TOK"), ""))
	require.Nil(t, w.Transfer(3, auths("alice"), "alice", "bob", asset.MustParse("123.4567 TOK"), ""))
	require.Nil(t, w.Issue(4, auths("issuer"), "issuer", asset.MustParse("50.0000 TOK"), ""))
	require.Nil(t, w.Retire(5, auths("issuer"), asset.MustParse("10.0000 TOK"), ""))

	sum, ok := w.CheckSupplyInvariant("TOK")
	require.True(t, ok, "sum(balances)=%s, supply=%s", sum, w.Stats["TOK"].Supply)
}

func TestJournalRecordsEveryCommit(t *testing.T) {
	w := newTestWorker(t)
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))
	require.Nil(t, w.Issue(2, auths("issuer"), "alice", asset.MustParse("500.0000 TOK"), ""))
	require.Nil(t, w.Transfer(3, auths("alice"), "alice", "bob", asset.MustParse("100.0000 TOK"), "rent"))

	// a rejected operation must not touch the journal
	err := w.Transfer(4, auths("alice"), "alice", "bob", asset.MustParse("9999.0000 TOK"), "")
	require.ErrorIs(t, err, ErrInsufficientBalance)

	s, err := w.fdb.ReadLastLine()
	require.Nil(t, err)

	var tl TokenLog
	require.Nil(t, json.Unmarshal([]byte(s), &tl))
	require.Equal(t, int64(3), tl.LogID)
	require.Equal(t, uint64(3), tl.MsgSeq)
	require.Equal(t, xnats.ActionTransfer, tl.Action)
	require.Len(t, tl.BalanceLogs, 2)
	require.Equal(t, int64(3), w.LogID)
}

func TestApplyParsesActionReqs(t *testing.T) {
	w := newTestWorker(t)

	err := w.Apply(1, &xnats.ActionReq{
		Action:   xnats.ActionCreate,
		Auths:    auths("ledger"),
		Issuer:   "issuer",
		Quantity: "1000.0000 TOK",
	})
	require.Nil(t, err)
	require.Equal(t, uint64(1), w.LatestMsgSeq)

	err = w.Apply(2, &xnats.ActionReq{
		Action:   xnats.ActionIssue,
		Auths:    auths("issuer"),
		To:       "alice",
		Quantity: "100.0000 TOK",
	})
	require.Nil(t, err)
	mustBalance(t, w, "alice", "TOK", "100")

	// a rejection leaves the watermark alone
	err = w.Apply(3, &xnats.ActionReq{
		Action:   xnats.ActionTransfer,
		Auths:    auths("alice"),
		From:     "alice",
		To:       "alice",
		Quantity: "1.0000 TOK",
	})
	require.ErrorIs(t, err, ErrSelfTransfer)
	require.Equal(t, uint64(2), w.LatestMsgSeq)

	err = w.Apply(4, &xnats.ActionReq{
		Action:   xnats.ActionClaimUnlock,
		Auths:    auths("alice"),
		Account:  "alice",
		Symbol:   "4,TOK",
	})
	require.ErrorIs(t, err, ErrPlanNotFound)

	err = w.Apply(5, &xnats.ActionReq{
		Action:   xnats.ActionTransfer,
		Auths:    auths("alice"),
		From:     "alice",
		To:       "bob",
		Quantity: "not-a-number",
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestQueriesAnswerFromMemory(t *testing.T) {
	w := newTestWorker(t)
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))
	require.Nil(t, w.Issue(2, auths("issuer"), "alice", asset.MustParse("100.0000 TOK"), ""))

	supply, maxSupply, issuer, err := w.GetSupply("TOK")
	require.Nil(t, err)
	require.Equal(t, "100.0000 TOK", supply.String())
	require.Equal(t, "1000.0000 TOK", maxSupply.String())
	require.Equal(t, "issuer", issuer)

	_, _, _, err = w.GetSupply("ZZZ")
	require.ErrorIs(t, err, ErrNotFound)

	bal, err := w.GetBalance("alice", "TOK")
	require.Nil(t, err)
	require.Equal(t, "100.0000 TOK", bal.String())

	_, err = w.GetBalance("bob", "TOK")
	require.ErrorIs(t, err, ErrNotFound)

	// through the serialized loop
	reply := make(chan interface{}, 1)
	w.ch <- TokenMsg{Q: &QueryMsg{Supply: &xnats.SupplyReq{Code: "TOK"}, Reply: reply}}
	go func() {
		m := <-w.ch
		w.HandleQuery(m.Q)
	}()
	resp := <-reply
	sr, ok := resp.(xnats.SupplyResp)
	require.True(t, ok)
	require.Equal(t, "100.0000 TOK", sr.Supply)
}

func TestRecoverFromJournal(t *testing.T) {
	dir := t.TempDir()
	fp := path.Join(dir, "token.log")

	fdb, err := filedb.New(fp)
	require.Nil(t, err)

	w := newTestWorker(t)
	w.fdb = fdb
	require.Nil(t, w.Create(1, auths("ledger"), "issuer", asset.MustParse("1000.0000 TOK")))
	require.Nil(t, w.Issue(7, auths("issuer"), "alice", asset.MustParse("100.0000 TOK"), ""))
	require.Nil(t, fdb.Close())

	// a fresh worker picks up the journal position from the last line
	fdb2, err := filedb.New(fp)
	require.Nil(t, err)
	s, err := fdb2.ReadLastLine()
	require.Nil(t, err)

	var tl TokenLog
	require.Nil(t, json.Unmarshal([]byte(s), &tl))
	require.Equal(t, int64(2), tl.LogID)
	require.Equal(t, uint64(7), tl.MsgSeq)
}
