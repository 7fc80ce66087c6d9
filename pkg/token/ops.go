package token

import (
	"strconv"
	"strings"
	"time"

	"tokenbank/pkg/asset"
	"tokenbank/pkg/xnats"

	"github.com/shopspring/decimal"
)

// MaxMemoLen caps memos at 256 bytes
const MaxMemoLen = 256

func hasAuth(auths []string, name string) bool {
	for _, a := range auths {
		if a == name {
			return true
		}
	}
	return false
}

func requireAuth(auths []string, name string) error {
	if name == "" || !hasAuth(auths, name) {
		return ErrUnauthorized
	}
	return nil
}

func checkMemo(memo string) error {
	if len(memo) > MaxMemoLen {
		return ErrMemoTooLong
	}
	return nil
}

func parseQuantity(s string) (asset.Asset, error) {
	a, err := asset.Parse(s)
	if err != nil {
		return a, ErrInvalidAmount
	}
	return a, nil
}

// parseSymbol parses a precision,code pair like "4,TOK"
func parseSymbol(s string) (sym asset.Symbol, err error) {
	ss := strings.SplitN(strings.TrimSpace(s), ",", 2)
	if len(ss) != 2 {
		return sym, ErrInvalidSymbol
	}
	precision, err := strconv.ParseUint(ss[0], 10, 32)
	if err != nil {
		return sym, ErrInvalidSymbol
	}
	sym = asset.Symbol{Code: ss[1], Precision: uint32(precision)}
	if !sym.Valid() {
		return asset.Symbol{}, ErrInvalidSymbol
	}
	return sym, nil
}

func (w *Worker) getStat(code string) (*StatState, error) {
	st, ok := w.Stats[code]
	if !ok {
		return nil, ErrNotFound
	}
	return st, nil
}

func (w *Worker) balanceOf(owner, code string) (*BalanceItem, bool) {
	return w.Balances.Get(&BalanceItem{Owner: owner, Code: code})
}

func (w *Worker) getLock(owner, code string) *LockState {
	return w.Lockups[owner][code]
}

func (w *Worker) setLock(owner, code string, lk *LockState) {
	if w.Lockups[owner] == nil {
		w.Lockups[owner] = map[string]*LockState{}
	}
	w.Lockups[owner][code] = lk
}

func (w *Worker) delLock(owner, code string) {
	delete(w.Lockups[owner], code)
	if len(w.Lockups[owner]) == 0 {
		delete(w.Lockups, owner)
	}
}

func (w *Worker) getPlan(owner, code string) *PlanState {
	return w.Plans[owner][code]
}

func (w *Worker) setPlan(owner, code string, p *PlanState) {
	if w.Plans[owner] == nil {
		w.Plans[owner] = map[string]*PlanState{}
	}
	w.Plans[owner][code] = p
}

func (w *Worker) delPlan(owner, code string) {
	delete(w.Plans[owner], code)
	if len(w.Plans[owner]) == 0 {
		delete(w.Plans, owner)
	}
}

// checkLockup rejects a debit that would dip into the locked portion of
// the balance while the lock has not expired yet
func (w *Worker) checkLockup(owner string, value asset.Asset, now time.Time) error {
	lk := w.getLock(owner, value.Symbol.Code)
	if lk == nil {
		return nil
	}
	if lk.ExpireTime.Before(now) {
		return nil
	}
	bal := decimal.Zero
	if item, ok := w.balanceOf(owner, value.Symbol.Code); ok {
		bal = item.Amount
	}
	if bal.Sub(lk.Amount).LessThan(value.Amount) {
		return ErrLockedFundsInsufficient
	}
	return nil
}

// creditBalance adds quantity to the (owner, code) row, creating it on
// behalf of payer when absent
func (w *Worker) creditBalance(owner string, q asset.Asset, payer string) (item *BalanceItem, created bool, undo func()) {
	key := &BalanceItem{Owner: owner, Code: q.Symbol.Code}
	item, ok := w.Balances.Get(key)
	if !ok {
		item = &BalanceItem{Owner: owner, Code: q.Symbol.Code, Amount: q.Amount, Payer: payer}
		w.Balances.ReplaceOrInsert(item)
		return item, true, func() { w.Balances.Delete(key) }
	}
	prev := item.Amount
	item.Amount = prev.Add(q.Amount)
	return item, false, func() { item.Amount = prev }
}

// debitBalance subtracts quantity, the caller has already verified the row
// exists and covers the amount
func (w *Worker) debitBalance(owner string, q asset.Asset) (item *BalanceItem, undo func()) {
	item, _ = w.balanceOf(owner, q.Symbol.Code)
	prev := item.Amount
	item.Amount = prev.Sub(q.Amount)
	return item, func() { item.Amount = prev }
}

func rollback(undos []func()) {
	for i := len(undos) - 1; i >= 0; i-- {
		undos[i]()
	}
}

func (w *Worker) newLog(action string, msgSeq uint64, now time.Time) *TokenLog {
	return &TokenLog{
		LogID:  w.LogID + 1,
		Ts:     now.UnixNano(),
		MsgSeq: msgSeq,
		Action: action,
	}
}

// commit appends one journal line; on a write failure the in-memory
// mutations are rolled back so state and journal never diverge
func (w *Worker) commit(tl *TokenLog, undos []func()) (err error) {
	err = w.writeLog(tl)
	if err != nil {
		rollback(undos)
		return
	}
	w.LogID = tl.LogID
	return nil
}

// Create registers a new token symbol with zero supply. Only the ledger
// owner may create symbols.
func (w *Worker) Create(msgSeq uint64, auths []string, issuer string, maxSupply asset.Asset) (err error) {
	if err = requireAuth(auths, w.Owner); err != nil {
		return
	}
	if !maxSupply.Symbol.Valid() {
		return ErrInvalidSymbol
	}
	if !maxSupply.Valid() || maxSupply.Sign() <= 0 {
		return ErrInvalidAmount
	}
	code := maxSupply.Symbol.Code
	if _, ok := w.Stats[code]; ok {
		return ErrAlreadyExists
	}

	now := w.Now()
	st := &StatState{
		Symbol:    maxSupply.Symbol,
		Supply:    decimal.Zero,
		MaxSupply: maxSupply.Amount,
		Issuer:    issuer,
	}
	w.Stats[code] = st
	undos := []func(){func() { delete(w.Stats, code) }}

	tl := w.newLog(xnats.ActionCreate, msgSeq, now)
	tl.addStat(StatLog{
		Code:         code,
		Precision:    st.Symbol.Precision,
		SupplyNew:    st.Supply.String(),
		MaxSupplyNew: st.MaxSupply.String(),
		Issuer:       st.Issuer,
		Created:      true,
	})

	return w.commit(tl, undos)
}

// Issue mints quantity into the issuer's balance and, when to differs from
// the issuer, forwards it with a regular transfer in the same operation
func (w *Worker) Issue(msgSeq uint64, auths []string, to string, quantity asset.Asset, memo string) (err error) {
	if err = checkMemo(memo); err != nil {
		return
	}
	st, err := w.getStat(quantity.Symbol.Code)
	if err != nil {
		return
	}
	if err = requireAuth(auths, st.Issuer); err != nil {
		return
	}
	if !quantity.Valid() || quantity.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !quantity.Symbol.Equal(st.Symbol) {
		return ErrSymbolMismatch
	}
	if st.Supply.Add(quantity.Amount).GreaterThan(st.MaxSupply) {
		return ErrSupplyExceeded
	}

	now := w.Now()
	undos := []func(){}

	prevSupply := st.Supply
	st.Supply = prevSupply.Add(quantity.Amount)
	undos = append(undos, func() { st.Supply = prevSupply })

	item, _, undo := w.creditBalance(st.Issuer, quantity, st.Issuer)
	undos = append(undos, undo)

	tl := w.newLog(xnats.ActionIssue, msgSeq, now)
	tl.addStat(StatLog{
		Code:         st.Symbol.Code,
		Precision:    st.Symbol.Precision,
		SupplyNew:    st.Supply.String(),
		MaxSupplyNew: st.MaxSupply.String(),
		Issuer:       st.Issuer,
	})
	tl.addBalance(BalanceLog{
		Owner:     st.Issuer,
		Code:      st.Symbol.Code,
		Change:    quantity.Amount.String(),
		AmountNew: item.Amount.String(),
		Payer:     item.Payer,
	})

	var notices []xnats.TransferNotice
	if to != st.Issuer {
		// the forwarding transfer runs with the issuer's consent
		notices, err = w.applyTransfer(now, tl, auths, st, st.Issuer, to, quantity, memo, &undos)
		if err != nil {
			rollback(undos)
			return
		}
	}

	err = w.commit(tl, undos)
	if err != nil {
		return
	}

	for _, n := range notices {
		w.PublishNotice(st.Symbol.Code, n)
	}
	return nil
}

// Retire burns quantity from the issuer's balance and shrinks the supply.
// Only transfers are restricted by a lockup, burning is not.
func (w *Worker) Retire(msgSeq uint64, auths []string, quantity asset.Asset, memo string) (err error) {
	if err = checkMemo(memo); err != nil {
		return
	}
	st, err := w.getStat(quantity.Symbol.Code)
	if err != nil {
		return
	}
	if err = requireAuth(auths, st.Issuer); err != nil {
		return
	}
	if !quantity.Valid() || quantity.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !quantity.Symbol.Equal(st.Symbol) {
		return ErrSymbolMismatch
	}

	now := w.Now()
	item, ok := w.balanceOf(st.Issuer, st.Symbol.Code)
	if !ok {
		return ErrNotFound
	}
	if item.Amount.LessThan(quantity.Amount) {
		return ErrInsufficientBalance
	}

	undos := []func(){}

	prevSupply := st.Supply
	st.Supply = prevSupply.Sub(quantity.Amount)
	undos = append(undos, func() { st.Supply = prevSupply })

	item, undo := w.debitBalance(st.Issuer, quantity)
	undos = append(undos, undo)

	tl := w.newLog(xnats.ActionRetire, msgSeq, now)
	tl.addStat(StatLog{
		Code:         st.Symbol.Code,
		Precision:    st.Symbol.Precision,
		SupplyNew:    st.Supply.String(),
		MaxSupplyNew: st.MaxSupply.String(),
		Issuer:       st.Issuer,
	})
	tl.addBalance(BalanceLog{
		Owner:     st.Issuer,
		Code:      st.Symbol.Code,
		Change:    quantity.Amount.Neg().String(),
		AmountNew: item.Amount.String(),
		Payer:     item.Payer,
	})

	return w.commit(tl, undos)
}

// DecreaseMaxSupply lowers the supply ceiling by quantity
func (w *Worker) DecreaseMaxSupply(msgSeq uint64, auths []string, quantity asset.Asset, memo string) (err error) {
	if err = checkMemo(memo); err != nil {
		return
	}
	st, err := w.getStat(quantity.Symbol.Code)
	if err != nil {
		return
	}
	if err = requireAuth(auths, st.Issuer); err != nil {
		return
	}
	if !quantity.Valid() || quantity.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if !quantity.Symbol.Equal(st.Symbol) {
		return ErrSymbolMismatch
	}

	// any new ceiling below the circulating supply is rejected the same way,
	// including a negative one
	maxNew := st.MaxSupply.Sub(quantity.Amount)
	if st.Supply.GreaterThan(maxNew) {
		return ErrSupplyExceeded
	}

	now := w.Now()
	prevMax := st.MaxSupply
	st.MaxSupply = maxNew
	undos := []func(){func() { st.MaxSupply = prevMax }}

	tl := w.newLog(xnats.ActionDecms, msgSeq, now)
	tl.addStat(StatLog{
		Code:         st.Symbol.Code,
		Precision:    st.Symbol.Precision,
		SupplyNew:    st.Supply.String(),
		MaxSupplyNew: st.MaxSupply.String(),
		Issuer:       st.Issuer,
	})

	return w.commit(tl, undos)
}

// Transfer moves quantity from one account to another with from's consent
func (w *Worker) Transfer(msgSeq uint64, auths []string, from, to string, quantity asset.Asset, memo string) (err error) {
	if err = checkMemo(memo); err != nil {
		return
	}
	if from == to {
		return ErrSelfTransfer
	}
	st, err := w.getStat(quantity.Symbol.Code)
	if err != nil {
		return
	}
	if err = requireAuth(auths, from); err != nil {
		return
	}

	now := w.Now()
	undos := []func(){}
	tl := w.newLog(xnats.ActionTransfer, msgSeq, now)

	notices, err := w.applyTransfer(now, tl, auths, st, from, to, quantity, memo, &undos)
	if err != nil {
		rollback(undos)
		return
	}

	err = w.commit(tl, undos)
	if err != nil {
		return
	}

	for _, n := range notices {
		w.PublishNotice(st.Symbol.Code, n)
	}
	return nil
}

// applyTransfer validates and applies the balance movement shared by
// Transfer and the forwarding leg of Issue. The receiving row is billed to
// `to` when to consented to the request, to `from` otherwise.
func (w *Worker) applyTransfer(now time.Time, tl *TokenLog, auths []string, st *StatState,
	from, to string, quantity asset.Asset, memo string, undos *[]func()) (notices []xnats.TransferNotice, err error) {

	if !w.IsAccount(to) {
		return nil, ErrAccountNotFound
	}
	if !quantity.Valid() || quantity.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if !quantity.Symbol.Equal(st.Symbol) {
		return nil, ErrSymbolMismatch
	}

	item, ok := w.balanceOf(from, st.Symbol.Code)
	if !ok {
		return nil, ErrNotFound
	}
	if item.Amount.LessThan(quantity.Amount) {
		return nil, ErrInsufficientBalance
	}
	if err = w.checkLockup(from, quantity, now); err != nil {
		return nil, err
	}

	payer := from
	if hasAuth(auths, to) {
		payer = to
	}

	fromItem, undo := w.debitBalance(from, quantity)
	*undos = append(*undos, undo)

	toItem, _, undo := w.creditBalance(to, quantity, payer)
	*undos = append(*undos, undo)

	tl.addBalance(BalanceLog{
		Owner:     from,
		Code:      st.Symbol.Code,
		Change:    quantity.Amount.Neg().String(),
		AmountNew: fromItem.Amount.String(),
		Payer:     fromItem.Payer,
	})
	tl.addBalance(BalanceLog{
		Owner:     to,
		Code:      st.Symbol.Code,
		Change:    quantity.Amount.String(),
		AmountNew: toItem.Amount.String(),
		Payer:     toItem.Payer,
	})

	notices = []xnats.TransferNotice{{
		From:     from,
		To:       to,
		Quantity: quantity.String(),
		Memo:     memo,
		Time:     now.UnixNano(),
	}}
	return notices, nil
}

// Open creates a zero balance row for owner, billed to payer. Opening an
// already open balance is a no-op.
func (w *Worker) Open(msgSeq uint64, auths []string, owner string, sym asset.Symbol, payer string) (err error) {
	if err = requireAuth(auths, payer); err != nil {
		return
	}
	st, err := w.getStat(sym.Code)
	if err != nil {
		return
	}
	if !sym.Equal(st.Symbol) {
		return ErrSymbolMismatch
	}
	if !w.IsAccount(owner) {
		return ErrAccountNotFound
	}
	if _, ok := w.balanceOf(owner, sym.Code); ok {
		return nil
	}

	now := w.Now()
	item, _, undo := w.creditBalance(owner, asset.Zero(sym), payer)
	undos := []func(){undo}

	tl := w.newLog(xnats.ActionOpen, msgSeq, now)
	tl.addBalance(BalanceLog{
		Owner:     owner,
		Code:      sym.Code,
		Change:    decimal.Zero.String(),
		AmountNew: item.Amount.String(),
		Payer:     item.Payer,
	})

	return w.commit(tl, undos)
}

// Close removes owner's zero balance row and refunds the payer's storage
func (w *Worker) Close(msgSeq uint64, auths []string, owner string, sym asset.Symbol) (err error) {
	if err = requireAuth(auths, owner); err != nil {
		return
	}
	st, err := w.getStat(sym.Code)
	if err != nil {
		return
	}
	if !sym.Equal(st.Symbol) {
		return ErrSymbolMismatch
	}
	item, ok := w.balanceOf(owner, sym.Code)
	if !ok {
		return ErrNotFound
	}
	if item.Amount.Sign() != 0 {
		return ErrNotEmpty
	}

	now := w.Now()
	w.Balances.Delete(item)
	undos := []func(){func() { w.Balances.ReplaceOrInsert(item) }}

	tl := w.newLog(xnats.ActionClose, msgSeq, now)
	tl.addBalance(BalanceLog{
		Owner:   owner,
		Code:    sym.Code,
		Change:  decimal.Zero.String(),
		Payer:   item.Payer,
		Deleted: true,
	})

	return w.commit(tl, undos)
}

// Lockup sets, replaces or erases the locked amount on account's balance.
// A zero quantity or an expiry in the past erases the lock, and any unlock
// plan attached to it goes with it.
func (w *Worker) Lockup(msgSeq uint64, auths []string, account string, quantity asset.Asset, expireTime time.Time, memo string) (err error) {
	if err = checkMemo(memo); err != nil {
		return
	}
	st, err := w.getStat(quantity.Symbol.Code)
	if err != nil {
		return
	}
	if err = requireAuth(auths, st.Issuer); err != nil {
		return
	}
	if !quantity.Valid() || quantity.Sign() < 0 {
		return ErrInvalidAmount
	}
	if !quantity.Symbol.Equal(st.Symbol) {
		return ErrSymbolMismatch
	}
	if !w.IsAccount(account) {
		return ErrAccountNotFound
	}

	now := w.Now()
	code := st.Symbol.Code
	prevLock := w.getLock(account, code)
	prevPlan := w.getPlan(account, code)
	undos := []func(){}
	tl := w.newLog(xnats.ActionLockup, msgSeq, now)

	erase := quantity.Sign() == 0 || expireTime.Before(now)
	if erase {
		if prevLock == nil && prevPlan == nil {
			return nil
		}
		if prevLock != nil {
			w.delLock(account, code)
			undos = append(undos, func() { w.setLock(account, code, prevLock) })
			tl.addLockup(LockupLog{Owner: account, Code: code, Deleted: true})
		}
		if prevPlan != nil {
			w.delPlan(account, code)
			undos = append(undos, func() { w.setPlan(account, code, prevPlan) })
			tl.addPlan(PlanLog{Owner: account, Code: code, Deleted: true})
		}
		return w.commit(tl, undos)
	}

	lk := &LockState{Amount: quantity.Amount, ExpireTime: expireTime}
	w.setLock(account, code, lk)
	if prevLock != nil {
		undos = append(undos, func() { w.setLock(account, code, prevLock) })
	} else {
		undos = append(undos, func() { w.delLock(account, code) })
	}
	tl.addLockup(LockupLog{
		Owner:      account,
		Code:       code,
		AmountNew:  lk.Amount.String(),
		ExpireTime: lk.ExpireTime,
		Payer:      st.Issuer,
	})

	return w.commit(tl, undos)
}

// PlanUnlock sets or replaces the release schedule against account's lock.
// A zero quantity erases the plan. The plan may exceed or outlive the lock,
// each claim clamps against whatever is actually locked. A zero span is
// stored as-is, the claim window then never advances.
func (w *Worker) PlanUnlock(msgSeq uint64, auths []string, account string, quantity asset.Asset, t time.Time, spanHour uint32, memo string) (err error) {
	if err = checkMemo(memo); err != nil {
		return
	}
	st, err := w.getStat(quantity.Symbol.Code)
	if err != nil {
		return
	}
	if err = requireAuth(auths, st.Issuer); err != nil {
		return
	}
	if !quantity.Valid() || quantity.Sign() < 0 {
		return ErrInvalidAmount
	}
	if !quantity.Symbol.Equal(st.Symbol) {
		return ErrSymbolMismatch
	}
	if !w.IsAccount(account) {
		return ErrAccountNotFound
	}

	now := w.Now()
	code := st.Symbol.Code
	prevPlan := w.getPlan(account, code)
	undos := []func(){}
	tl := w.newLog(xnats.ActionPlanUnlock, msgSeq, now)

	if quantity.Sign() == 0 {
		if prevPlan == nil {
			return nil
		}
		w.delPlan(account, code)
		undos = append(undos, func() { w.setPlan(account, code, prevPlan) })
		tl.addPlan(PlanLog{Owner: account, Code: code, Deleted: true})
		return w.commit(tl, undos)
	}

	p := &PlanState{Quantity: quantity.Amount, NextTime: t, SpanHour: spanHour}
	w.setPlan(account, code, p)
	if prevPlan != nil {
		undos = append(undos, func() { w.setPlan(account, code, prevPlan) })
	} else {
		undos = append(undos, func() { w.delPlan(account, code) })
	}
	tl.addPlan(PlanLog{
		Owner:    account,
		Code:     code,
		Quantity: p.Quantity.String(),
		NextTime: p.NextTime,
		SpanHour: p.SpanHour,
		Payer:    st.Issuer,
	})

	return w.commit(tl, undos)
}

// ClaimUnlock releases one installment of the plan: the locked amount drops
// by the plan quantity (clamped at zero) and the plan advances by its span.
// When the lock drains to zero both the lock and the plan are removed.
func (w *Worker) ClaimUnlock(msgSeq uint64, auths []string, account string, sym asset.Symbol) (err error) {
	st, err := w.getStat(sym.Code)
	if err != nil {
		return
	}
	if !sym.Equal(st.Symbol) {
		return ErrSymbolMismatch
	}
	if err = requireAuth(auths, account); err != nil {
		return
	}

	// the plan and the lock must co-exist for a claim
	code := sym.Code
	lk := w.getLock(account, code)
	if lk == nil {
		return ErrPlanNotFound
	}
	p := w.getPlan(account, code)
	if p == nil {
		return ErrPlanNotFound
	}

	now := w.Now()
	if now.Before(p.NextTime) {
		return ErrTooEarly
	}

	lockNew := lk.Amount.Sub(p.Quantity)
	if lockNew.Sign() < 0 {
		lockNew = decimal.Zero
	}

	undos := []func(){}
	tl := w.newLog(xnats.ActionClaimUnlock, msgSeq, now)

	if lockNew.Sign() > 0 {
		prevAmount := lk.Amount
		prevNext := p.NextTime
		lk.Amount = lockNew
		p.NextTime = prevNext.Add(time.Duration(p.SpanHour) * time.Hour)
		undos = append(undos, func() {
			lk.Amount = prevAmount
			p.NextTime = prevNext
		})
		tl.addLockup(LockupLog{
			Owner:      account,
			Code:       code,
			AmountNew:  lk.Amount.String(),
			ExpireTime: lk.ExpireTime,
		})
		tl.addPlan(PlanLog{
			Owner:    account,
			Code:     code,
			Quantity: p.Quantity.String(),
			NextTime: p.NextTime,
			SpanHour: p.SpanHour,
		})
		return w.commit(tl, undos)
	}

	w.delLock(account, code)
	w.delPlan(account, code)
	undos = append(undos,
		func() { w.setLock(account, code, lk) },
		func() { w.setPlan(account, code, p) },
	)
	tl.addLockup(LockupLog{Owner: account, Code: code, Deleted: true})
	tl.addPlan(PlanLog{Owner: account, Code: code, Deleted: true})

	return w.commit(tl, undos)
}
