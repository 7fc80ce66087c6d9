package token

import (
	"time"

	"tokenbank/pkg/asset"
	"tokenbank/pkg/xnats"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
)

// TokenMsg is one unit of work for the main loop, either an inbound action
// from NATS or a read query carrying its reply channel
type TokenMsg struct {
	N *nats.Msg
	Q *QueryMsg
}

type QueryMsg struct {
	Supply  *xnats.SupplyReq
	Balance *xnats.BalanceReq
	Reply   chan interface{}
}

// StatState  per-symbol supply registry record
type StatState struct {
	Symbol    asset.Symbol
	Supply    decimal.Decimal
	MaxSupply decimal.Decimal
	Issuer    string
}

// BalanceItem  one (owner, code) balance, ordered by owner then code so the
// btree can be scanned per owner and per symbol
type BalanceItem struct {
	Owner  string
	Code   string
	Amount decimal.Decimal
	Payer  string
}

func balanceLess(a, b *BalanceItem) bool {
	if a.Owner != b.Owner {
		return a.Owner < b.Owner
	}
	return a.Code < b.Code
}

// LockState  the locked portion of one account's balance for one symbol
type LockState struct {
	Amount     decimal.Decimal
	ExpireTime time.Time
}

// PlanState  the pending release schedule against a lock
type PlanState struct {
	Quantity decimal.Decimal
	NextTime time.Time
	SpanHour uint32
}

// TokenLog  one journal line, everything the writer needs to mirror the
// operation into MySQL
type TokenLog struct {
	LogID  int64  `json:"logID"`
	Ts     int64  `json:"ts"`
	MsgSeq uint64 `json:"msgSeq"` // NATS msg stream sequence
	Action string `json:"action"`

	StatLogs    []StatLog    `json:"stats,omitempty"`
	BalanceLogs []BalanceLog `json:"balances,omitempty"`
	LockupLogs  []LockupLog  `json:"lockups,omitempty"`
	PlanLogs    []PlanLog    `json:"plans,omitempty"`
}

func (tl *TokenLog) nextIndex() int64 {
	return int64(len(tl.StatLogs) + len(tl.BalanceLogs) + len(tl.LockupLogs) + len(tl.PlanLogs))
}

func (tl *TokenLog) addStat(e StatLog) {
	e.LogIndex = tl.nextIndex()
	tl.StatLogs = append(tl.StatLogs, e)
}

func (tl *TokenLog) addBalance(e BalanceLog) {
	e.LogIndex = tl.nextIndex()
	tl.BalanceLogs = append(tl.BalanceLogs, e)
}

func (tl *TokenLog) addLockup(e LockupLog) {
	e.LogIndex = tl.nextIndex()
	tl.LockupLogs = append(tl.LockupLogs, e)
}

func (tl *TokenLog) addPlan(e PlanLog) {
	e.LogIndex = tl.nextIndex()
	tl.PlanLogs = append(tl.PlanLogs, e)
}

// StatLog  supply registry change
type StatLog struct {
	LogIndex int64 `json:"logIndex"`

	Code         string `json:"code"`
	Precision    uint32 `json:"precision"`
	SupplyNew    string `json:"supplyNew"`
	MaxSupplyNew string `json:"maxSupplyNew"`
	Issuer       string `json:"issuer"`
	Created      bool   `json:"created,omitempty"`
}

// BalanceLog  balance change, Deleted marks an explicit close
type BalanceLog struct {
	LogIndex int64 `json:"logIndex"`

	Owner     string `json:"owner"`
	Code      string `json:"code"`
	Change    string `json:"change"`
	AmountNew string `json:"amountNew"`
	Payer     string `json:"payer,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

// LockupLog  lockup create/replace/erase
type LockupLog struct {
	LogIndex int64 `json:"logIndex"`

	Owner      string    `json:"owner"`
	Code       string    `json:"code"`
	AmountNew  string    `json:"amountNew"`
	ExpireTime time.Time `json:"expireTime"`
	Payer      string    `json:"payer,omitempty"`
	Deleted    bool      `json:"deleted,omitempty"`
}

// PlanLog  unlock plan create/replace/advance/erase
type PlanLog struct {
	LogIndex int64 `json:"logIndex"`

	Owner    string    `json:"owner"`
	Code     string    `json:"code"`
	Quantity string    `json:"quantity"`
	NextTime time.Time `json:"nextTime"`
	SpanHour uint32    `json:"spanHour"`
	Payer    string    `json:"payer,omitempty"`
	Deleted  bool      `json:"deleted,omitempty"`
}
