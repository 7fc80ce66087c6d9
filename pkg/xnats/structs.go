// Package xnats defines the payloads exchanged over NATS: inbound token
// actions, outbound transfer notices and the query request/reply pairs.
package xnats

import "time"

// ActionReq is one ledger operation submitted by the gateway. Auths lists
// the principals whose consent the gateway has already verified for this
// request; the worker checks the specific principal each action requires
// and never elevates beyond that list.
type ActionReq struct {
	Action string   `json:"action"`
	Auths  []string `json:"auths"`

	// Quantity is an asset string like "500.0000 TOK"; Symbol is a
	// precision,code pair like "4,TOK" for the actions that carry no amount
	Quantity string `json:"quantity,omitempty"`
	Symbol   string `json:"symbol,omitempty"`

	Issuer  string `json:"issuer,omitempty"`  // create
	From    string `json:"from,omitempty"`    // transfer
	To      string `json:"to,omitempty"`      // transfer, issue
	Owner   string `json:"owner,omitempty"`   // open, close
	Payer   string `json:"payer,omitempty"`   // open
	Account string `json:"account,omitempty"` // lockup, planunlock, claimunlock

	ExpireTime time.Time `json:"expireTime,omitempty"` // lockup
	Time       time.Time `json:"time,omitempty"`       // planunlock
	SpanHour   uint32    `json:"spanHour,omitempty"`   // planunlock

	Memo string `json:"memo,omitempty"`
}

const (
	ActionCreate      = "create"
	ActionIssue       = "issue"
	ActionRetire      = "retire"
	ActionTransfer    = "transfer"
	ActionOpen        = "open"
	ActionClose       = "close"
	ActionDecms       = "decms"
	ActionLockup      = "lockup"
	ActionPlanUnlock  = "planunlock"
	ActionClaimUnlock = "claimunlock"
)

// TransferNotice is published to both transfer parties after commit
type TransferNotice struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Quantity string `json:"quantity"`
	Memo     string `json:"memo"`
	Time     int64  `json:"time"` // nanoseconds
}

// Query request/reply payloads

type SupplyReq struct {
	Code string `json:"code"`
}

type SupplyResp struct {
	Supply    string `json:"supply"`
	MaxSupply string `json:"maxSupply"`
	Issuer    string `json:"issuer"`
	Err       string `json:"err,omitempty"`
}

type BalanceReq struct {
	Owner string `json:"owner"`
	Code  string `json:"code"`
}

type BalanceResp struct {
	Balance string `json:"balance"`
	Err     string `json:"err,omitempty"`
}
