package token

import "errors"

// Every failure below is a precondition-style rejection: the operation is
// simply not applied, nothing is committed and nothing is retried here.
var (
	ErrInvalidSymbol           = errors.New("invalid symbol name")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrSymbolMismatch          = errors.New("symbol precision mismatch")
	ErrAlreadyExists           = errors.New("token with symbol already exists")
	ErrNotFound                = errors.New("record does not exist")
	ErrAccountNotFound         = errors.New("account does not exist")
	ErrInsufficientBalance     = errors.New("overdrawn balance")
	ErrLockedFundsInsufficient = errors.New("requested quantity is locked")
	ErrSupplyExceeded          = errors.New("quantity exceeds available supply")
	ErrSelfTransfer            = errors.New("cannot transfer to self")
	ErrNotEmpty                = errors.New("cannot close with non-zero balance")
	ErrMemoTooLong             = errors.New("memo has more than 256 bytes")
	ErrTooEarly                = errors.New("the release time has not arrived")
	ErrPlanNotFound            = errors.New("unlock plan does not exist")
	ErrUnauthorized            = errors.New("missing required consent")
)

var rejections = []error{
	ErrInvalidSymbol, ErrInvalidAmount, ErrSymbolMismatch, ErrAlreadyExists,
	ErrNotFound, ErrAccountNotFound, ErrInsufficientBalance,
	ErrLockedFundsInsufficient, ErrSupplyExceeded, ErrSelfTransfer,
	ErrNotEmpty, ErrMemoTooLong, ErrTooEarly, ErrPlanNotFound,
	ErrUnauthorized,
}

// IsRejection reports whether err is a final business rejection, as opposed
// to an infrastructure failure the caller should surface and retry
func IsRejection(err error) bool {
	for _, e := range rejections {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
