// Package asset defines fixed-point token amounts bound to a symbol.
// Two assets are only comparable when their symbols match exactly
// (same code and same precision).
package asset

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxPrecision is the largest number of decimal places a symbol may declare,
// bounded by the decimal(36,18) columns the ledger snaps are stored in.
const MaxPrecision = 18

// MaxCodeLen is the largest symbol code length, e.g. "ABCDEFG"
const MaxCodeLen = 7

var (
	ErrParse = errors.New("malformed asset string")
)

// Symbol is a token code plus its fixed decimal precision, e.g. {TOK 4}
type Symbol struct {
	Code      string `json:"code"`
	Precision uint32 `json:"precision"`
}

func (s Symbol) Valid() bool {
	if len(s.Code) == 0 || len(s.Code) > MaxCodeLen {
		return false
	}
	if s.Precision > MaxPrecision {
		return false
	}
	for _, c := range s.Code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func (s Symbol) Equal(o Symbol) bool {
	return s.Code == o.Code && s.Precision == o.Precision
}

func (s Symbol) String() string {
	return strconv.FormatUint(uint64(s.Precision), 10) + "," + s.Code
}

// Asset is an amount of one symbol
type Asset struct {
	Amount decimal.Decimal `json:"amount"`
	Symbol Symbol          `json:"symbol"`
}

func New(amount decimal.Decimal, sym Symbol) Asset {
	return Asset{Amount: amount, Symbol: sym}
}

// Zero returns the zero amount of the given symbol
func Zero(sym Symbol) Asset {
	return Asset{Amount: decimal.Zero, Symbol: sym}
}

// Parse parses an asset string like "500.0000 TOK".
// The precision is taken from the number of decimal places as written,
// so "500.0000 TOK" and "500.00 TOK" denote different symbols.
func Parse(s string) (a Asset, err error) {
	ss := strings.Split(strings.TrimSpace(s), " ")
	if len(ss) != 2 {
		return a, ErrParse
	}

	amount, err := decimal.NewFromString(ss[0])
	if err != nil {
		return a, ErrParse
	}

	precision := uint32(0)
	if i := strings.IndexByte(ss[0], '.'); i >= 0 {
		precision = uint32(len(ss[0]) - i - 1)
	}

	a = Asset{
		Amount: amount,
		Symbol: Symbol{Code: ss[1], Precision: precision},
	}
	if !a.Valid() {
		return Asset{}, ErrParse
	}

	return a, nil
}

// MustParse is Parse for literals in tests and tooling
func MustParse(s string) Asset {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Valid reports whether the symbol is well formed and the amount is
// representable at the symbol's precision
func (a Asset) Valid() bool {
	if !a.Symbol.Valid() {
		return false
	}
	return a.Amount.Equal(a.Amount.Truncate(int32(a.Symbol.Precision)))
}

func (a Asset) Sign() int {
	return a.Amount.Sign()
}

// Add assumes b carries the same symbol, callers check with Symbol.Equal first
func (a Asset) Add(b Asset) Asset {
	return Asset{Amount: a.Amount.Add(b.Amount), Symbol: a.Symbol}
}

func (a Asset) Sub(b Asset) Asset {
	return Asset{Amount: a.Amount.Sub(b.Amount), Symbol: a.Symbol}
}

func (a Asset) String() string {
	return a.Amount.StringFixed(int32(a.Symbol.Precision)) + " " + a.Symbol.Code
}
