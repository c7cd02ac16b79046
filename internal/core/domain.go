package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

type (
	// Kind tags a transaction as money coming in or going out.
	Kind string

	// Transaction is a single ledger entry. Amount is always positive; the
	// direction of the money is carried by Kind.
	Transaction struct {
		ID        string          `json:"id"`
		Amount    decimal.Decimal `json:"amount"`
		Kind      Kind            `json:"kind"`
		Category  string          `json:"category"`
		Timestamp time.Time       `json:"timestamp"`
		Note      string          `json:"note,omitempty"`
	}
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrEmptyID       = errors.New("empty id")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidKind   = errors.New("invalid kind")
	ErrZeroTimestamp = errors.New("timestamp cannot be zero")
)

// ValidationError reports which field of a mutation was rejected.
// errors.Is(err, ErrValidation) holds for every ValidationError.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ParseKind accepts "income"/"expense" in any case.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindIncome, KindExpense:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

func (k Kind) Valid() bool {
	switch k {
	case KindIncome, KindExpense:
		return true
	default:
		return false
	}
}

func (k Kind) String() string { return string(k) }

// SignedAmount returns the contribution of t to a balance.
func (t Transaction) SignedAmount() (decimal.Decimal, error) {
	switch t.Kind {
	case KindIncome:
		return t.Amount, nil
	case KindExpense:
		return t.Amount.Neg(), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)
	}
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "id", Err: ErrEmptyID}
	}
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}
	if !t.Kind.Valid() {
		return &ValidationError{Field: "kind", Err: fmt.Errorf("%w: %q", ErrInvalidKind, t.Kind)}
	}
	if t.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Err: ErrZeroTimestamp}
	}
	return nil
}

// Normalized returns a copy with the timestamp truncated to whole
// milliseconds in UTC, which is the precision every storage backend keeps.
func (t Transaction) Normalized() Transaction {
	t.Timestamp = FromMillis(ToMillis(t.Timestamp))
	return t
}

// ToMillis converts a point in time to Unix milliseconds.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// CeilMillis converts t to Unix milliseconds, rounding up any partial
// millisecond. Range bounds go through it: with timestamps stored as whole
// milliseconds, ms >= CeilMillis(start) holds exactly when the stored time
// is not before start, and likewise for end.
func CeilMillis(t time.Time) int64 {
	ms := t.UnixMilli()
	if t.Nanosecond()%int(time.Millisecond) != 0 {
		ms++
	}
	return ms
}

// FromMillis is the inverse of ToMillis, always in UTC.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
