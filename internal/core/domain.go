package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	TxConsumption TxType = "consumption"
	TxRecharge    TxType = "recharge"
	TxRefund      TxType = "refund"
)

// TimestampLayout is the wall-clock layout used by storage and CSV files.
const TimestampLayout = "2006-01-02 15:04:05"

// StartingBalance is the card balance before a student's first event.
var StartingBalance = decimal.NewFromInt(500)

type (
	TxType string

	// Student identifies a card holder. Name, major and grade are carried on
	// every record so a student is the full tuple, not just the ID.
	Student struct {
		ID    string
		Name  string
		Major string
		Grade string
	}

	// Record is one ledger event. Balance is the card balance after the
	// event and is always derived by the store; it is never trusted as input.
	Record struct {
		ID           int64 // 0 until persisted
		StudentID    string
		Name         string
		Major        string
		Grade        string
		Balance      decimal.Decimal
		Timestamp    time.Time
		Amount       decimal.Decimal
		MerchantType string
		Location     string
		TxType       TxType
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrEmptyStudentID   = errors.New("empty student id")
	ErrEmptyTxType      = errors.New("empty transaction type")
)

// txAliases maps the labels found in legacy exports to canonical types.
var txAliases = map[string]TxType{
	"consumption": TxConsumption,
	"消费":          TxConsumption,
	"recharge":    TxRecharge,
	"充值":          TxRecharge,
	"refund":      TxRefund,
	"退款":          TxRefund,
}

// ParseTxType normalises a transaction type label. Unknown labels are kept
// verbatim (lowercased) and behave like consumption.
func ParseTxType(s string) TxType {
	s = strings.ToLower(strings.TrimSpace(s))
	if t, ok := txAliases[s]; ok {
		return t
	}
	return TxType(s)
}

// IsCredit reports whether the event increases the card balance.
func (t TxType) IsCredit() bool {
	return t == TxRecharge || t == TxRefund
}

// IsConsumption reports whether the event is consumption-like, i.e. anything
// that is not a credit.
func (t TxType) IsConsumption() bool {
	return !t.IsCredit()
}

func (t TxType) String() string {
	return string(t)
}

// ParseTimestamp parses a wall-clock timestamp in TimestampLayout.
func ParseTimestamp(s string) (time.Time, error) {
	ts, err := time.Parse(TimestampLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidTimestamp
	}
	return ts, nil
}

// FormatTimestamp is the inverse of ParseTimestamp.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// Student returns the identity tuple of the record's card holder.
func (r Record) Student() Student {
	return Student{ID: r.StudentID, Name: r.Name, Major: r.Major, Grade: r.Grade}
}

// Signed returns the amount with the sign implied by the transaction type.
func (r Record) Signed() decimal.Decimal {
	if r.TxType.IsCredit() {
		return r.Amount
	}
	return r.Amount.Neg()
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.StudentID) == "" {
		return ErrEmptyStudentID
	}
	if r.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	if r.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(string(r.TxType)) == "" {
		return ErrEmptyTxType
	}
	return nil
}

// Before orders records chronologically with the ID as tie-break.
func Before(a, b Record) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}
