package models

import (
	"database/sql/driver"
	"fmt"
	"math/big"
)

// BigInt is an arbitrary precision integer persisted as a decimal numeric column.
// Governance token amounts are uint96 and do not fit into int64.
type BigInt struct {
	big.Int
}

// NewBigInt copies x. A nil x yields zero.
func NewBigInt(x *big.Int) BigInt {
	var b BigInt
	if x != nil {
		b.Int.Set(x)
	}
	return b
}

// Big returns a copy of the value.
func (b BigInt) Big() *big.Int {
	return new(big.Int).Set(&b.Int)
}

func (b BigInt) String() string {
	return b.Int.String()
}

// GormDataType makes AutoMigrate create a numeric column wide enough for uint256.
func (BigInt) GormDataType() string {
	return "numeric(78,0)"
}

// Value implements driver.Valuer.
func (b BigInt) Value() (driver.Value, error) {
	return b.Int.String(), nil
}

// Scan implements sql.Scanner.
func (b *BigInt) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case nil:
		b.Int.SetInt64(0)
		return nil
	case int64:
		b.Int.SetInt64(v)
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("models: cannot scan %T into BigInt", src)
	}
	if _, ok := b.Int.SetString(s, 10); !ok {
		return fmt.Errorf("models: invalid integer %q", s)
	}
	return nil
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return b.Int.MarshalJSON()
}

func (b *BigInt) UnmarshalJSON(p []byte) error {
	return b.Int.UnmarshalJSON(p)
}
