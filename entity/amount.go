package entity

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

const (
	// AmountScale is the number of fractional digits an Amount keeps.
	AmountScale = 8
	// AmountPrecision is the total number of digits an Amount keeps.
	AmountPrecision = 20
)

var maxAmount = decimal.New(1, AmountPrecision-AmountScale)

// Amount is a token quantity persisted without rounding. PostgreSQL keeps it
// in a fixed-point numeric column. SQLite gives any numeric column REAL
// affinity, so there it is stored as its decimal text.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

func (Amount) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "decimal(20,8)"
	}
	return "text"
}

// FitsAmount reports whether d can be stored as an Amount exactly, i.e. it
// has at most AmountScale fractional digits and fewer than
// AmountPrecision-AmountScale integer digits.
func FitsAmount(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale)) && d.Abs().LessThan(maxAmount)
}
