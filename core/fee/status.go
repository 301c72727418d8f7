package fee

import "github.com/shopspring/decimal"

// DeriveStatus maps a record's amounts to its settlement status.
// It is total and deterministic; StatusOverdue is never produced here.
func DeriveStatus(amountDue, amountPaid decimal.Decimal) string {
	balance := amountDue.Sub(amountPaid)
	switch {
	case balance.LessThanOrEqual(decimal.Zero):
		return StatusPaid
	case amountPaid.IsPositive():
		return StatusPartial
	default:
		return StatusUnpaid
	}
}
