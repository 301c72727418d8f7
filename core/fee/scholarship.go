package fee

import (
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
)

var hundred = decimal.NewFromInt(100)

// NormalizeScholarship shapes raw scholarship input into its stored form.
// A false HasScholarship drops every other field. A partial percentage is
// kept only when it parses to a number in (0, 100]; otherwise it is omitted
// silently and the scholarship grants no discount.
func NormalizeScholarship(ns NewScholarship) ScholarshipInfo {
	if !ns.HasScholarship {
		return ScholarshipInfo{}
	}
	info := ScholarshipInfo{
		HasScholarship: true,
		Type:           ns.Type,
		Description:    core.CleanString(ns.Description),
	}
	if ns.Type == ScholarshipPartial {
		if p, err := decimal.NewFromString(core.CleanString(ns.Percentage)); err == nil {
			if p.IsPositive() && p.LessThanOrEqual(hundred) {
				info.Percentage = &p
			}
		}
	}
	return info
}

// AmountDue computes the fee obligation after scholarship adjustment.
func AmountDue(totalFees decimal.Decimal, s ScholarshipInfo) decimal.Decimal {
	if !s.HasScholarship {
		return totalFees
	}
	switch s.Type {
	case ScholarshipFull:
		return decimal.Zero
	case ScholarshipPartial:
		if s.Percentage == nil {
			return totalFees // no valid percentage recorded: no discount
		}
		return totalFees.Sub(totalFees.Mul(*s.Percentage).Div(hundred))
	}
	return totalFees
}
