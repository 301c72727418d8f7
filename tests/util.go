package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core/fee"
)

func CreateFeeRecord(
	t *testing.T,
	repo fee.Repository,
	studentID, name, cohort string,
	fullAmount decimal.Decimal,
	scholarship fee.ScholarshipInfo,
	createdAt ...time.Time,
) fee.StudentFeeRecord {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	due := fee.AmountDue(fullAmount, scholarship)
	rec := fee.StudentFeeRecord{
		StudentID:   studentID,
		StudentName: name,
		Cohort:      cohort,
		FeeStructure: fee.FeeStructure{
			FullAmount:  fullAmount,
			Currency:    "usd",
			PaymentPlan: fee.PlanFull,
		},
		Scholarship:    scholarship,
		TotalFees:      fullAmount,
		AmountDue:      due,
		AmountPaid:     decimal.Zero,
		Balance:        due,
		Payments:       []fee.PaymentRecord{},
		Status:         fee.DeriveStatus(due, decimal.Zero),
		EnrollmentDate: tstamp,
		CreatedAt:      tstamp,
		UpdatedAt:      tstamp,
	}
	rec, err := repo.CreateStudentFee(context.Background(), rec)
	if err != nil {
		t.Fatalf("CreateFeeRecord() failed: %v", err)
	}
	return rec
}
