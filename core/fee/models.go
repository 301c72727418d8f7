package fee

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
)

// Payment plans
const (
	PlanFull        = "full"
	PlanInstallment = "installment"
)

// Scholarship types
const (
	ScholarshipFull    = "full"
	ScholarshipPartial = "partial"
)

// Payment methods
const (
	MethodCash         = "cash"
	MethodBankTransfer = "bank_transfer"
	MethodMobileMoney  = "mobile_money"
	MethodCheque       = "cheque"
	MethodOther        = "other"
)

var Methods = []string{MethodCash, MethodBankTransfer, MethodMobileMoney, MethodCheque, MethodOther}

// Settlement statuses
const (
	StatusUnpaid  = "unpaid"
	StatusPartial = "partial"
	StatusPaid    = "paid"
	// StatusOverdue is declared for reporting but never produced by DeriveStatus:
	// no due-date policy exists in this core. A scheduled reconciliation job
	// would own it.
	StatusOverdue = "overdue"
)

type Installments struct {
	Count                int             `json:"count" validate:"min=2"`
	AmountPerInstallment decimal.Decimal `json:"amount_per_installment"`
}

// FeeStructure describes a student's full fee obligation before any
// scholarship adjustment. It is immutable once a ledger record exists.
type FeeStructure struct {
	FullAmount   decimal.Decimal `json:"full_amount" validate:"gt=0"`
	Currency     string          `json:"currency" validate:"required,len=3"`
	PaymentPlan  string          `json:"payment_plan" validate:"required,oneof=full installment"`
	Installments *Installments   `json:"installments,omitempty"`
}

// normalize shapes the installment terms: a full plan carries none, an
// installment plan carries a per-installment amount derived from the full amount.
func (fs *FeeStructure) normalize() error {
	switch fs.PaymentPlan {
	case PlanFull:
		fs.Installments = nil
	case PlanInstallment:
		if fs.Installments == nil || fs.Installments.Count < 2 {
			return core.NewValidationError(nil, core.FieldError{
				Field: "installments", Error: "an installment plan requires at least 2 installments",
			})
		}
		fs.Installments.AmountPerInstallment = fs.FullAmount.DivRound(decimal.NewFromInt(int64(fs.Installments.Count)), 2)
	}
	return nil
}

// ScholarshipInfo is the stored, normalized shape of a scholarship award.
// When HasScholarship is false no other field is set; an invalid or absent
// partial percentage is dropped rather than stored.
type ScholarshipInfo struct {
	HasScholarship bool             `json:"has_scholarship"`
	Type           string           `json:"type,omitempty"`
	Percentage     *decimal.Decimal `json:"percentage,omitempty"`
	Description    string           `json:"description,omitempty"`
}

// PaymentRecord is a single hand-entered payment. Immutable once created.
type PaymentRecord struct {
	ID             string          `json:"id"`
	Amount         decimal.Decimal `json:"amount"`
	Date           time.Time       `json:"date"` // UTC, server-assigned
	Method         string          `json:"method"`
	Reference      string          `json:"reference,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	RecordedBy     string          `json:"recorded_by"`
	RecordedByName string          `json:"recorded_by_name,omitempty"`
}

// StudentFeeRecord is a student's whole ledger: fee terms, scholarship,
// the append-only payment history and the totals derived from it.
//
// Invariants held after every successful operation:
//   - AmountDue = AmountDue(TotalFees, Scholarship)
//   - Balance   = AmountDue - AmountPaid
//   - AmountPaid = sum of Payments[].Amount
//   - Status    = DeriveStatus(AmountDue, AmountPaid)
type StudentFeeRecord struct {
	StudentID              string          `json:"student_id"`
	StudentName            string          `json:"student_name"`
	Cohort                 string          `json:"cohort"`
	Email                  string          `json:"email,omitempty"`
	FeeStructure           FeeStructure    `json:"fee_structure"`
	Scholarship            ScholarshipInfo `json:"scholarship"`
	TotalFees              decimal.Decimal `json:"total_fees"`
	AmountDue              decimal.Decimal `json:"amount_due"`
	AmountPaid             decimal.Decimal `json:"amount_paid"`
	Balance                decimal.Decimal `json:"balance"`
	Payments               []PaymentRecord `json:"payments"`
	Status                 string          `json:"status"`
	EnrollmentDate         time.Time       `json:"enrollment_date"`
	ExpectedCompletionDate *time.Time      `json:"expected_completion_date,omitempty"`
	LastPaymentDate        *time.Time      `json:"last_payment_date,omitempty"`
	CreatedAt              time.Time       `json:"created_at"` // UTC
	UpdatedAt              time.Time       `json:"updated_at"` // UTC
	UpdatedBy              string          `json:"updated_by,omitempty"`

	// Version is the optimistic-concurrency token managed by the repository;
	// it is not part of the persisted document.
	Version int `json:"-"`
}

// NewScholarship is the raw scholarship input as staff submit it.
// NormalizeScholarship shapes it before anything is stored.
type NewScholarship struct {
	HasScholarship bool   `json:"has_scholarship"`
	Type           string `json:"type" validate:"required_with=HasScholarship,omitempty,oneof=full partial"`
	Percentage     string `json:"percentage"` // raw; parsed on normalization, out-of-range values are dropped
	Description    string `json:"description"`
}

func (ns *NewScholarship) Validate(validate *validator.Validate) error {
	ns.Type = core.CleanString(ns.Type, true /* lower */)
	ns.Percentage = core.CleanString(ns.Percentage)
	return validate.Struct(ns)
}

// NewStudentFee contains information needed to initialize a StudentFeeRecord.
type NewStudentFee struct {
	StudentID              string         `json:"student_id" validate:"required"`
	StudentName            string         `json:"student_name" validate:"required"`
	Cohort                 string         `json:"cohort" validate:"required"`
	Email                  string         `json:"email" validate:"omitempty,email"`
	FeeStructure           FeeStructure   `json:"fee_structure"`
	Scholarship            NewScholarship `json:"scholarship"`
	EnrollmentDate         time.Time      `json:"enrollment_date"`
	ExpectedCompletionDate *time.Time     `json:"expected_completion_date"`
}

func (nf *NewStudentFee) Validate(validate *validator.Validate) error {
	nf.StudentID = core.CleanString(nf.StudentID)
	nf.StudentName = core.CleanString(nf.StudentName)
	nf.Cohort = core.CleanString(nf.Cohort)
	nf.Email = core.CleanString(nf.Email, true /* lower */)
	nf.FeeStructure.Currency = core.CleanString(nf.FeeStructure.Currency, true)

	if err := validate.Struct(nf); err != nil {
		return err
	}
	return nf.FeeStructure.normalize()
}

// NewPayment defines what information may be provided to record a payment.
// RecordedBy/RecordedByName come from the acting user's identity, not the form.
type NewPayment struct {
	Amount         decimal.Decimal `json:"amount" validate:"gt=0"`
	Method         string          `json:"method" validate:"required,paymethod"`
	Reference      string          `json:"reference"`
	Notes          string          `json:"notes"`
	RecordedBy     string          `json:"-" validate:"required"`
	RecordedByName string          `json:"-"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.Method = core.CleanString(np.Method, true /* lower */)
	np.Reference = core.CleanString(np.Reference)
	np.Notes = core.CleanString(np.Notes)
	return validate.Struct(np)
}

// QueryFilter narrows listings; fields AND together.
type QueryFilter struct {
	Cohort string `query:"cohort"`
	Status string `query:"status"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Cohort == "" && qf.Status == ""
}

func (qf *QueryFilter) Clean() {
	qf.Cohort = core.CleanString(qf.Cohort)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// Statistics is the read-only reduction over all (optionally cohort-filtered)
// ledger records, served to reporting dashboards.
type Statistics struct {
	TotalStudents        int             `json:"total_students"`
	TotalFeesExpected    decimal.Decimal `json:"total_fees_expected"`
	TotalCollected       decimal.Decimal `json:"total_collected"`
	TotalOutstanding     decimal.Decimal `json:"total_outstanding"`
	CollectionRate       decimal.Decimal `json:"collection_rate"` // percentage; 0 when nothing is expected
	PaidCount            int             `json:"paid_count"`
	PartialCount         int             `json:"partial_count"`
	UnpaidCount          int             `json:"unpaid_count"`
	OverdueCount         int             `json:"overdue_count"`
	ScholarshipCount     int             `json:"scholarship_count"`
	FullScholarshipCount int             `json:"full_scholarship_count"`
}
