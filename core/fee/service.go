package fee

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
)

var (
	// errors
	ErrNotFound = errors.New("fee record not found")
	ErrExists   = errors.New("a fee record already exists for this student")
	ErrConflict = errors.New("fee record was modified concurrently")
)

type (
	// Repository is the document-store contract the ledger requires:
	// get-by-key, create-if-absent, whole-document replace, partial
	// scholarship update, filtered ordered listing and a change subscription.
	Repository interface {
		CreateStudentFee(ctx context.Context, rec StudentFeeRecord) (StudentFeeRecord, error)
		GetStudentFee(ctx context.Context, studentID string) (StudentFeeRecord, error)
		// FilterStudentFees applies AND operation on available QueryFilter fields
		// and returns records ordered by student name.
		FilterStudentFees(ctx context.Context, filter QueryFilter) ([]StudentFeeRecord, error)
		// UpdateStudentFee replaces the whole record. Implementations check
		// rec.Version and fail with ErrConflict when the stored record moved
		// underneath the caller.
		UpdateStudentFee(ctx context.Context, rec StudentFeeRecord) (StudentFeeRecord, error)
		// UpdateStudentFeeScholarship persists only the scholarship-derived
		// fields (scholarship, amount due, balance, status, audit fields);
		// the payment history is left untouched.
		UpdateStudentFeeScholarship(ctx context.Context, rec StudentFeeRecord) (StudentFeeRecord, error)
		// WatchStudentFees re-delivers the full filtered, ordered listing on
		// every matching write until ctx is done.
		WatchStudentFees(ctx context.Context, filter QueryFilter) (<-chan []StudentFeeRecord, error)
	}

	Service interface {
		Initialize(ctx context.Context, nf NewStudentFee) (StudentFeeRecord, error)
		UpdateScholarship(ctx context.Context, studentID string, raw NewScholarship, updatedBy string) (StudentFeeRecord, error)
		RecordPayment(ctx context.Context, studentID string, np NewPayment) (StudentFeeRecord, error)
		GetByStudentID(ctx context.Context, studentID string) (StudentFeeRecord, error)
		Filter(ctx context.Context, filter QueryFilter) ([]StudentFeeRecord, error)
		Watch(ctx context.Context, filter QueryFilter) (<-chan []StudentFeeRecord, error)
		Statistics(ctx context.Context, cohort string) (Statistics, error)
	}

	service struct {
		repo     Repository
		notifSvc core.NotificationService
		logger   core.Logger
		conf     *core.Config

		mutex sync.Mutex
		locks map[string]*sync.Mutex // per-student write serialization
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, notifSvc core.NotificationService, logger core.Logger, conf *core.Config) Service {
	return &service{
		repo:     repo,
		notifSvc: notifSvc,
		logger:   logger,
		conf:     conf,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockStudent serializes read-modify-write cycles per student so two
// concurrent payments cannot compute their totals from the same stale base.
func (svc *service) lockStudent(studentID string) func() {
	svc.mutex.Lock()
	mu, ok := svc.locks[studentID]
	if !ok {
		mu = &sync.Mutex{}
		svc.locks[studentID] = mu
	}
	svc.mutex.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Initialize creates a student's ledger record. It is create-if-absent: a
// second call for the same student fails instead of wiping payment history.
func (svc *service) Initialize(ctx context.Context, nf NewStudentFee) (StudentFeeRecord, error) {
	now := time.Now().UTC()
	scholarship := NormalizeScholarship(nf.Scholarship)
	due := AmountDue(nf.FeeStructure.FullAmount, scholarship)

	rec := StudentFeeRecord{
		StudentID:              nf.StudentID,
		StudentName:            nf.StudentName,
		Cohort:                 nf.Cohort,
		Email:                  nf.Email,
		FeeStructure:           nf.FeeStructure,
		Scholarship:            scholarship,
		TotalFees:              nf.FeeStructure.FullAmount,
		AmountDue:              due,
		AmountPaid:             decimal.Zero,
		Balance:                due,
		Payments:               []PaymentRecord{},
		Status:                 DeriveStatus(due, decimal.Zero),
		EnrollmentDate:         nf.EnrollmentDate,
		ExpectedCompletionDate: nf.ExpectedCompletionDate,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if rec.EnrollmentDate.IsZero() {
		rec.EnrollmentDate = now
	}

	rec, err := svc.repo.CreateStudentFee(ctx, rec)
	if err != nil {
		if errors.Cause(err) == ErrExists {
			return StudentFeeRecord{}, core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return StudentFeeRecord{}, errors.Wrap(err, "creating fee record")
	}
	return rec, nil
}

// UpdateScholarship recomputes the amount due against the existing total fees
// when scholarship terms change. The payment history and amount paid are never
// touched; a scholarship increase alone can flip the status to paid.
func (svc *service) UpdateScholarship(ctx context.Context, studentID string, raw NewScholarship, updatedBy string) (StudentFeeRecord, error) {
	unlock := svc.lockStudent(studentID)
	defer unlock()

	rec, err := svc.repo.GetStudentFee(ctx, studentID)
	if err != nil {
		return StudentFeeRecord{}, err
	}

	rec.Scholarship = NormalizeScholarship(raw)
	rec.AmountDue = AmountDue(rec.TotalFees, rec.Scholarship)
	rec.Balance = rec.AmountDue.Sub(rec.AmountPaid)
	rec.Status = DeriveStatus(rec.AmountDue, rec.AmountPaid)
	rec.UpdatedAt = time.Now().UTC()
	rec.UpdatedBy = updatedBy

	return svc.repo.UpdateStudentFeeScholarship(ctx, rec)
}

// RecordPayment appends a payment with a fresh id and server-assigned
// timestamp, recomputes the totals and status, and persists the full record.
// On success the student is notified best-effort.
func (svc *service) RecordPayment(ctx context.Context, studentID string, np NewPayment) (StudentFeeRecord, error) {
	if !np.Amount.IsPositive() {
		return StudentFeeRecord{}, core.NewValidationError(
			errors.New("payment amount must be greater than 0"),
			core.FieldError{Field: "amount", Error: "must be greater than 0"},
		)
	}

	unlock := svc.lockStudent(studentID)
	defer unlock()

	rec, err := svc.repo.GetStudentFee(ctx, studentID)
	if err != nil {
		return StudentFeeRecord{}, err
	}

	now := time.Now().UTC()
	payment := PaymentRecord{
		ID:             uuid.New().String(),
		Amount:         np.Amount,
		Date:           now,
		Method:         np.Method,
		Reference:      np.Reference,
		Notes:          np.Notes,
		RecordedBy:     np.RecordedBy,
		RecordedByName: np.RecordedByName,
	}
	rec.Payments = append(rec.Payments, payment)
	rec.AmountPaid = rec.AmountPaid.Add(np.Amount)
	rec.Balance = rec.AmountDue.Sub(rec.AmountPaid)
	rec.Status = DeriveStatus(rec.AmountDue, rec.AmountPaid)
	rec.LastPaymentDate = &now
	rec.UpdatedAt = now
	rec.UpdatedBy = np.RecordedBy

	rec, err = svc.repo.UpdateStudentFee(ctx, rec)
	if err != nil {
		return StudentFeeRecord{}, errors.Wrap(err, "recording payment")
	}

	svc.notifyPayment(rec, payment)
	return rec, nil
}

// notifyPayment is best effort: the payment stands whether or not the
// student hears about it.
func (svc *service) notifyPayment(rec StudentFeeRecord, payment PaymentRecord) {
	defer func() {
		if r := recover(); r != nil {
			svc.logger.Error(fmt.Sprintf("payment notification for student %s failed: %v", rec.StudentID, r))
		}
	}()

	svc.notifSvc.Notify(
		core.Recipient{UserID: rec.StudentID, Name: rec.StudentName, Email: rec.Email},
		core.Notification{
			Title: "Payment received",
			Description: fmt.Sprintf(
				"A payment of %s %s was recorded on your account. Outstanding balance: %s %s.",
				payment.Amount, rec.FeeStructure.Currency, rec.Balance, rec.FeeStructure.Currency,
			),
			Href: "/fees/" + rec.StudentID,
		},
	)
}

func (svc *service) GetByStudentID(ctx context.Context, studentID string) (StudentFeeRecord, error) {
	return svc.repo.GetStudentFee(ctx, core.CleanString(studentID))
}

func (svc *service) Filter(ctx context.Context, filter QueryFilter) ([]StudentFeeRecord, error) {
	filter.Clean()
	return svc.repo.FilterStudentFees(ctx, filter)
}

func (svc *service) Watch(ctx context.Context, filter QueryFilter) (<-chan []StudentFeeRecord, error) {
	filter.Clean()
	return svc.repo.WatchStudentFees(ctx, filter)
}

// Statistics reduces all (optionally cohort-filtered) records into reporting
// aggregates. It reads a point-in-time snapshot and may be stale relative to
// concurrent writers; financial reporting here is advisory.
func (svc *service) Statistics(ctx context.Context, cohort string) (Statistics, error) {
	recs, err := svc.repo.FilterStudentFees(ctx, QueryFilter{Cohort: core.CleanString(cohort)})
	if err != nil {
		return Statistics{}, errors.Wrap(err, "querying fee records")
	}

	stats := Statistics{TotalStudents: len(recs)}
	for _, rec := range recs {
		stats.TotalFeesExpected = stats.TotalFeesExpected.Add(rec.AmountDue)
		stats.TotalCollected = stats.TotalCollected.Add(rec.AmountPaid)
		stats.TotalOutstanding = stats.TotalOutstanding.Add(rec.Balance)

		switch rec.Status {
		case StatusPaid:
			stats.PaidCount++
		case StatusPartial:
			stats.PartialCount++
		case StatusUnpaid:
			stats.UnpaidCount++
		case StatusOverdue:
			stats.OverdueCount++
		}
		if rec.Scholarship.HasScholarship {
			stats.ScholarshipCount++
			if rec.Scholarship.Type == ScholarshipFull {
				stats.FullScholarshipCount++
			}
		}
	}
	if stats.TotalFeesExpected.IsPositive() {
		stats.CollectionRate = stats.TotalCollected.Div(stats.TotalFeesExpected).Mul(hundred)
	}
	return stats, nil
}
