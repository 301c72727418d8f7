package fee_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/fee"
	dummynotif "github.com/trezcool/ada/services/notification/dummy"
	dummydb "github.com/trezcool/ada/storage/database/dummy"
	testutil "github.com/trezcool/ada/tests"
)

var ctx = context.Background()

func setup(t *testing.T) (fee.Service, fee.Repository, *dummynotif.Service) {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	repo := dummydb.NewFeeRepository(db)
	notifSvc := dummynotif.NewService()
	return fee.NewServiceMock(repo, notifSvc), repo, notifSvc
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func checkAmounts(t *testing.T, rec fee.StudentFeeRecord, due, paid, balance, status string) {
	t.Helper()
	if !rec.AmountDue.Equal(dec(due)) {
		t.Errorf("AmountDue = %s, want %s", rec.AmountDue, due)
	}
	if !rec.AmountPaid.Equal(dec(paid)) {
		t.Errorf("AmountPaid = %s, want %s", rec.AmountPaid, paid)
	}
	if !rec.Balance.Equal(dec(balance)) {
		t.Errorf("Balance = %s, want %s", rec.Balance, balance)
	}
	if rec.Status != status {
		t.Errorf("Status = %s, want %s", rec.Status, status)
	}
}

func Test_service_Initialize(t *testing.T) {
	svc, _, _ := setup(t)

	nf := fee.NewStudentFee{
		StudentID:   "STD-001",
		StudentName: "Awe Kali",
		Cohort:      "2026A",
		Email:       "awe@test.cd",
		FeeStructure: fee.FeeStructure{
			FullAmount:  dec("5000"),
			Currency:    "usd",
			PaymentPlan: fee.PlanFull,
		},
	}
	rec, err := svc.Initialize(ctx, nf)
	if err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	checkAmounts(t, rec, "5000", "0", "5000", fee.StatusUnpaid)
	if rec.Payments == nil || len(rec.Payments) != 0 {
		t.Errorf("Payments = %v, want empty non-nil history", rec.Payments)
	}
	if !rec.TotalFees.Equal(dec("5000")) {
		t.Errorf("TotalFees = %s, want 5000", rec.TotalFees)
	}
	if rec.EnrollmentDate.IsZero() {
		t.Error("EnrollmentDate not defaulted")
	}

	// a second initialization must not wipe the existing record
	if _, err = svc.Initialize(ctx, nf); err == nil {
		t.Fatal("Initialize() expected error on duplicate student")
	} else if vErr, ok := err.(*core.ValidationError); !ok {
		t.Errorf("Initialize() error = %T(%v), want *core.ValidationError", err, err)
	} else if len(vErr.Fields) == 0 || vErr.Fields[0].Field != "student_id" {
		t.Errorf("Initialize() error fields = %+v, want student_id", vErr.Fields)
	}
}

func Test_service_Initialize_fullScholarship(t *testing.T) {
	svc, _, _ := setup(t)

	rec, err := svc.Initialize(ctx, fee.NewStudentFee{
		StudentID:   "STD-002",
		StudentName: "Ben Mbala",
		Cohort:      "2026A",
		FeeStructure: fee.FeeStructure{
			FullAmount:  dec("5000"),
			Currency:    "usd",
			PaymentPlan: fee.PlanFull,
		},
		Scholarship: fee.NewScholarship{HasScholarship: true, Type: fee.ScholarshipFull},
	})
	if err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	// owes nothing from day one
	checkAmounts(t, rec, "0", "0", "0", fee.StatusPaid)
}

func Test_service_RecordPayment(t *testing.T) {
	svc, repo, notifSvc := setup(t)

	testutil.CreateFeeRecord(t, repo, "STD-001", "Awe Kali", "2026A", dec("5000"), fee.ScholarshipInfo{})

	rec, err := svc.RecordPayment(ctx, "STD-001", fee.NewPayment{
		Amount:         dec("2000"),
		Method:         fee.MethodMobileMoney,
		Reference:      "MM-123",
		RecordedBy:     "staff-1",
		RecordedByName: "Staff One",
	})
	if err != nil {
		t.Fatalf("RecordPayment() failed: %v", err)
	}
	checkAmounts(t, rec, "5000", "2000", "3000", fee.StatusPartial)
	if len(rec.Payments) != 1 {
		t.Fatalf("Payments = %d, want 1", len(rec.Payments))
	}
	payment := rec.Payments[0]
	if payment.ID == "" {
		t.Error("payment ID not assigned")
	}
	if payment.Date.IsZero() {
		t.Error("payment Date not assigned")
	}
	if payment.RecordedBy != "staff-1" || payment.RecordedByName != "Staff One" {
		t.Errorf("payment audit = %s/%s, want staff-1/Staff One", payment.RecordedBy, payment.RecordedByName)
	}
	if rec.LastPaymentDate == nil {
		t.Error("LastPaymentDate not set")
	}

	// settle the rest
	rec, err = svc.RecordPayment(ctx, "STD-001", fee.NewPayment{
		Amount:     dec("3000"),
		Method:     fee.MethodCash,
		RecordedBy: "staff-1",
	})
	if err != nil {
		t.Fatalf("RecordPayment() failed: %v", err)
	}
	checkAmounts(t, rec, "5000", "5000", "0", fee.StatusPaid)
	if len(rec.Payments) != 2 {
		t.Errorf("Payments = %d, want 2", len(rec.Payments))
	}

	// payment history sums to the amount paid
	sum := decimal.Zero
	for _, p := range rec.Payments {
		sum = sum.Add(p.Amount)
	}
	if !sum.Equal(rec.AmountPaid) {
		t.Errorf("sum(Payments) = %s, AmountPaid = %s", sum, rec.AmountPaid)
	}

	// the student heard about both payments
	sent := notifSvc.SentNotifications()
	if len(sent) != 2 {
		t.Fatalf("notifications sent = %d, want 2", len(sent))
	}
	if sent[0].Recipient.UserID != "STD-001" {
		t.Errorf("notification recipient = %s, want STD-001", sent[0].Recipient.UserID)
	}
}

func Test_service_RecordPayment_invalid(t *testing.T) {
	svc, repo, _ := setup(t)

	testutil.CreateFeeRecord(t, repo, "STD-001", "Awe Kali", "2026A", dec("5000"), fee.ScholarshipInfo{})

	tests := []struct {
		name   string
		amount string
	}{
		{name: "zero amount", amount: "0"},
		{name: "negative amount", amount: "-100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPayment(ctx, "STD-001", fee.NewPayment{Amount: dec(tt.amount), Method: fee.MethodCash, RecordedBy: "staff-1"})
			if _, ok := err.(*core.ValidationError); !ok {
				t.Errorf("RecordPayment() error = %T(%v), want *core.ValidationError", err, err)
			}
		})
	}

	if _, err := svc.RecordPayment(ctx, "lol", fee.NewPayment{Amount: dec("100"), Method: fee.MethodCash, RecordedBy: "staff-1"}); err != fee.ErrNotFound {
		t.Errorf("RecordPayment() error = %v, want %v", err, fee.ErrNotFound)
	}
}

func Test_service_RecordPayment_notificationFailureIsolated(t *testing.T) {
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	repo := dummydb.NewFeeRepository(db)
	svc := fee.NewServiceMock(repo, panickyNotifService{})

	testutil.CreateFeeRecord(t, repo, "STD-001", "Awe Kali", "2026A", dec("5000"), fee.ScholarshipInfo{})

	rec, err := svc.RecordPayment(ctx, "STD-001", fee.NewPayment{Amount: dec("2000"), Method: fee.MethodCash, RecordedBy: "staff-1"})
	if err != nil {
		t.Fatalf("RecordPayment() failed: %v", err)
	}
	checkAmounts(t, rec, "5000", "2000", "3000", fee.StatusPartial)

	// the payment stuck despite the delivery blow-up
	rec, err = repo.GetStudentFee(ctx, "STD-001")
	if err != nil {
		t.Fatalf("GetStudentFee() failed: %v", err)
	}
	if len(rec.Payments) != 1 {
		t.Errorf("Payments = %d, want 1", len(rec.Payments))
	}
}

type panickyNotifService struct{}

func (panickyNotifService) Notify(core.Recipient, ...core.Notification) { panic("smtp is down") }

func Test_service_RecordPayment_concurrent(t *testing.T) {
	svc, repo, _ := setup(t)

	testutil.CreateFeeRecord(t, repo, "STD-001", "Awe Kali", "2026A", dec("5000"), fee.ScholarshipInfo{})

	amounts := []string{"700", "500"}
	var wg sync.WaitGroup
	errs := make(chan error, len(amounts))
	for _, amount := range amounts {
		wg.Add(1)
		go func(amount string) {
			defer wg.Done()
			_, err := svc.RecordPayment(ctx, "STD-001", fee.NewPayment{Amount: dec(amount), Method: fee.MethodCash, RecordedBy: "staff-1"})
			errs <- err
		}(amount)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RecordPayment() failed: %v", err)
		}
	}

	rec, err := repo.GetStudentFee(ctx, "STD-001")
	if err != nil {
		t.Fatalf("GetStudentFee() failed: %v", err)
	}
	checkAmounts(t, rec, "5000", "1200", "3800", fee.StatusPartial)
	if len(rec.Payments) != 2 {
		t.Errorf("Payments = %d, want 2", len(rec.Payments))
	}
	sum := decimal.Zero
	for _, p := range rec.Payments {
		sum = sum.Add(p.Amount)
	}
	if !sum.Equal(rec.AmountPaid) {
		t.Errorf("sum(Payments) = %s, AmountPaid = %s", sum, rec.AmountPaid)
	}
}

func Test_service_UpdateScholarship(t *testing.T) {
	svc, repo, _ := setup(t)

	testutil.CreateFeeRecord(t, repo, "STD-001", "Awe Kali", "2026A", dec("8000"), fee.ScholarshipInfo{})

	// grant 50%: due halves, nothing paid yet
	rec, err := svc.UpdateScholarship(ctx, "STD-001",
		fee.NewScholarship{HasScholarship: true, Type: fee.ScholarshipPartial, Percentage: "50"}, "staff-1")
	if err != nil {
		t.Fatalf("UpdateScholarship() failed: %v", err)
	}
	checkAmounts(t, rec, "4000", "0", "4000", fee.StatusUnpaid)
	if rec.UpdatedBy != "staff-1" {
		t.Errorf("UpdatedBy = %s, want staff-1", rec.UpdatedBy)
	}

	// pay part of it, then upgrade to a full scholarship:
	// history stays, balance goes negative, status flips to paid
	if _, err = svc.RecordPayment(ctx, "STD-001", fee.NewPayment{Amount: dec("1000"), Method: fee.MethodCash, RecordedBy: "staff-1"}); err != nil {
		t.Fatalf("RecordPayment() failed: %v", err)
	}
	rec, err = svc.UpdateScholarship(ctx, "STD-001", fee.NewScholarship{HasScholarship: true, Type: fee.ScholarshipFull}, "staff-1")
	if err != nil {
		t.Fatalf("UpdateScholarship() failed: %v", err)
	}
	checkAmounts(t, rec, "0", "1000", "-1000", fee.StatusPaid)
	if len(rec.Payments) != 1 {
		t.Errorf("Payments = %d, want 1", len(rec.Payments))
	}

	// revoke it: obligation comes back against the original total fees
	rec, err = svc.UpdateScholarship(ctx, "STD-001", fee.NewScholarship{}, "staff-1")
	if err != nil {
		t.Fatalf("UpdateScholarship() failed: %v", err)
	}
	checkAmounts(t, rec, "8000", "1000", "7000", fee.StatusPartial)

	if _, err = svc.UpdateScholarship(ctx, "lol", fee.NewScholarship{}, "staff-1"); err != fee.ErrNotFound {
		t.Errorf("UpdateScholarship() error = %v, want %v", err, fee.ErrNotFound)
	}
}

func Test_service_Filter(t *testing.T) {
	svc, repo, _ := setup(t)

	rec1 := testutil.CreateFeeRecord(t, repo, "STD-001", "Cira Tati", "2026A", dec("5000"), fee.ScholarshipInfo{})
	rec2 := testutil.CreateFeeRecord(t, repo, "STD-002", "Awe Kali", "2026A", dec("5000"), fee.ScholarshipInfo{})
	rec3 := testutil.CreateFeeRecord(t, repo, "STD-003", "Ben Mbala", "2026B", dec("5000"), fee.ScholarshipInfo{})
	if _, err := svc.RecordPayment(ctx, rec1.StudentID, fee.NewPayment{Amount: dec("5000"), Method: fee.MethodCash, RecordedBy: "staff-1"}); err != nil {
		t.Fatalf("RecordPayment() failed: %v", err)
	}

	ids := func(recs []fee.StudentFeeRecord) []string {
		out := make([]string, len(recs))
		for i, rec := range recs {
			out[i] = rec.StudentID
		}
		return out
	}

	tests := []struct {
		name   string
		filter fee.QueryFilter
		want   []string // ordered by student name
	}{
		{name: "all", filter: fee.QueryFilter{}, want: []string{rec2.StudentID, rec3.StudentID, rec1.StudentID}},
		{name: "by cohort", filter: fee.QueryFilter{Cohort: "2026A"}, want: []string{rec2.StudentID, rec1.StudentID}},
		{name: "by status", filter: fee.QueryFilter{Status: fee.StatusPaid}, want: []string{rec1.StudentID}},
		{name: "cohort and status", filter: fee.QueryFilter{Cohort: "2026A", Status: fee.StatusUnpaid}, want: []string{rec2.StudentID}},
		{name: "unknown cohort", filter: fee.QueryFilter{Cohort: "lol"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := svc.Filter(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Filter() failed: %v", err)
			}
			got := ids(recs)
			if len(got) != len(tt.want) {
				t.Fatalf("Filter() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Filter() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func Test_service_Watch(t *testing.T) {
	svc, repo, _ := setup(t)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := svc.Watch(watchCtx, fee.QueryFilter{Cohort: "2026A"})
	if err != nil {
		t.Fatalf("Watch() failed: %v", err)
	}

	recv := func() []fee.StudentFeeRecord {
		select {
		case recs := <-ch:
			return recs
		case <-time.After(2 * time.Second):
			t.Fatal("Watch() timed out waiting for a listing")
			return nil
		}
	}

	if recs := recv(); len(recs) != 0 {
		t.Errorf("initial listing = %d records, want 0", len(recs))
	}

	testutil.CreateFeeRecord(t, repo, "STD-001", "Awe Kali", "2026A", dec("5000"), fee.ScholarshipInfo{})
	if recs := recv(); len(recs) != 1 || recs[0].StudentID != "STD-001" {
		t.Errorf("listing after create = %v, want [STD-001]", recs)
	}

	if _, err = svc.RecordPayment(ctx, "STD-001", fee.NewPayment{Amount: dec("5000"), Method: fee.MethodCash, RecordedBy: "staff-1"}); err != nil {
		t.Fatalf("RecordPayment() failed: %v", err)
	}
	if recs := recv(); len(recs) != 1 || recs[0].Status != fee.StatusPaid {
		t.Errorf("listing after payment = %v, want paid STD-001", recs)
	}

	// out-of-cohort writes stay invisible; the stale undelivered listing is replaced
	testutil.CreateFeeRecord(t, repo, "STD-002", "Ben Mbala", "2026B", dec("5000"), fee.ScholarshipInfo{})
	if recs := recv(); len(recs) != 1 {
		t.Errorf("listing after foreign create = %d records, want 1", len(recs))
	}

	cancel()
	select {
	case _, open := <-ch:
		if open {
			// a final replaced listing may still be buffered; the next receive must observe the close
			if _, open = <-ch; open {
				t.Error("Watch() channel still open after cancel")
			}
		}
	case <-time.After(2 * time.Second):
		t.Error("Watch() channel not closed after cancel")
	}
}

func Test_service_Statistics(t *testing.T) {
	svc, repo, _ := setup(t)

	// no records yet: all zero, no division blow-up
	stats, err := svc.Statistics(ctx, "")
	if err != nil {
		t.Fatalf("Statistics() failed: %v", err)
	}
	if stats.TotalStudents != 0 || !stats.CollectionRate.IsZero() {
		t.Errorf("Statistics() = %+v, want zero values", stats)
	}

	fifty := dec("50")
	testutil.CreateFeeRecord(t, repo, "STD-001", "Awe Kali", "2026A", dec("5000"), fee.ScholarshipInfo{})
	testutil.CreateFeeRecord(t, repo, "STD-002", "Ben Mbala", "2026A", dec("5000"),
		fee.ScholarshipInfo{HasScholarship: true, Type: fee.ScholarshipPartial, Percentage: &fifty})
	testutil.CreateFeeRecord(t, repo, "STD-003", "Cira Tati", "2026A", dec("5000"),
		fee.ScholarshipInfo{HasScholarship: true, Type: fee.ScholarshipFull})
	testutil.CreateFeeRecord(t, repo, "STD-004", "Didi Lusa", "2026B", dec("4000"), fee.ScholarshipInfo{})

	if _, err = svc.RecordPayment(ctx, "STD-001", fee.NewPayment{Amount: dec("5000"), Method: fee.MethodCash, RecordedBy: "staff-1"}); err != nil {
		t.Fatalf("RecordPayment() failed: %v", err)
	}
	if _, err = svc.RecordPayment(ctx, "STD-002", fee.NewPayment{Amount: dec("1000"), Method: fee.MethodCash, RecordedBy: "staff-1"}); err != nil {
		t.Fatalf("RecordPayment() failed: %v", err)
	}

	// cohort 2026A: expected 5000+2500+0, collected 6000
	stats, err = svc.Statistics(ctx, "2026A")
	if err != nil {
		t.Fatalf("Statistics() failed: %v", err)
	}
	if stats.TotalStudents != 3 {
		t.Errorf("TotalStudents = %d, want 3", stats.TotalStudents)
	}
	if !stats.TotalFeesExpected.Equal(dec("7500")) {
		t.Errorf("TotalFeesExpected = %s, want 7500", stats.TotalFeesExpected)
	}
	if !stats.TotalCollected.Equal(dec("6000")) {
		t.Errorf("TotalCollected = %s, want 6000", stats.TotalCollected)
	}
	if !stats.TotalOutstanding.Equal(dec("1500")) {
		t.Errorf("TotalOutstanding = %s, want 1500", stats.TotalOutstanding)
	}
	if want := dec("80"); !stats.CollectionRate.Equal(want) {
		t.Errorf("CollectionRate = %s, want %s", stats.CollectionRate, want)
	}
	if stats.PaidCount != 2 || stats.PartialCount != 1 || stats.UnpaidCount != 0 || stats.OverdueCount != 0 {
		t.Errorf("status counts = %d/%d/%d/%d, want 2/1/0/0",
			stats.PaidCount, stats.PartialCount, stats.UnpaidCount, stats.OverdueCount)
	}
	if stats.ScholarshipCount != 2 || stats.FullScholarshipCount != 1 {
		t.Errorf("scholarship counts = %d/%d, want 2/1", stats.ScholarshipCount, stats.FullScholarshipCount)
	}

	// all cohorts
	stats, err = svc.Statistics(ctx, "")
	if err != nil {
		t.Fatalf("Statistics() failed: %v", err)
	}
	if stats.TotalStudents != 4 {
		t.Errorf("TotalStudents = %d, want 4", stats.TotalStudents)
	}
	if !stats.TotalFeesExpected.Equal(dec("11500")) {
		t.Errorf("TotalFeesExpected = %s, want 11500", stats.TotalFeesExpected)
	}
}
