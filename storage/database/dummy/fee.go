package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/ada/core/fee"
)

type feeRepository struct {
	db *feeTable
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *DB) fee.Repository {
	return &feeRepository{db: db.fee}
}

// copyRec detaches a record from table storage; the payments slice would
// otherwise alias the stored one.
func copyRec(rec fee.StudentFeeRecord) fee.StudentFeeRecord {
	cp := rec
	cp.Payments = make([]fee.PaymentRecord, len(rec.Payments))
	copy(cp.Payments, rec.Payments)
	return cp
}

// query returns the filtered listing ordered by student name.
// callers must hold at least a read lock.
func (repo *feeRepository) query(filter fee.QueryFilter) []fee.StudentFeeRecord {
	recs := make([]fee.StudentFeeRecord, 0, len(repo.db.table))
	for _, rec := range repo.db.table {
		if filter.Cohort != "" && rec.Cohort != filter.Cohort {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		recs = append(recs, copyRec(*rec))
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].StudentName < recs[j].StudentName })
	return recs
}

func (repo *feeRepository) CreateStudentFee(_ context.Context, rec fee.StudentFeeRecord) (fee.StudentFeeRecord, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[rec.StudentID]; ok {
		return fee.StudentFeeRecord{}, fee.ErrExists
	}
	rec.Version = 1
	stored := copyRec(rec)
	repo.db.table[rec.StudentID] = &stored
	repo.broadcast()
	return rec, nil
}

func (repo *feeRepository) GetStudentFee(_ context.Context, studentID string) (fee.StudentFeeRecord, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[studentID]; ok {
		return copyRec(*rec), nil
	}
	return fee.StudentFeeRecord{}, fee.ErrNotFound
}

func (repo *feeRepository) FilterStudentFees(_ context.Context, filter fee.QueryFilter) ([]fee.StudentFeeRecord, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(filter), nil
}

func (repo *feeRepository) UpdateStudentFee(_ context.Context, rec fee.StudentFeeRecord) (fee.StudentFeeRecord, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[rec.StudentID]
	if !ok {
		return fee.StudentFeeRecord{}, fee.ErrNotFound
	}
	if orig.Version != rec.Version {
		return fee.StudentFeeRecord{}, fee.ErrConflict
	}
	rec.Version++
	stored := copyRec(rec)
	repo.db.table[rec.StudentID] = &stored
	repo.broadcast()
	return rec, nil
}

func (repo *feeRepository) UpdateStudentFeeScholarship(_ context.Context, rec fee.StudentFeeRecord) (fee.StudentFeeRecord, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[rec.StudentID]
	if !ok {
		return fee.StudentFeeRecord{}, fee.ErrNotFound
	}
	if orig.Version != rec.Version {
		return fee.StudentFeeRecord{}, fee.ErrConflict
	}

	// only save the scholarship-derived fields
	orig.Scholarship = rec.Scholarship
	orig.AmountDue = rec.AmountDue
	orig.Balance = rec.Balance
	orig.Status = rec.Status
	orig.UpdatedAt = rec.UpdatedAt
	orig.UpdatedBy = rec.UpdatedBy
	orig.Version++

	repo.broadcast()
	return copyRec(*orig), nil
}

func (repo *feeRepository) WatchStudentFees(ctx context.Context, filter fee.QueryFilter) (<-chan []fee.StudentFeeRecord, error) {
	w := &watcher{filter: filter, ch: make(chan []fee.StudentFeeRecord, 1)}

	repo.db.Lock()
	repo.db.watchers = append(repo.db.watchers, w)
	w.ch <- repo.query(filter) // initial delivery
	repo.db.Unlock()

	go func() {
		<-ctx.Done()
		repo.db.Lock()
		defer repo.db.Unlock()
		for i, watcher := range repo.db.watchers {
			if watcher == w {
				repo.db.watchers = append(repo.db.watchers[:i], repo.db.watchers[i+1:]...)
				break
			}
		}
		close(w.ch)
	}()
	return w.ch, nil
}

type watcher struct {
	filter fee.QueryFilter
	ch     chan []fee.StudentFeeRecord
}

// broadcast re-delivers the filtered listing to every watcher, replacing any
// stale undelivered listing. callers must hold the write lock.
func (repo *feeRepository) broadcast() {
	for _, w := range repo.db.watchers {
		listing := repo.query(w.filter)
		select {
		case <-w.ch:
		default:
		}
		w.ch <- listing
	}
}
