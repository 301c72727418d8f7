package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/fee"
)

const (
	feeChannel = "student_fee_changes"

	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// listings are always ordered by student name
var nameOrdering = core.DBOrdering{Field: "doc ->> 'student_name'", Ascending: true}

// feeRepository stores each StudentFeeRecord as a JSONB document; the version
// column backs conditional updates, the cohort column backs filtered listings
// and a NOTIFY trigger backs change subscriptions.
type feeRepository struct {
	db     *sqlx.DB
	dsn    string // dedicated connection for the change listener
	logger core.Logger
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *sqlx.DB, dsn string, logger core.Logger) *feeRepository {
	return &feeRepository{db: db, dsn: dsn, logger: logger}
}

type feeRow struct {
	StudentID string    `db:"student_id"`
	Cohort    string    `db:"cohort"`
	Version   int       `db:"version"`
	Doc       []byte    `db:"doc"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (repo feeRepository) unrow(row feeRow) (fee.StudentFeeRecord, error) {
	var rec fee.StudentFeeRecord
	if err := json.Unmarshal(row.Doc, &rec); err != nil {
		return fee.StudentFeeRecord{}, errors.Wrap(err, "decoding fee record")
	}
	rec.Version = row.Version
	return rec, nil
}

func (repo feeRepository) unrowSlice(rows []feeRow) ([]fee.StudentFeeRecord, error) {
	recs := make([]fee.StudentFeeRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := repo.unrow(row)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// trapNoRowsErr maps psql "no rows" err to fee.ErrNotFound
func (repo feeRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return fee.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo feeRepository) CreateStudentFee(ctx context.Context, rec fee.StudentFeeRecord) (fee.StudentFeeRecord, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fee.StudentFeeRecord{}, errors.Wrap(err, "encoding fee record")
	}

	res, err := repo.db.ExecContext(ctx,
		`INSERT INTO student_fee (student_id, cohort, version, doc, created_at, updated_at)
		 VALUES ($1, $2, 1, $3, $4, $5)
		 ON CONFLICT (student_id) DO NOTHING`,
		rec.StudentID, rec.Cohort, doc, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fee.StudentFeeRecord{}, errors.Wrap(err, "inserting fee record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fee.StudentFeeRecord{}, errors.Wrap(err, "inserting fee record")
	}
	if n == 0 {
		return fee.StudentFeeRecord{}, fee.ErrExists
	}
	rec.Version = 1
	return rec, nil
}

func (repo feeRepository) GetStudentFee(ctx context.Context, studentID string) (fee.StudentFeeRecord, error) {
	var row feeRow
	err := repo.db.GetContext(ctx, &row,
		`SELECT student_id, cohort, version, doc, created_at, updated_at
		 FROM student_fee WHERE student_id = $1`, studentID)
	if err != nil {
		return fee.StudentFeeRecord{}, repo.trapNoRowsErr(err, "getting fee record")
	}
	return repo.unrow(row)
}

func (repo feeRepository) FilterStudentFees(ctx context.Context, filter fee.QueryFilter) ([]fee.StudentFeeRecord, error) {
	query := `SELECT student_id, cohort, version, doc, created_at, updated_at FROM student_fee`
	where := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)

	if filter.Cohort != "" {
		args = append(args, filter.Cohort)
		where = append(where, "cohort = ?")
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, "doc ->> 'status' = ?")
	}
	for i, cond := range where {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY " + nameOrdering.String()
	query = repo.db.Rebind(query)

	var rows []feeRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering fee records")
	}
	return repo.unrowSlice(rows)
}

func (repo feeRepository) UpdateStudentFee(ctx context.Context, rec fee.StudentFeeRecord) (fee.StudentFeeRecord, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fee.StudentFeeRecord{}, errors.Wrap(err, "encoding fee record")
	}

	res, err := repo.db.ExecContext(ctx,
		`UPDATE student_fee SET version = version + 1, doc = $2, updated_at = $3
		 WHERE student_id = $1 AND version = $4`,
		rec.StudentID, doc, rec.UpdatedAt, rec.Version,
	)
	if err != nil {
		return fee.StudentFeeRecord{}, errors.Wrap(err, "updating fee record")
	}
	if err = repo.checkUpdated(ctx, res, rec.StudentID); err != nil {
		return fee.StudentFeeRecord{}, err
	}
	rec.Version++
	return rec, nil
}

func (repo feeRepository) UpdateStudentFeeScholarship(ctx context.Context, rec fee.StudentFeeRecord) (fee.StudentFeeRecord, error) {
	// only save the scholarship-derived fields
	patch, err := json.Marshal(map[string]interface{}{
		"scholarship": rec.Scholarship,
		"amount_due":  rec.AmountDue,
		"balance":     rec.Balance,
		"status":      rec.Status,
		"updated_at":  rec.UpdatedAt,
		"updated_by":  rec.UpdatedBy,
	})
	if err != nil {
		return fee.StudentFeeRecord{}, errors.Wrap(err, "encoding scholarship patch")
	}

	res, err := repo.db.ExecContext(ctx,
		`UPDATE student_fee SET version = version + 1, doc = doc || $2::jsonb, updated_at = $3
		 WHERE student_id = $1 AND version = $4`,
		rec.StudentID, patch, rec.UpdatedAt, rec.Version,
	)
	if err != nil {
		return fee.StudentFeeRecord{}, errors.Wrap(err, "updating scholarship")
	}
	if err = repo.checkUpdated(ctx, res, rec.StudentID); err != nil {
		return fee.StudentFeeRecord{}, err
	}
	return repo.GetStudentFee(ctx, rec.StudentID)
}

// checkUpdated tells a missing record apart from a version conflict when a
// conditional update matched no row.
func (repo feeRepository) checkUpdated(ctx context.Context, res sql.Result, studentID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "updating fee record")
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = repo.db.GetContext(ctx, &exists, `SELECT true FROM student_fee WHERE student_id = $1`, studentID)
	if err == sql.ErrNoRows {
		return fee.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "checking fee record")
	}
	return fee.ErrConflict
}

func (repo feeRepository) WatchStudentFees(ctx context.Context, filter fee.QueryFilter) (<-chan []fee.StudentFeeRecord, error) {
	listener := pq.NewListener(repo.dsn, listenerMinReconnect, listenerMaxReconnect, nil)
	if err := listener.Listen(feeChannel); err != nil {
		_ = listener.Close()
		return nil, errors.Wrap(err, "listening for fee changes")
	}

	ch := make(chan []fee.StudentFeeRecord, 1)
	go repo.watch(ctx, listener, filter, ch)
	return ch, nil
}

func (repo feeRepository) watch(ctx context.Context, listener *pq.Listener, filter fee.QueryFilter, ch chan []fee.StudentFeeRecord) {
	defer func() {
		if err := listener.Close(); err != nil {
			repo.logger.Error("closing fee change listener", err)
		}
		close(ch)
	}()

	repo.deliver(ctx, filter, ch) // initial listing

	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.Notify:
			repo.deliver(ctx, filter, ch)
		case <-time.After(listenerPingInterval):
			if err := listener.Ping(); err != nil {
				repo.logger.Error("pinging fee change listener", err)
			}
		}
	}
}

// deliver re-queries the listing and hands it to the subscriber, replacing any
// stale undelivered listing.
func (repo feeRepository) deliver(ctx context.Context, filter fee.QueryFilter, ch chan []fee.StudentFeeRecord) {
	recs, err := repo.FilterStudentFees(ctx, filter)
	if err != nil {
		if ctx.Err() == nil {
			repo.logger.Error("querying fee listing for watch", err)
		}
		return
	}
	select {
	case <-ch:
	default:
	}
	ch <- recs
}
