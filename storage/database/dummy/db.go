package dummydb

import (
	"sync"

	"github.com/trezcool/ada/core/fee"
)

type (
	DB struct {
		fee *feeTable
	}

	feeTable struct {
		sync.RWMutex
		table    map[string]*fee.StudentFeeRecord
		watchers []*watcher
	}
)

func Open() (*DB, error) {
	db := &DB{
		fee: &feeTable{table: make(map[string]*fee.StudentFeeRecord)},
	}
	return db, nil
}

// Reset empties all tables; watchers stay subscribed.
func (db *DB) Reset() {
	db.fee.Lock()
	defer db.fee.Unlock()
	db.fee.table = make(map[string]*fee.StudentFeeRecord)
}
