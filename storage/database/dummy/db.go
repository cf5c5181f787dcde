package dummydb

import (
	"sync"

	"github.com/trezcool/mtihani/core/attempt"
	"github.com/trezcool/mtihani/core/exam"
	"github.com/trezcool/mtihani/core/user"
)

// in-memory database for tests; mimics the SQL repos' semantics,
// including the guarded attempt completion.
type (
	DB struct {
		user    *userTable
		exam    *examTable
		attempt *attemptTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
		links map[string]map[string]bool // teacherID -> set of studentIDs
	}

	examTable struct {
		sync.RWMutex
		table map[string]*exam.Exam
	}

	attemptTable struct {
		sync.RWMutex
		table   map[string]*attempt.Attempt
		answers map[string][]attempt.Answer // attemptID -> rows
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{
			table: make(map[string]*user.User),
			links: make(map[string]map[string]bool),
		},
		exam: &examTable{table: make(map[string]*exam.Exam)},
		attempt: &attemptTable{
			table:   make(map[string]*attempt.Attempt),
			answers: make(map[string][]attempt.Answer),
		},
	}
	return db, nil
}

// Reset empties all tables.
func (db *DB) Reset() {
	db.user.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.links = make(map[string]map[string]bool)
	db.user.Unlock()

	db.exam.Lock()
	db.exam.table = make(map[string]*exam.Exam)
	db.exam.Unlock()

	db.attempt.Lock()
	db.attempt.table = make(map[string]*attempt.Attempt)
	db.attempt.answers = make(map[string][]attempt.Answer)
	db.attempt.Unlock()
}
